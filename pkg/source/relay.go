package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/bytedance/sonic"
)

// Heartbeat is what a server-side plugin posts to the relay channel.
//
//	{"online":3,"max":20,"version":"1.21.1","ts":1723890000}
type Heartbeat struct {
	Online  *int   `json:"online"`
	Max     *int   `json:"max"`
	Version string `json:"version"`
	// TS is unix seconds. Values above 1e12 are read as milliseconds.
	TS int64 `json:"ts"`
}

func (h Heartbeat) time() time.Time {
	if h.TS > 1e12 {
		return time.UnixMilli(h.TS)
	}
	return time.Unix(h.TS, 0)
}

// Relay reads the newest heartbeat from a Discord channel. It serves servers
// whose console is not reachable from where the bot runs.
type Relay struct {
	ChannelID string
	MaxAge    time.Duration
	// Scan is how many recent messages are searched.
	Scan     int
	Messages MessageLister

	now func() time.Time
}

func (r *Relay) Name() string { return string(KindRelay) }

func (r *Relay) Fetch(ctx context.Context) (Report, error) {
	limit := r.Scan
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	msgs, err := r.Messages.ChannelMessages(r.ChannelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return Report{}, fmt.Errorf("read relay channel %s: %w", r.ChannelID, err)
	}
	// newest first
	for _, m := range msgs {
		hb, ok := decodeHeartbeat(m.Content)
		if !ok {
			continue
		}
		at := hb.time()
		if hb.TS == 0 {
			at = m.Timestamp
		}
		if r.MaxAge > 0 && r.now().Sub(at) > r.MaxAge {
			return Report{}, fmt.Errorf("%w: last one at %s", ErrStale, at.Format(time.RFC3339))
		}
		rep := Report{
			Source:    r.Name(),
			Reachable: true,
			Version:   hb.Version,
			FetchedAt: at,
		}
		if hb.Online != nil && hb.Max != nil {
			rep.Counts = countOf(*hb.Online, *hb.Max)
		}
		return rep, nil
	}
	return Report{}, fmt.Errorf("no heartbeat in the last %d messages of %s", limit, r.ChannelID)
}

// decodeHeartbeat accepts the JSON bare or inside a ``` code fence.
func decodeHeartbeat(content string) (Heartbeat, bool) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return Heartbeat{}, false
	}
	var hb Heartbeat
	if err := sonic.UnmarshalString(s, &hb); err != nil {
		return Heartbeat{}, false
	}
	if hb.Online == nil && hb.Max == nil && hb.TS == 0 {
		return Heartbeat{}, false
	}
	return hb, true
}
