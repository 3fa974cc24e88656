// Package source queries a Minecraft server for its player counts through
// one of several backends.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/mcstatus"
	"github.com/masahide/mcpanel/pkg/telnet"
)

// Kind selects the backend.
type Kind string

const (
	KindRCON   Kind = "rcon"   // RCON "list", free text
	KindQuery  Kind = "query"  // server list ping, structured
	KindProbe  Kind = "probe"  // TCP reachability only
	KindRelay  Kind = "relay"  // heartbeat JSON posted to a Discord channel
	KindAPI    Kind = "api"    // third-party HTTP status API
	KindTelnet Kind = "telnet" // telnet console, free text
)

var Kinds = []Kind{KindRCON, KindQuery, KindProbe, KindRelay, KindAPI, KindTelnet}

func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

var (
	// ErrUnsupported is returned by New for an unknown kind.
	ErrUnsupported = errors.New("unsupported status source")
	// ErrStale is returned by the relay source when the newest heartbeat
	// is older than the allowed age.
	ErrStale = errors.New("heartbeat is stale")
)

// Report is the result of one status query.
type Report struct {
	Source    string               `json:"source"`
	Counts    mcstatus.PlayerCount `json:"counts"`
	Match     mcstatus.Match       `json:"-"`
	Reachable bool                 `json:"reachable"`
	Version   string               `json:"version,omitempty"`
	// Raw is the cleaned console text, for text based sources.
	Raw       string        `json:"-"`
	Latency   time.Duration `json:"-"`
	FetchedAt time.Time     `json:"fetchedAt"`
	// Error is set on reports built from a failed fetch.
	Error string `json:"error,omitempty"`
}

// Failed is the report of a fetch that returned err.
func Failed(name string, err error, at time.Time) Report {
	return Report{Source: name, Counts: mcstatus.Unknown(), FetchedAt: at, Error: err.Error()}
}

// Source fetches the current status of the server.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Report, error)
}

// RawSource is implemented by sources that answer with console text.
type RawSource interface {
	Raw(ctx context.Context) (string, error)
}

// MessageLister reads recent channel messages. *discordgo.Session implements it.
type MessageLister interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

type Env struct {
	StatusSource Kind `envconfig:"STATUS_SOURCE" default:"rcon"`

	RCONHost     string `envconfig:"RCON_HOST"`
	RCONPort     int    `envconfig:"RCON_PORT" default:"25575"`
	RCONPassword string `envconfig:"RCON_PASSWORD"`

	// QUERY_HOST defaults to the host part of MC_ADDRESS.
	QueryHost string `envconfig:"QUERY_HOST"`
	QueryPort int    `envconfig:"QUERY_PORT" default:"25565"`

	RelayChannelID string        `envconfig:"RELAY_CHANNEL_ID"`
	RelayMaxAge    time.Duration `envconfig:"RELAY_MAX_AGE" default:"5m"`
	RelayScan      int           `envconfig:"RELAY_SCAN" default:"20"`

	StatusAPIURL    string `envconfig:"STATUS_API_URL"`
	StatusAPIUser   string `envconfig:"STATUS_API_USER"`
	StatusAPISecret string `envconfig:"STATUS_API_SECRET"`

	telnet.Env
}

// Validate checks the settings the selected kind needs.
func (e Env) Validate() error {
	var missing []string
	need := func(v, name string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	switch e.StatusSource {
	case KindRCON:
		need(e.RCONHost, "RCON_HOST")
		need(e.RCONPassword, "RCON_PASSWORD")
	case KindQuery, KindProbe:
		need(e.QueryHost, "QUERY_HOST or MC_ADDRESS")
	case KindRelay:
		need(e.RelayChannelID, "RELAY_CHANNEL_ID")
	case KindAPI:
		need(e.StatusAPIURL, "STATUS_API_URL")
	case KindTelnet:
		need(e.TelnetAddr, "TELNET_ADDR")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupported, e.StatusSource)
	}
	if len(missing) > 0 {
		return fmt.Errorf("status source %s: missing %v", e.StatusSource, missing)
	}
	return nil
}

// Deps are collaborators some kinds need.
type Deps struct {
	Messages   MessageLister
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New builds the Source selected by e.StatusSource.
func New(e Env, d Deps) (Source, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	switch e.StatusSource {
	case KindRCON:
		return &RCON{Host: e.RCONHost, Port: e.RCONPort, Password: e.RCONPassword, Timeout: d.Timeout, dial: dialMCUtils}, nil
	case KindQuery:
		return &Query{Host: e.QueryHost, Port: e.QueryPort, Timeout: d.Timeout, ping: pingMCUtils}, nil
	case KindProbe:
		return &Probe{Addr: fmt.Sprintf("%s:%d", e.QueryHost, e.QueryPort), Timeout: d.Timeout}, nil
	case KindRelay:
		if d.Messages == nil {
			return nil, errors.New("relay source needs a Discord session")
		}
		return &Relay{ChannelID: e.RelayChannelID, MaxAge: e.RelayMaxAge, Scan: e.RelayScan, Messages: d.Messages, now: time.Now}, nil
	case KindAPI:
		client := d.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: d.Timeout}
		}
		return &API{URL: e.StatusAPIURL, User: e.StatusAPIUser, Secret: e.StatusAPISecret, Client: client}, nil
	case KindTelnet:
		return &Telnet{Console: &telnet.Console{Env: e.Env, Timeout: d.Timeout}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, e.StatusSource)
}

// async runs fn in its own goroutine and gives up waiting when ctx is done.
// A call that outlives ctx keeps running until it finishes on its own.
func async[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// textReport turns console text into a Report.
func textReport(name, raw string, started time.Time) Report {
	counts, match := mcstatus.ParseMatch(raw)
	now := time.Now()
	return Report{
		Source:    name,
		Counts:    counts,
		Match:     match,
		Reachable: true,
		Raw:       mcstatus.Clean(raw),
		Latency:   now.Sub(started),
		FetchedAt: now,
	}
}

// countOf treats negative values as an unreadable answer.
func countOf(online, max int) mcstatus.PlayerCount {
	if online < 0 || max < 0 {
		return mcstatus.Unknown()
	}
	return mcstatus.Count(online, max)
}
