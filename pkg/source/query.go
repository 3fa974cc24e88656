package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/xrjr/mcutils/pkg/ping"
)

// pingStatus is the server list ping answer, reduced to what the panel shows.
type pingStatus struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Online int `json:"online"`
		Max    int `json:"max"`
	} `json:"players"`
}

// pingMCUtils returns the ping properties re-encoded as JSON. A zero
// timeout keeps the client defaults.
func pingMCUtils(host string, port int, timeout time.Duration) ([]byte, time.Duration, error) {
	c := ping.NewClient(host, port)
	if timeout > 0 {
		c.DialTimeout, c.ReadTimeout = timeout, timeout
	}
	if err := c.Connect(); err != nil {
		return nil, 0, err
	}
	defer c.Disconnect()
	hs, err := c.Handshake()
	if err != nil {
		return nil, 0, err
	}
	latency, err := c.Ping()
	// some Forge servers answer the ping with a second handshake packet
	if err != nil && !errors.Is(err, ping.ErrInvalidPacketType) {
		return nil, 0, err
	}
	props := hs.Properties
	b, err := sonic.Marshal(props)
	if err != nil {
		return nil, 0, fmt.Errorf("encode ping properties: %w", err)
	}
	return b, time.Duration(latency) * time.Millisecond, nil
}

// Query uses the server list ping on the game port.
type Query struct {
	Host string
	Port int
	// Timeout bounds the dial and each read.
	Timeout time.Duration

	ping func(host string, port int, timeout time.Duration) ([]byte, time.Duration, error)
}

func (q *Query) Name() string { return string(KindQuery) }

func (q *Query) Fetch(ctx context.Context) (Report, error) {
	type pinged struct {
		body    []byte
		latency time.Duration
	}
	res, err := async(ctx, func() (pinged, error) {
		b, l, err := q.ping(q.Host, q.Port, q.Timeout)
		return pinged{b, l}, err
	})
	if err != nil {
		return Report{}, fmt.Errorf("ping %s:%d: %w", q.Host, q.Port, err)
	}
	var st pingStatus
	if err := sonic.Unmarshal(res.body, &st); err != nil {
		return Report{}, fmt.Errorf("decode ping answer: %w", err)
	}
	return Report{
		Source:    q.Name(),
		Counts:    countOf(st.Players.Online, st.Players.Max),
		Reachable: true,
		Version:   st.Version.Name,
		Latency:   res.latency,
		FetchedAt: time.Now(),
	}, nil
}
