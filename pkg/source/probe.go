package source

import (
	"context"
	"net"
	"time"

	"github.com/masahide/mcpanel/pkg/mcstatus"
)

// Probe only checks that the game port accepts TCP connections. Counts are
// always unknown.
type Probe struct {
	Addr    string
	Timeout time.Duration
}

func (p *Probe) Name() string { return string(KindProbe) }

func (p *Probe) Fetch(ctx context.Context) (Report, error) {
	started := time.Now()
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return Report{}, err
	}
	conn.Close()
	now := time.Now()
	return Report{
		Source:    p.Name(),
		Counts:    mcstatus.Unknown(),
		Reachable: true,
		Latency:   now.Sub(started),
		FetchedAt: now,
	}, nil
}
