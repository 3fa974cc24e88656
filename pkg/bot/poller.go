package bot

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/masahide/mcpanel/pkg/mcstatus"
	"github.com/masahide/mcpanel/pkg/source"
)

// ErrNoRaw is returned by Poller.Raw for sources without console text.
var ErrNoRaw = errors.New("status source has no raw output")

// Metrics receives poll outcomes. *metrics.Recorder implements it.
type Metrics interface {
	Observe(ctx context.Context, source string, c mcstatus.PlayerCount)
	PollFailed(ctx context.Context, source string)
}

// countLog remembers the last logged count so unchanged counts are not
// logged again on every poll.
type countLog struct {
	mu   sync.Mutex
	last string
}

func (l *countLog) changed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key == l.last {
		return false
	}
	l.last = key
	return true
}

// Poller queries the status source. Failures become unknown counts; it
// never returns an error.
type Poller struct {
	src     source.Source
	timeout time.Duration
	metrics Metrics
	debug   bool

	counts countLog

	mu   sync.Mutex
	last source.Report
	has  bool
}

func NewPoller(src source.Source, timeout time.Duration, m Metrics, debug bool) *Poller {
	return &Poller{src: src, timeout: timeout, metrics: m, debug: debug}
}

func (p *Poller) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

// Poll runs one query.
func (p *Poller) Poll(ctx context.Context) source.Report {
	qctx, cancel := p.ctx(ctx)
	defer cancel()

	name := p.src.Name()
	rep, err := p.src.Fetch(qctx)
	if err != nil {
		log.Printf("[source] %s query failed: %s", name, err)
		rep = source.Failed(name, err, time.Now())
		if p.metrics != nil {
			p.metrics.PollFailed(ctx, name)
		}
	} else {
		if p.counts.changed(rep.Counts.String()) {
			log.Printf("[source] %s parsed %s match=%s", name, rep.Counts, rep.Match)
		}
		if p.debug {
			log.Printf("[source] %s report: %+v", name, rep)
		}
		if p.metrics != nil {
			p.metrics.Observe(ctx, name, rep.Counts)
		}
	}

	p.mu.Lock()
	p.last, p.has = rep, true
	p.mu.Unlock()
	return rep
}

// LastReport returns the result of the most recent Poll.
func (p *Poller) LastReport() (source.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.has
}

// Raw returns the console text of sources that have one.
func (p *Poller) Raw(ctx context.Context) (string, error) {
	rs, ok := p.src.(source.RawSource)
	if !ok {
		return "", ErrNoRaw
	}
	qctx, cancel := p.ctx(ctx)
	defer cancel()
	raw, err := rs.Raw(qctx)
	if err != nil {
		return "", err
	}
	return mcstatus.Clean(raw), nil
}

// HasRaw reports whether Raw can succeed for this source.
func (p *Poller) HasRaw() bool {
	_, ok := p.src.(source.RawSource)
	return ok
}
