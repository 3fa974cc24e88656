package metrics

import (
	"sync"
	"time"

	"github.com/mackerelio/mackerel-client-go"
	"github.com/masahide/mcpanel/pkg/mcstatus"
)

const (
	graphName = "custom.mcpanel.players"
	// per request; the client default is much longer than a poll interval
	postTimeout = 10 * time.Second
)

// MackerelClient is the part of *mackerel.Client used here.
type MackerelClient interface {
	CreateGraphDefs([]*mackerel.GraphDefsParam) error
	PostHostMetricValuesByHostID(hostID string, metricValues []*mackerel.MetricValue) error
}

// Mackerel posts player counts as host metrics.
type Mackerel struct {
	HostID string
	Client MackerelClient

	mu       sync.Mutex
	hasGraph bool
}

// NewMackerel returns nil unless both the API key and the host id are set.
func NewMackerel(e Options) *Mackerel {
	if e.MackerelAPIKey == "" || e.MackerelHostID == "" {
		return nil
	}
	c := mackerel.NewClient(e.MackerelAPIKey)
	c.HTTPClient.Timeout = postTimeout
	return &Mackerel{HostID: e.MackerelHostID, Client: c}
}

func graphDefs() []*mackerel.GraphDefsParam {
	return []*mackerel.GraphDefsParam{{
		Name:        graphName,
		DisplayName: "Minecraft players",
		Unit:        "integer",
		Metrics: []*mackerel.GraphDefsMetric{
			{Name: graphName + ".online", DisplayName: "online", IsStacked: false},
			{Name: graphName + ".max", DisplayName: "max", IsStacked: false},
		},
	}}
}

func createMetrics(c mcstatus.PlayerCount, now time.Time) []*mackerel.MetricValue {
	return []*mackerel.MetricValue{
		{Name: graphName + ".online", Time: now.Unix(), Value: float64(*c.Online)},
		{Name: graphName + ".max", Time: now.Unix(), Value: float64(*c.Max)},
	}
}

// ensureGraph creates the graph definition until it succeeds once.
func (m *Mackerel) ensureGraph() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasGraph {
		return nil
	}
	if err := m.Client.CreateGraphDefs(graphDefs()); err != nil {
		return err
	}
	m.hasGraph = true
	return nil
}

// Post sends known counts. Unknown counts are skipped.
func (m *Mackerel) Post(c mcstatus.PlayerCount, now time.Time) error {
	if !c.Known() {
		return nil
	}
	if err := m.ensureGraph(); err != nil {
		return err
	}
	return m.Client.PostHostMetricValuesByHostID(m.HostID, createMetrics(c, now))
}
