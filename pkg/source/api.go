package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/masahide/mcpanel/pkg/mcstatus"
)

// apiStatus covers both mcsrvstat.us ("version": "1.21") and mcstatus.io
// ("version": {"name_clean": "1.21"}) answers.
type apiStatus struct {
	Online  bool `json:"online"`
	Players *struct {
		Online *int `json:"online"`
		Max    *int `json:"max"`
	} `json:"players"`
	Version any `json:"version"`
}

func (s apiStatus) version() string {
	switch v := s.Version.(type) {
	case string:
		return v
	case map[string]any:
		for _, k := range []string{"name_clean", "name", "name_raw"} {
			if n, ok := v[k].(string); ok && n != "" {
				return n
			}
		}
	}
	return ""
}

// API polls a JSON status endpoint over HTTP.
type API struct {
	URL    string
	User   string
	Secret string
	Client *http.Client
}

func (a *API) Name() string { return string(KindAPI) }

func (a *API) Fetch(ctx context.Context) (Report, error) {
	var st apiStatus
	latency, err := a.getJSON(ctx, &st)
	if err != nil {
		return Report{}, err
	}
	rep := Report{
		Source:    a.Name(),
		Counts:    mcstatus.Unknown(),
		Reachable: st.Online,
		Version:   st.version(),
		Latency:   latency,
		FetchedAt: time.Now(),
	}
	if st.Online && st.Players != nil && st.Players.Online != nil && st.Players.Max != nil {
		rep.Counts = countOf(*st.Players.Online, *st.Players.Max)
	}
	return rep, nil
}

func (a *API) getJSON(ctx context.Context, v any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if a.User != "" {
		req.Header.Set("X-API-User", a.User)
	}
	if a.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+a.Secret)
	}
	start := time.Now()
	resp, err := a.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return latency, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return latency, fmt.Errorf("upstream %s status=%d body=%s", a.URL, resp.StatusCode, string(b))
	}
	if err := sonic.Unmarshal(b, v); err != nil {
		return latency, fmt.Errorf("decode %s: %w", a.URL, err)
	}
	return latency, nil
}
