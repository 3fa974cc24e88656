// Package healthapi serves the liveness endpoints a hosting platform probes,
// plus the last polled status and the stored panels.
package healthapi

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/masahide/mcpanel/pkg/panel"
	"github.com/masahide/mcpanel/pkg/source"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var docsFS embed.FS

const serviceName = "mcpanel"

type Config struct {
	Port int `envconfig:"PORT" default:"3000"`

	// e.g. "https://bot.example.com,https://bot2.example.com"
	OpenAPIServers []string `envconfig:"OPENAPI_SERVERS"`
	// used when OpenAPIServers is empty
	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	GlobalTimeout     time.Duration `envconfig:"GLOBAL_TIMEOUT" default:"30s"`

	// /status and /panels require one of these when either is set.
	AuthBearerToken string `envconfig:"AUTH_BEARER_TOKEN"`
	APIKey          string `envconfig:"API_KEY"`
}

// StatusProvider returns the last polled report; ok is false before the
// first poll finished.
type StatusProvider interface {
	LastReport() (rep source.Report, ok bool)
}

// PanelLister reads the stored panels. *panel.Store implements it.
type PanelLister interface {
	Load() (map[string]panel.Record, error)
}

type Server struct {
	Config
	ServerName string
	Status     StatusProvider
	Panels     PanelLister
}

// --- DTOs ---

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

type StatusResponse struct {
	Source    string    `json:"source"`
	Online    *int      `json:"online"`
	Max       *int      `json:"max"`
	Known     bool      `json:"known"`
	Match     string    `json:"match"`
	Reachable bool      `json:"reachable"`
	Version   string    `json:"version,omitempty"`
	LatencyMs int64     `json:"latencyMs,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
	Error     string    `json:"error,omitempty"`
}

type PanelsResponse struct {
	Panels map[string]panel.Record `json:"panels"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg}})
}

// --- handlers ---

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s bot OK", s.ServerName)
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true, Service: serviceName})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.Status.LastReport()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "no status has been polled yet")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Source:    rep.Source,
		Online:    rep.Counts.Online,
		Max:       rep.Counts.Max,
		Known:     rep.Counts.Known(),
		Match:     rep.Match.String(),
		Reachable: rep.Reachable,
		Version:   rep.Version,
		LatencyMs: rep.Latency.Milliseconds(),
		FetchedAt: rep.FetchedAt,
		Error:     rep.Error,
	})
}

func (s *Server) panels(w http.ResponseWriter, r *http.Request) {
	panels, err := s.Panels.Load()
	if err != nil {
		// a corrupt state file reads as empty
		log.Printf("[http] Error loading state: %s", err)
	}
	if panels == nil {
		panels = map[string]panel.Record{}
	}
	writeJSON(w, http.StatusOK, PanelsResponse{Panels: panels})
}

// Routes returns the handler with all middlewares applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.root)
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("GET /panels", s.panels)
	mux.HandleFunc("GET /docs/openapi.yaml", openapiYAMLHandler(s.Config))

	return chain(mux,
		recoverMW,
		logMW,
		authMW(s.AuthBearerToken, s.APIKey),
		timeoutMW(s.GlobalTimeout),
	)
}

// openapiYAMLHandler serves the embedded document with servers resolved
// from the config or the request.
func openapiYAMLHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := docsFS.ReadFile("openapi.yaml")
		if err != nil {
			http.Error(w, fmt.Sprintf("openapi not found: %v", err), http.StatusInternalServerError)
			return
		}
		var doc map[string]any
		if err := yaml.Unmarshal(b, &doc); err != nil {
			http.Error(w, fmt.Sprintf("openapi yaml parse error: %v", err), http.StatusInternalServerError)
			return
		}
		srvs := resolveServers(cfg, r)
		servers := make([]map[string]any, 0, len(srvs))
		for _, u := range srvs {
			servers = append(servers, map[string]any{"url": u})
		}
		if len(servers) > 0 {
			doc["servers"] = servers
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			http.Error(w, fmt.Sprintf("openapi yaml marshal error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func resolveServers(cfg Config, r *http.Request) []string {
	var out []string
	for _, s := range cfg.OpenAPIServers {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	if u := strings.TrimSpace(cfg.PublicBaseURL); u != "" {
		return []string{u}
	}
	scheme := "http"
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		scheme = xf
	} else if r.TLS != nil {
		scheme = "https"
	}
	return []string{scheme + "://" + r.Host}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(s.Port)),
		Handler:           s.Routes(),
		ReadHeaderTimeout: s.ReadHeaderTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[http] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("[http] shutting down...")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
