package source

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
	"github.com/masahide/mcpanel/pkg/mcstatus"
)

type fakeRCON struct {
	authOK bool
	out    string
	cmds   []string
	closed bool
}

func (f *fakeRCON) Authenticate(string) (bool, error) { return f.authOK, nil }
func (f *fakeRCON) Command(cmd string) (string, error) {
	f.cmds = append(f.cmds, cmd)
	return f.out, nil
}
func (f *fakeRCON) Close() { f.closed = true }

func TestRCONFetch(t *testing.T) {
	t.Parallel()

	conn := &fakeRCON{authOK: true, out: "§6There are §c3§6 of a max of §c10§6 players online: Alex"}
	r := &RCON{Host: "mc", Port: 25575, Password: "pw", dial: func(string, int, time.Duration) (rconConn, error) { return conn, nil }}

	rep, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if diff := cmp.Diff(mcstatus.Count(3, 10), rep.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if rep.Match != mcstatus.MatchVanilla || !rep.Reachable || rep.Source != "rcon" {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Raw != "There are 3 of a max of 10 players online: Alex" {
		t.Fatalf("raw = %q", rep.Raw)
	}
	if diff := cmp.Diff([]string{"list"}, conn.cmds); diff != "" {
		t.Fatalf("commands (-want +got):\n%s", diff)
	}
	if !conn.closed {
		t.Fatalf("connection not closed")
	}
}

func TestRCONAuthRejected(t *testing.T) {
	t.Parallel()

	conn := &fakeRCON{authOK: false}
	r := &RCON{dial: func(string, int, time.Duration) (rconConn, error) { return conn, nil }}
	if _, err := r.Fetch(context.Background()); !errors.Is(err, errAuth) {
		t.Fatalf("err = %v, want errAuth", err)
	}
	if len(conn.cmds) != 0 {
		t.Fatalf("command sent after failed auth: %v", conn.cmds)
	}
}

func TestRCONTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	r := &RCON{dial: func(string, int, time.Duration) (rconConn, error) {
		<-release
		return nil, errors.New("late")
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Fetch(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestQueryFetch(t *testing.T) {
	t.Parallel()

	body := `{"version":{"name":"Paper 1.21.1","protocol":767},"players":{"max":50,"online":12,"sample":[]},"description":{"text":"hi"}}`
	q := &Query{Host: "mc", Port: 25565, ping: func(string, int, time.Duration) ([]byte, time.Duration, error) {
		return []byte(body), 42 * time.Millisecond, nil
	}}
	rep, err := q.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if diff := cmp.Diff(mcstatus.Count(12, 50), rep.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if rep.Version != "Paper 1.21.1" || rep.Latency != 42*time.Millisecond {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestQueryPingError(t *testing.T) {
	t.Parallel()

	q := &Query{ping: func(string, int, time.Duration) ([]byte, time.Duration, error) {
		return nil, 0, errors.New("connection refused")
	}}
	if _, err := q.Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v", err)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p := &Probe{Addr: ln.Addr().String(), Timeout: time.Second}
	rep, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !rep.Reachable || rep.Counts.Known() {
		t.Fatalf("unexpected report %+v", rep)
	}
}

type fakeMessages struct {
	msgs []*discordgo.Message
	err  error
}

func (f *fakeMessages) ChannelMessages(string, int, string, string, string, ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return f.msgs, f.err
}

func TestRelayFetch(t *testing.T) {
	t.Parallel()

	now := time.Unix(1723890000, 0)
	tests := []struct {
		name    string
		msgs    []string
		want    mcstatus.PlayerCount
		version string
		wantErr error
	}{
		{
			name: "newest-valid-wins",
			msgs: []string{
				"server restarting",
				`{"online":4,"max":20,"version":"1.21.1","ts":1723889990}`,
				`{"online":9,"max":20,"version":"1.21.1","ts":1723889900}`,
			},
			want:    mcstatus.Count(4, 20),
			version: "1.21.1",
		},
		{
			name:    "code-fence",
			msgs:    []string{"```json\n{\"online\":1,\"max\":8,\"ts\":1723889999000}\n```"},
			want:    mcstatus.Count(1, 8),
			version: "",
		},
		{
			name:    "stale",
			msgs:    []string{`{"online":4,"max":20,"ts":1723880000}`},
			wantErr: ErrStale,
		},
		{
			name:    "missing-counts",
			msgs:    []string{`{"version":"1.20","ts":1723889990}`},
			want:    mcstatus.Unknown(),
			version: "1.20",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msgs []*discordgo.Message
			for _, c := range tt.msgs {
				msgs = append(msgs, &discordgo.Message{Content: c, Timestamp: now})
			}
			r := &Relay{ChannelID: "relay", MaxAge: 5 * time.Minute, Messages: &fakeMessages{msgs: msgs}, now: func() time.Time { return now }}
			rep, err := r.Fetch(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if diff := cmp.Diff(tt.want, rep.Counts); diff != "" {
				t.Fatalf("counts mismatch (-want +got):\n%s", diff)
			}
			if rep.Version != tt.version {
				t.Fatalf("version = %q, want %q", rep.Version, tt.version)
			}
		})
	}
}

func TestRelayNoHeartbeat(t *testing.T) {
	t.Parallel()

	r := &Relay{ChannelID: "relay", Messages: &fakeMessages{msgs: []*discordgo.Message{{Content: "hello"}}}, now: time.Now}
	if _, err := r.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAPIFetch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		status    int
		want      mcstatus.PlayerCount
		version   string
		reachable bool
		wantErr   bool
	}{
		{"mcsrvstat", `{"online":true,"players":{"online":5,"max":30},"version":"1.21.1"}`, 200, mcstatus.Count(5, 30), "1.21.1", true, false},
		{"mcstatus-io", `{"online":true,"players":{"online":0,"max":10},"version":{"name_raw":"§aPaper","name_clean":"Paper 1.20.4"}}`, 200, mcstatus.Count(0, 10), "Paper 1.20.4", true, false},
		{"offline", `{"online":false}`, 200, mcstatus.Unknown(), "", false, false},
		{"upstream-error", `oops`, 502, mcstatus.Unknown(), "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
					t.Errorf("Authorization = %q", got)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := &API{URL: srv.URL, Secret: "s3cret", Client: srv.Client()}
			rep, err := a.Fetch(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if diff := cmp.Diff(tt.want, rep.Counts); diff != "" {
				t.Fatalf("counts mismatch (-want +got):\n%s", diff)
			}
			if rep.Version != tt.version || rep.Reachable != tt.reachable {
				t.Fatalf("unexpected report %+v", rep)
			}
		})
	}
}

func TestEnvValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     Env
		wantErr bool
	}{
		{"rcon-ok", Env{StatusSource: KindRCON, RCONHost: "mc", RCONPassword: "pw"}, false},
		{"rcon-missing-password", Env{StatusSource: KindRCON, RCONHost: "mc"}, true},
		{"query-ok", Env{StatusSource: KindQuery, QueryHost: "mc"}, false},
		{"probe-missing-host", Env{StatusSource: KindProbe}, true},
		{"relay-missing-channel", Env{StatusSource: KindRelay}, true},
		{"api-ok", Env{StatusSource: KindAPI, StatusAPIURL: "https://api.mcsrvstat.us/3/mc"}, false},
		{"unknown", Env{StatusSource: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := New(Env{StatusSource: "ftp"}, Deps{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if _, err := New(Env{StatusSource: KindRelay, RelayChannelID: "c"}, Deps{}); err == nil {
		t.Fatalf("relay without session must fail")
	}
	s, err := New(Env{StatusSource: KindProbe, QueryHost: "mc", QueryPort: 25565}, Deps{Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p, ok := s.(*Probe); !ok || p.Addr != "mc:25565" {
		t.Fatalf("New = %#v", s)
	}
}

func TestNewPassesQueryTimeout(t *testing.T) {
	t.Parallel()

	s, err := New(Env{StatusSource: KindRCON, RCONHost: "mc", RCONPort: 25575, RCONPassword: "pw"}, Deps{Timeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := s.(*RCON)
	var dialed time.Duration
	r.dial = func(_ string, _ int, timeout time.Duration) (rconConn, error) {
		dialed = timeout
		return &fakeRCON{authOK: true, out: "There are 0 of a max of 20 players online:"}, nil
	}
	if _, err := r.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if dialed != 3*time.Second {
		t.Fatalf("rcon dial timeout = %s, want 3s", dialed)
	}

	s, err = New(Env{StatusSource: KindQuery, QueryHost: "mc", QueryPort: 25565}, Deps{Timeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q := s.(*Query)
	var pinged time.Duration
	q.ping = func(_ string, _ int, timeout time.Duration) ([]byte, time.Duration, error) {
		pinged = timeout
		return []byte(`{"players":{"online":1,"max":2}}`), 0, nil
	}
	if _, err := q.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if pinged != 3*time.Second {
		t.Fatalf("ping timeout = %s, want 3s", pinged)
	}
}
