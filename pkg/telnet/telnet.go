// Package telnet talks to line-oriented game server consoles that accept a
// password and then plain text commands (Bukkit/Spigot remote consoles,
// 7 Days to Die, etc).
package telnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// ErrLoginFailed is returned when the console rejects the password.
var ErrLoginFailed = errors.New("telnet: login failed, check your password")

type Env struct {
	TelnetAddr string `envconfig:"TELNET_ADDR"`
	TelnetPass string `envconfig:"TELNET_PASS"`
	// Command sent after login.
	TelnetCommand string `envconfig:"TELNET_COMMAND" default:"list"`
	// Output is collected until a line containing this marker. Empty means
	// read until the console goes quiet.
	TelnetEndMarker string `envconfig:"TELNET_END_MARKER"`
}

// Console runs one command per connection.
type Console struct {
	Env
	Timeout time.Duration
	// Quiet is how long the console may stay silent before the output is
	// considered complete when no end marker is configured.
	Quiet time.Duration
}

const (
	defaultTimeout = 10 * time.Second
	defaultQuiet   = 500 * time.Millisecond
)

type session struct {
	deadline time.Time
	r        *bufio.Reader
	w        *bufio.Writer
	conn     net.Conn
}

func (t *Console) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return defaultTimeout
}

func (t *Console) connect(ctx context.Context) (*session, error) {
	d := net.Dialer{Timeout: t.timeout()}
	conn, err := d.DialContext(ctx, "tcp", t.TelnetAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	deadline := time.Now().Add(t.timeout())
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)
	s := &session{deadline: deadline, r: bufio.NewReader(conn), w: bufio.NewWriter(conn), conn: conn}

	if t.TelnetPass == "" {
		return s, nil
	}
	// password prompt
	if _, err := s.r.ReadString('\n'); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read initial response: %w", err)
	}
	fmt.Fprintf(s.w, "%s\n", t.TelnetPass)
	s.w.Flush()

	loginResp, err := s.r.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}
	if !strings.Contains(loginResp, "Logon successful") {
		conn.Close()
		return nil, ErrLoginFailed
	}
	return s, nil
}

func (s *session) close() error {
	// logout
	fmt.Fprintf(s.w, "exit\n")
	s.w.Flush()
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Exec logs in, runs cmd and returns its output lines joined by "\n".
// When the console echoes the command ("INF Executing command 'list' by
// Telnet ..."), only lines after the echo are returned.
func (t *Console) Exec(ctx context.Context, cmd string) (string, error) {
	s, err := t.connect(ctx)
	if err != nil {
		return "", err
	}
	defer s.close()

	fmt.Fprintf(s.w, "%s\n", cmd)
	if err := s.w.Flush(); err != nil {
		return "", fmt.Errorf("error sending cmd:'%s': %w", cmd, err)
	}

	echo := fmt.Sprintf("Executing command '%s'", cmd)
	var lines []string
	for {
		if t.TelnetEndMarker == "" && len(lines) > 0 {
			quiet := t.Quiet
			if quiet <= 0 {
				quiet = defaultQuiet
			}
			if dl := time.Now().Add(quiet); dl.Before(s.deadline) {
				s.conn.SetReadDeadline(dl)
			}
		}
		line, err := s.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.Contains(line, echo):
			// anything before the echo is the logon banner
			lines = lines[:0]
			s.conn.SetReadDeadline(s.deadline)
		case line != "":
			lines = append(lines, line)
		}
		if t.TelnetEndMarker != "" && strings.Contains(line, t.TelnetEndMarker) {
			break
		}
		if err != nil {
			var ne net.Error
			if t.TelnetEndMarker == "" && errors.As(err, &ne) && ne.Timeout() && len(lines) > 0 {
				break
			}
			if errors.Is(err, io.EOF) && len(lines) > 0 {
				break
			}
			return "", fmt.Errorf("error reading cmd:'%s' output: %w", cmd, err)
		}
	}
	return strings.Join(lines, "\n"), nil
}
