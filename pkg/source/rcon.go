package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xrjr/mcutils/pkg/rcon"
)

// rconConn is the part of an RCON client the source uses.
type rconConn interface {
	Authenticate(password string) (bool, error)
	Command(cmd string) (string, error)
	Close()
}

type mcutilsConn struct{ c *rcon.RCONClient }

func (m mcutilsConn) Authenticate(pw string) (bool, error) { return m.c.Authenticate(pw) }
func (m mcutilsConn) Command(cmd string) (string, error)   { return m.c.Command(cmd) }
func (m mcutilsConn) Close()                               { m.c.Disconnect() }

// dialMCUtils connects with timeout as both the dial and the read timeout.
// Zero keeps the client defaults.
func dialMCUtils(host string, port int, timeout time.Duration) (rconConn, error) {
	c := rcon.NewClient(host, port)
	if timeout > 0 {
		c.DialTimeout, c.ReadTimeout = timeout, timeout
	}
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return mcutilsConn{c}, nil
}

// RCON runs "list" over the RCON protocol.
type RCON struct {
	Host     string
	Port     int
	Password string
	// Timeout bounds the dial and each read.
	Timeout time.Duration

	dial func(host string, port int, timeout time.Duration) (rconConn, error)
}

var errAuth = errors.New("rcon: authentication rejected, check RCON_PASSWORD")

func (r *RCON) Name() string { return string(KindRCON) }

// Raw returns the answer to "list" as sent by the server.
func (r *RCON) Raw(ctx context.Context) (string, error) {
	return async(ctx, func() (string, error) {
		conn, err := r.dial(r.Host, r.Port, r.Timeout)
		if err != nil {
			return "", fmt.Errorf("rcon connect %s:%d: %w", r.Host, r.Port, err)
		}
		defer conn.Close()
		ok, err := conn.Authenticate(r.Password)
		if err != nil {
			return "", fmt.Errorf("rcon auth: %w", err)
		}
		if !ok {
			return "", errAuth
		}
		out, err := conn.Command("list")
		if err != nil {
			return "", fmt.Errorf("rcon list: %w", err)
		}
		return out, nil
	})
}

func (r *RCON) Fetch(ctx context.Context) (Report, error) {
	started := time.Now()
	raw, err := r.Raw(ctx)
	if err != nil {
		return Report{}, err
	}
	return textReport(r.Name(), raw, started), nil
}
