package source

import (
	"context"
	"time"

	"github.com/masahide/mcpanel/pkg/telnet"
)

// Telnet runs TELNET_COMMAND on a telnet console.
type Telnet struct {
	Console *telnet.Console
}

func (t *Telnet) Name() string { return string(KindTelnet) }

func (t *Telnet) Raw(ctx context.Context) (string, error) {
	return t.Console.Exec(ctx, t.Console.TelnetCommand)
}

func (t *Telnet) Fetch(ctx context.Context) (Report, error) {
	started := time.Now()
	raw, err := t.Raw(ctx)
	if err != nil {
		return Report{}, err
	}
	return textReport(t.Name(), raw, started), nil
}
