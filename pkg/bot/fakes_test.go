package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/mcstatus"
	"github.com/masahide/mcpanel/pkg/panel"
	"github.com/masahide/mcpanel/pkg/source"
)

type fakeDiscord struct {
	mu sync.Mutex

	next     int
	messages map[string]map[string]*discordgo.Message
	sendErr  error
	// blockSend makes sends wait until their request context is done.
	blockSend bool
	// registerDelay slows down command registration.
	registerDelay time.Duration

	registered map[string][]*discordgo.ApplicationCommand
	responses  []*discordgo.InteractionResponse
	edits      []*discordgo.WebhookEdit
	statuses   []discordgo.UpdateStatusData
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{
		messages:   map[string]map[string]*discordgo.Message{},
		registered: map[string][]*discordgo.ApplicationCommand{},
	}
}

func (f *fakeDiscord) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[channelID][messageID]; ok {
		return m, nil
	}
	return nil, errors.New("unknown message")
}

// requestContext is the context a discordgo REST call would run with.
func requestContext(opts []discordgo.RequestOption) context.Context {
	cfg := &discordgo.RequestConfig{Request: httptest.NewRequest(http.MethodGet, "/", nil)}
	for _, o := range opts {
		o(cfg)
	}
	return cfg.Request.Context()
}

func (f *fakeDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	block := f.blockSend
	f.mu.Unlock()
	if block {
		ctx := requestContext(opts)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.next++
	m := &discordgo.Message{ID: fmt.Sprintf("m%d", f.next), ChannelID: channelID, Embeds: data.Embeds}
	if f.messages[channelID] == nil {
		f.messages[channelID] = map[string]*discordgo.Message{}
	}
	f.messages[channelID][m.ID] = m
	return m, nil
}

func (f *fakeDiscord) ChannelMessageEditComplex(e *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[e.Channel][e.ID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	m.Embeds = *e.Embeds
	return m, nil
}

func (f *fakeDiscord) ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	delay := f.registerDelay
	f.mu.Unlock()
	time.Sleep(delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[guildID] = cmds
	return cmds, nil
}

func (f *fakeDiscord) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, opts ...discordgo.RequestOption) error {
	if err := requestContext(opts).Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeDiscord) InteractionResponseEdit(_ *discordgo.Interaction, e *discordgo.WebhookEdit, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := requestContext(opts).Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, e)
	return &discordgo.Message{}, nil
}

func (f *fakeDiscord) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, usd)
	return nil
}

// lastText is the content of the last interaction edit.
func (f *fakeDiscord) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 || f.edits[len(f.edits)-1].Content == nil {
		t.Fatalf("no text edit, edits=%v", f.edits)
	}
	return *f.edits[len(f.edits)-1].Content
}

type fakeSource struct {
	rep source.Report
	err error
}

func (f *fakeSource) Name() string { return "rcon" }
func (f *fakeSource) Fetch(context.Context) (source.Report, error) {
	return f.rep, f.err
}

type fakeRawSource struct {
	fakeSource
	raw    string
	rawErr error
}

func (f *fakeRawSource) Raw(context.Context) (string, error) { return f.raw, f.rawErr }

type fakeMetrics struct {
	observed []mcstatus.PlayerCount
	failed   int
}

func (m *fakeMetrics) Observe(_ context.Context, _ string, c mcstatus.PlayerCount) {
	m.observed = append(m.observed, c)
}
func (m *fakeMetrics) PollFailed(context.Context, string) { m.failed++ }

func testConfig() Config {
	c := Config{
		ClientID:      "app1",
		MCAddress:     "play.aurora.example:25565",
		MCName:        "Aurora SMP",
		CommandPolicy: PolicyPublic,
		RegisterScope: ScopeGlobal,
		LocationKey:   LocationChannel,
		QueryTimeout:  time.Second,
		InviteURL:     "https://discord.gg/abc",
		BarWidth:      14,
	}
	c.StatusSource = source.KindRCON
	return c
}

func newTestBot(t *testing.T, cfg Config, src source.Source) (*Bot, *fakeDiscord) {
	t.Helper()
	dg := newFakeDiscord()
	store := panel.NewStore(filepath.Join(t.TempDir(), "panel_state.json"))
	b := New(context.Background(), cfg, dg, NewPoller(src, cfg.QueryTimeout, nil, false), store, nil)
	return b, dg
}

func command(name, guildID, channelID string, perms int64) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   guildID,
		ChannelID: channelID,
		Member:    &discordgo.Member{Permissions: perms},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name},
	}
}
