// Package bot runs the Discord side: slash commands, presence and the
// scheduled panel refresh.
package bot

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/panel"
	"github.com/robfig/cron"
)

// restTimeout bounds Discord REST calls made outside a status query.
const restTimeout = 15 * time.Second

// Discord is the part of *discordgo.Session the bot uses.
type Discord interface {
	panel.Messenger
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

type Bot struct {
	cfg    Config
	dg     Discord
	poller *Poller
	store  *panel.Store
	rec    *panel.Reconciler

	ctx       context.Context
	readyOnce sync.Once
	// closed when the startup work triggered by Ready has finished
	started chan struct{}

	mu      sync.Mutex
	stopped bool
	cron    *cron.Cron
}

// New wires the bot. obs may be nil.
func New(ctx context.Context, cfg Config, dg Discord, poller *Poller, store *panel.Store, obs panel.Observer) *Bot {
	return &Bot{
		cfg:    cfg,
		dg:     dg,
		poller: poller,
		store:  store,
		rec: &panel.Reconciler{
			Store:     store,
			Messenger: dg,
			Options:   cfg.PanelOptions(),
			Observer:  obs,
		},
		ctx:     ctx,
		started: make(chan struct{}),
	}
}

// Ready is the discordgo Ready handler. Gateway reconnects fire Ready
// again; startup work runs only on the first one.
func (b *Bot) Ready(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[bot] ready as %s", r.User.String())
	b.readyOnce.Do(func() {
		go b.start()
	})
}

func (b *Bot) start() {
	defer close(b.started)
	if err := b.registerCommands(b.ctx); err != nil {
		log.Printf("[bot] Error registering commands: %s", err)
	}
	b.refreshPanels()
	b.updatePresence()
	if err := b.startSchedule(); err != nil {
		log.Printf("[bot] Error starting scheduler: %s", err)
	}
}

// InteractionCreate is the discordgo InteractionCreate handler.
func (b *Bot) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handle(b.ctx, i.Interaction)
}

// Stop stops the scheduler, or keeps it from starting when startup is
// still running. Running jobs finish on their own.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.cron != nil {
		b.cron.Stop()
		b.cron = nil
	}
}

func (b *Bot) startSchedule() error {
	c := cron.New()
	if err := c.AddFunc("@every "+b.cfg.StatusInterval().String(), b.refreshPanels); err != nil {
		return err
	}
	if err := c.AddFunc("@every "+b.cfg.PresenceInterval().String(), b.updatePresence); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		log.Println("[bot] stopped during startup, scheduler not started")
		return nil
	}
	c.Start()
	b.cron = c
	log.Printf("[bot] panel refresh every %s, presence every %s", b.cfg.StatusInterval(), b.cfg.PresenceInterval())
	return nil
}

// refreshPanels polls once and updates every stored panel.
func (b *Bot) refreshPanels() {
	keys, err := b.store.Keys()
	if err != nil {
		log.Printf("[panel] Error loading state: %s", err)
	}
	if len(keys) == 0 {
		return
	}
	rep := b.poller.Poll(b.ctx)
	ctx, cancel := context.WithTimeout(b.ctx, restTimeout*time.Duration(len(keys)))
	defer cancel()
	results, err := b.rec.RefreshAll(ctx, rep.Counts)
	if err != nil {
		log.Printf("[panel] Error refreshing panels: %s", err)
	}
	if b.cfg.Debug {
		for _, r := range results {
			log.Printf("[panel] %s %s in channel %s (message %s)", r.Key, r.Action, r.ChannelID, r.MessageID)
		}
	}
}
