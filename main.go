package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/bot"
	"github.com/masahide/mcpanel/pkg/healthapi"
	"github.com/masahide/mcpanel/pkg/metrics"
	"github.com/masahide/mcpanel/pkg/panel"
	"github.com/masahide/mcpanel/pkg/source"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg, err := bot.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %s", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meter, shutdownMeter, err := metrics.SetupMeter(ctx, cfg.Options)
	if err != nil {
		log.Fatalf("Error setting up metrics: %s", err)
	}
	rec, err := metrics.NewRecorder(meter, cfg.MCName, metrics.NewMackerel(cfg.Options))
	if err != nil {
		log.Fatalf("Error creating instruments: %s", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Error creating Discord session: %s", err)
	}
	// slash commands only; the relay source reads history over REST
	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.Client = &http.Client{Timeout: 20 * time.Second}

	src, err := source.New(cfg.Env, source.Deps{Messages: dg, Timeout: cfg.QueryTimeout})
	if err != nil {
		log.Fatalf("Error creating status source: %s", err)
	}
	store := panel.NewStore(cfg.StateFile)
	poller := bot.NewPoller(src, cfg.QueryTimeout, rec, cfg.Debug)
	b := bot.New(ctx, cfg, dg, poller, store, rec)
	dg.AddHandler(b.Ready)
	dg.AddHandler(b.InteractionCreate)

	log.Printf("[bot] %s via %s source, panels in %s", cfg.MCName, src.Name(), store.Path())
	if err := dg.Open(); err != nil {
		log.Fatalf("Error opening Discord connection: %s", err)
	}

	srv := &healthapi.Server{Config: cfg.Config, ServerName: cfg.MCName, Status: poller, Panels: store}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Run(ctx); err != nil {
			log.Printf("[http] Error: %s", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	b.Stop()
	if err := dg.Close(); err != nil {
		log.Printf("Error closing Discord session: %s", err)
	}
	<-done
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownMeter(shCtx); err != nil {
		log.Printf("Error shutting down metrics: %s", err)
	}
}
