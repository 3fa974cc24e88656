package panel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/mcstatus"
)

// ErrNoChannel is returned when neither the caller nor the store knows the
// channel of a location key.
var ErrNoChannel = errors.New("panel: no channel for location key")

// Messenger is the part of the Discord REST API the reconciler needs.
// *discordgo.Session implements it.
type Messenger interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Observer is told about placements. May be nil.
type Observer interface {
	PanelCreated(ctx context.Context)
	PanelEdited(ctx context.Context)
}

type Action int

const (
	Created Action = iota + 1
	Edited
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Edited:
		return "edited"
	}
	return "none"
}

type Result struct {
	Key       string
	ChannelID string
	MessageID string
	Action    Action
}

// Reconciler edits the recorded panel message of a key, or creates a new
// one when there is none or it is gone.
type Reconciler struct {
	Store     *Store
	Messenger Messenger
	Options   Options
	Observer  Observer
	Now       func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Reconcile places the panel for key. channelID may be empty to reuse the
// stored channel. With forceNew the stored message is ignored and a new
// one is always created.
func (r *Reconciler) Reconcile(ctx context.Context, key, channelID string, counts mcstatus.PlayerCount, forceNew bool) (Result, error) {
	rec, ok, err := r.Store.Get(key)
	if err != nil {
		log.Printf("[panel] Error loading state: %s", err)
	}
	if ok && rec.ChannelID == "" {
		// records written before the location key could be a guild were
		// keyed by channel id
		rec.ChannelID = key
	}
	if channelID == "" {
		channelID = rec.ChannelID
	}
	if channelID == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrNoChannel, key)
	}

	now := r.now()
	p := Render(r.Options, counts, now)
	res := Result{Key: key, ChannelID: channelID}

	messageID := ""
	if !forceNew && rec.ChannelID == channelID {
		messageID = rec.MessageID
	}
	if messageID != "" {
		if id, err := r.edit(ctx, channelID, messageID, p); err == nil {
			res.MessageID, res.Action = id, Edited
		} else {
			log.Printf("[panel] %s: message %s not editable, creating a new one: %s", key, messageID, err)
		}
	}
	if res.Action == 0 {
		m, err := r.Messenger.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{p.Embed},
			Components: p.Components,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return Result{}, fmt.Errorf("send panel to channel %s: %w", channelID, err)
		}
		res.MessageID, res.Action = m.ID, Created
	}

	if r.Observer != nil {
		if res.Action == Created {
			r.Observer.PanelCreated(ctx)
		} else {
			r.Observer.PanelEdited(ctx)
		}
	}
	if err := r.Store.Put(key, Record{ChannelID: channelID, MessageID: res.MessageID, UpdatedAt: now.UnixMilli()}); err != nil {
		// the message exists; the next placement retries the write
		log.Printf("[panel] Error saving state: %s", err)
	}
	return res, nil
}

func (r *Reconciler) edit(ctx context.Context, channelID, messageID string, p Panel) (string, error) {
	if _, err := r.Messenger.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return "", err
	}
	embeds := []*discordgo.MessageEmbed{p.Embed}
	components := p.Components
	m, err := r.Messenger.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// RefreshAll reconciles every stored key without forcing. Failures of one
// key do not stop the others; they are returned joined.
func (r *Reconciler) RefreshAll(ctx context.Context, counts mcstatus.PlayerCount) ([]Result, error) {
	keys, err := r.Store.Keys()
	if err != nil {
		log.Printf("[panel] Error loading state: %s", err)
	}
	var (
		results []Result
		errs    []error
	)
	for _, k := range keys {
		res, err := r.Reconcile(ctx, k, "", counts, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
