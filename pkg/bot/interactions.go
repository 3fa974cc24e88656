package bot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/panel"
)

const (
	msgError     = "⚠️ An error occurred."
	msgForbidden = "⛔ You need the Administrator permission to use this command."
	rawLimit     = 1900
)

// reply tracks whether the interaction has been answered so a failure can
// still be reported to the user.
type reply struct {
	ctx       context.Context
	dg        Discord
	i         *discordgo.Interaction
	responded bool
}

func (r *reply) send(content string) error {
	err := r.dg.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(r.ctx))
	if err == nil {
		r.responded = true
	}
	return err
}

// deferReply shows "thinking..." while a status query runs.
func (r *reply) deferReply() error {
	err := r.dg.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(r.ctx))
	if err == nil {
		r.responded = true
	}
	return err
}

func (r *reply) edit(e *discordgo.WebhookEdit) error {
	_, err := r.dg.InteractionResponseEdit(r.i, e, discordgo.WithContext(r.ctx))
	return err
}

func (r *reply) editText(content string) error {
	return r.edit(&discordgo.WebhookEdit{Content: &content})
}

// fail reports err to the user without details. It gets its own deadline
// since the handler's may be what ran out.
func (r *reply) fail() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), restTimeout)
	defer cancel()
	r.ctx = ctx
	var err error
	if r.responded {
		err = r.editText(msgError)
	} else {
		err = r.send(msgError)
	}
	if err != nil {
		log.Printf("[bot] Error reporting failure: %s", err)
	}
}

func isAdmin(i *discordgo.Interaction) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// locationKey is the key a panel of this interaction is stored under.
func (b *Bot) locationKey(i *discordgo.Interaction) string {
	if b.cfg.LocationKey == LocationGuild && i.GuildID != "" {
		return i.GuildID
	}
	return i.ChannelID
}

func (b *Bot) handle(ctx context.Context, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, restTimeout+b.cfg.QueryTimeout)
	defer cancel()
	r := &reply{ctx: ctx, dg: b.dg, i: i}

	name := i.ApplicationCommandData().Name
	if err := b.dispatch(ctx, r, name); err != nil {
		log.Printf("[bot] /%s failed: %s", name, err)
		r.fail()
	}
}

func (b *Bot) dispatch(ctx context.Context, r *reply, name string) error {
	if b.cfg.CommandPolicy == PolicyAdmin && !isAdmin(r.i) {
		return r.send(msgForbidden)
	}
	switch name {
	case cmdPanel:
		return b.cmdPanel(ctx, r)
	case cmdStatus:
		return b.cmdStatus(ctx, r)
	case cmdOnline:
		return b.cmdOnline(ctx, r)
	case cmdRawList:
		return b.cmdRawList(ctx, r)
	}
	return fmt.Errorf("unknown command %q", name)
}

func (b *Bot) cmdPanel(ctx context.Context, r *reply) error {
	if r.i.ChannelID == "" {
		return r.send("⚠️ I can't use this channel.")
	}
	if err := r.send("✅ Creating/resetting the panel in this channel..."); err != nil {
		return err
	}
	rep := b.poller.Poll(ctx)
	res, err := b.rec.Reconcile(ctx, b.locationKey(r.i), r.i.ChannelID, rep.Counts, true)
	if err != nil {
		if errors.Is(err, panel.ErrNoChannel) {
			return r.editText("⚠️ I can't use this channel.")
		}
		return err
	}
	log.Printf("[panel] %s %s in channel %s (message %s)", res.Key, res.Action, res.ChannelID, res.MessageID)
	return r.editText("✅ Panel ready. It will update automatically.")
}

func (b *Bot) cmdStatus(ctx context.Context, r *reply) error {
	if err := r.deferReply(); err != nil {
		return err
	}
	rep := b.poller.Poll(ctx)
	p := panel.Render(b.cfg.PanelOptions(), rep.Counts, rep.FetchedAt)
	embeds := []*discordgo.MessageEmbed{p.Embed}
	return r.edit(&discordgo.WebhookEdit{Embeds: &embeds, Components: &p.Components})
}

func (b *Bot) cmdOnline(ctx context.Context, r *reply) error {
	if err := r.deferReply(); err != nil {
		return err
	}
	rep := b.poller.Poll(ctx)
	if !rep.Counts.Known() {
		return r.editText("👥 Players online: **?** (the server did not answer)")
	}
	return r.editText(fmt.Sprintf("👥 Players online: **%s**", panel.OnlineText(rep.Counts)))
}

func (b *Bot) cmdRawList(ctx context.Context, r *reply) error {
	if err := r.deferReply(); err != nil {
		return err
	}
	raw, err := b.poller.Raw(ctx)
	if err != nil {
		return r.editText(fmt.Sprintf("Could not read \"list\": %s", err))
	}
	return r.editText("```" + truncateRaw(raw, rawLimit) + "```")
}

// truncateRaw keeps the first n runes and marks the cut with "…".
func truncateRaw(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}
