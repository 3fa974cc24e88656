// Package panel renders the live status panel and keeps one panel message
// per location key up to date.
package panel

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/mcstatus"
)

const (
	ColorKnown   = 0x8b5bff
	ColorUnknown = 0xf59e0b

	DefaultBarWidth = 14
	maxFieldValue   = 1024
)

// Options are the static parts of the panel.
type Options struct {
	ServerName   string
	Address      string
	InviteURL    string
	WebsiteURL   string
	StoreURL     string
	ModpackURL   string
	ThumbnailURL string
	BannerURL    string
	BarWidth     int
}

// Panel is a rendered message body.
type Panel struct {
	Embed      *discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// NormalizeURL prefixes https:// when u has no http(s) scheme. Empty stays empty.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}

// ProgressBar draws online/max as a bar of width cells.
func ProgressBar(online, max, width int) string {
	if width <= 0 {
		width = DefaultBarWidth
	}
	if max <= 0 {
		max = 1
	}
	filled := int(math.Round(float64(online) / float64(max) * float64(width)))
	filled = min(max0(filled), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// OnlineText is "online/max", or "?" when the count is unknown.
func OnlineText(c mcstatus.PlayerCount) string {
	return c.String()
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

type link struct {
	emoji, label, url string
}

func (o Options) links() []link {
	var ls []link
	if u := NormalizeURL(o.InviteURL); u != "" {
		ls = append(ls, link{"💜", "Discord", u})
	}
	if u := NormalizeURL(o.WebsiteURL); u != "" {
		ls = append(ls, link{"🌐", "Web", u})
	}
	if u := NormalizeURL(o.StoreURL); u != "" {
		ls = append(ls, link{"🛒", "Store", u})
	}
	if u := NormalizeURL(o.ModpackURL); u != "" {
		ls = append(ls, link{"📦", "Modpack", u})
	}
	return ls
}

// Render builds the panel for counts at time now.
func Render(o Options, c mcstatus.PlayerCount, now time.Time) Panel {
	return Panel{Embed: Embed(o, c, now), Components: Buttons(o)}
}

// Embed builds the panel embed. Unknown counts show "?", never 0.
func Embed(o Options, c mcstatus.PlayerCount, now time.Time) *discordgo.MessageEmbed {
	web, store, invite := NormalizeURL(o.WebsiteURL), NormalizeURL(o.StoreURL), NormalizeURL(o.InviteURL)

	var desc string
	color := ColorKnown
	if c.Known() {
		desc = fmt.Sprintf("**👥 Players:** `%s`\n`%s`", c, ProgressBar(*c.Online, *c.Max, o.BarWidth))
	} else {
		color = ColorUnknown
		desc = "**👥 Players:** `?`\n_The server did not answer right now._"
	}

	e := &discordgo.MessageEmbed{
		Title:       "📡 " + o.ServerName,
		URL:         firstNonEmpty(web, store, invite),
		Description: desc,
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🔌 Connection", Value: fmt.Sprintf("**IP:** `%s`", o.Address), Inline: true},
			{Name: "🕒 Updated", Value: fmt.Sprintf("<t:%d:R>", now.Unix()), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: o.ServerName + " • Live panel"},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if o.ThumbnailURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: o.ThumbnailURL}
	}
	if o.BannerURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: o.BannerURL}
	}

	if ls := o.links(); len(ls) > 0 {
		lines := make([]string, 0, len(ls))
		for _, l := range ls {
			lines = append(lines, fmt.Sprintf("%s %s: %s", l.emoji, l.label, l.url))
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "🔗 Links", Value: truncate(strings.Join(lines, "\n"), maxFieldValue)})
	}
	return e
}

// Buttons is one row of link buttons plus an address label button. Discord
// cannot open minecraft:// links, so the address button points at the
// store, the website or the invite.
func Buttons(o Options) []discordgo.MessageComponent {
	var row []discordgo.MessageComponent
	for _, l := range o.links() {
		row = append(row, discordgo.Button{Label: l.emoji + " " + l.label, Style: discordgo.LinkButton, URL: l.url})
	}
	if u := firstNonEmpty(NormalizeURL(o.StoreURL), NormalizeURL(o.WebsiteURL), NormalizeURL(o.InviteURL)); u != "" && o.Address != "" {
		row = append(row, discordgo.Button{Label: truncate("📌 "+o.Address, 80), Style: discordgo.LinkButton, URL: u})
	}
	if len(row) == 0 {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: row}}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
