package bot

import (
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/masahide/mcpanel/pkg/mcstatus"
)

// PresenceText is the "Watching ..." line.
func PresenceText(c mcstatus.PlayerCount, serverName string) string {
	return "Online: " + c.String() + " | " + serverName
}

func (b *Bot) updatePresence() {
	rep := b.poller.Poll(b.ctx)
	err := b.dg.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{Name: PresenceText(rep.Counts, b.cfg.MCName), Type: discordgo.ActivityTypeWatching}},
		Status:     string(discordgo.StatusOnline),
	})
	if err != nil {
		log.Printf("[bot] Error updating presence: %s", err)
	}
}
