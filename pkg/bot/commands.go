package bot

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

const (
	cmdPanel   = "panel"
	cmdStatus  = "status"
	cmdOnline  = "online"
	cmdRawList = "rawlist"
)

var adminPermission int64 = discordgo.PermissionAdministrator

// Commands returns the slash commands to register. rawlist is only offered
// for sources that answer with console text.
func Commands(policy CommandPolicy, withRaw bool) []*discordgo.ApplicationCommand {
	cmds := []*discordgo.ApplicationCommand{
		{Name: cmdPanel, Description: "Create or reset the live status panel here"},
		{Name: cmdStatus, Description: "Show the server status"},
		{Name: cmdOnline, Description: "Show how many players are online"},
	}
	if withRaw {
		cmds = append(cmds, &discordgo.ApplicationCommand{Name: cmdRawList, Description: "Show the raw answer to \"list\""})
	}
	if policy == PolicyAdmin {
		for _, c := range cmds {
			c.DefaultMemberPermissions = &adminPermission
		}
	}
	return cmds
}

// registerCommands overwrites the application's commands globally or in
// each configured guild.
func (b *Bot) registerCommands(ctx context.Context) error {
	cmds := Commands(b.cfg.CommandPolicy, b.poller.HasRaw())
	guilds := []string{""}
	if b.cfg.RegisterScope == ScopeGuild {
		guilds = b.cfg.GuildIDs
	}
	for _, g := range guilds {
		rctx, cancel := context.WithTimeout(ctx, restTimeout)
		_, err := b.dg.ApplicationCommandBulkOverwrite(b.cfg.ClientID, g, cmds, discordgo.WithContext(rctx))
		cancel()
		if err != nil {
			if g == "" {
				return fmt.Errorf("register global commands: %w", err)
			}
			return fmt.Errorf("register commands in guild %s: %w", g, err)
		}
		if g == "" {
			log.Printf("[bot] registered %d global commands", len(cmds))
		} else {
			log.Printf("[bot] registered %d commands in guild %s", len(cmds), g)
		}
	}
	return nil
}
