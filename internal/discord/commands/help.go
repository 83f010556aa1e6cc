package commands

import (
	"context"
	"strings"

	"github.com/MrWong99/voxrelay/internal/discord"
)

// HelpCommands answers the help command with the list of registered commands.
type HelpCommands struct {
	router *discord.CommandRouter
}

// NewHelpCommands creates a HelpCommands and registers it with router.
// The help text reflects every command registered at the time it is asked
// for, including ones registered later.
func NewHelpCommands(router *discord.CommandRouter) *HelpCommands {
	hc := &HelpCommands{router: router}
	router.Register(discord.Command{
		Name:        "help",
		Description: "Show this help text",
		Handler:     hc.handleHelp,
	})
	return hc
}

func (hc *HelpCommands) handleHelp(context.Context, *discord.Request) (discord.Reply, error) {
	return discord.OK(HelpText(hc.router.Prefix(), hc.router.Commands())), nil
}

// HelpText renders the command list shown by the help command.
func HelpText(prefix string, cmds []discord.Command) string {
	var b strings.Builder
	b.WriteString("**COMMANDS**:\n")
	for _, c := range cmds {
		b.WriteString("  `")
		b.WriteString(prefix)
		b.WriteString(c.Name)
		b.WriteString("`: ")
		b.WriteString(c.Description)
		if c.Restricted {
			b.WriteString(" (devs only)")
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
