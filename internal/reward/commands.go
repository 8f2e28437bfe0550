package reward

import (
	"strings"

	"kaizen-votes/internal/model"
)

var placeholders = []string{"{player}", "{username}"}

// RenderCommands substitutes the player name into every command template.
func RenderCommands(r *model.Reward, player string) []string {
	out := make([]string, 0, len(r.Commands))
	for _, cmd := range r.Commands {
		for _, p := range placeholders {
			cmd = strings.ReplaceAll(cmd, p, player)
		}
		out = append(out, cmd)
	}
	return out
}
