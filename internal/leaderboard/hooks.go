package leaderboard

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"wealthtop/internal/cache"
)

var positionToken = regexp.MustCompile(`%(player|group)-(\d+)%`)

// MemberLister expands a group into player names for %player-N% in group
// mode.
type MemberLister func(ctx context.Context, group string) []string

// ExpandCommand substitutes %player-N% and %group-N% with the entity at
// 1-based position N of snap. In group mode %player-N% yields one command per
// member of the group at N. A command referencing a missing position is
// dropped.
func ExpandCommand(ctx context.Context, command string, snap *cache.Snapshot, groupMode bool, members MemberLister) []string {
	matches := positionToken.FindAllStringSubmatch(command, -1)
	if len(matches) == 0 {
		return []string{command}
	}

	out := []string{command}
	for _, m := range matches {
		token, kind := m[0], m[1]
		n, _ := strconv.Atoi(m[2])
		r, ok := snap.At(n - 1)
		if !ok {
			return nil
		}
		var values []string
		switch {
		case kind == "player" && groupMode:
			if members != nil {
				values = members(ctx, r.Name)
			}
		case kind == "group" && !groupMode:
			return nil
		default:
			values = []string{r.Name}
		}
		if len(values) == 0 {
			return nil
		}
		var next []string
		for _, cmd := range out {
			for _, v := range values {
				next = append(next, strings.Replace(cmd, token, v, 1))
			}
		}
		out = next
	}
	return out
}
