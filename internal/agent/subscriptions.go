package agent

import (
	"slices"

	"github.com/nerrad567/camnode/internal/infrastructure/mqtt"
)

// Subscriptions returns the topics the node listens on for the given
// identifier, sorted. An empty id means unpaired.
func Subscriptions(topics mqtt.Topics, sysID string) []string {
	if sysID == "" {
		return []string{topics.Install()}
	}
	subs := []string{
		topics.Delete(sysID),
		topics.GetFrame(sysID),
		topics.Height(sysID),
		topics.Status(),
	}
	slices.Sort(subs)
	return subs
}

// diff returns what to drop from current and what to add to reach want,
// both sorted.
func diff(current map[string]bool, want []string) (drop, add []string) {
	wanted := make(map[string]bool, len(want))
	for _, t := range want {
		wanted[t] = true
		if !current[t] {
			add = append(add, t)
		}
	}
	for t := range current {
		if !wanted[t] {
			drop = append(drop, t)
		}
	}
	slices.Sort(drop)
	slices.Sort(add)
	return drop, add
}
