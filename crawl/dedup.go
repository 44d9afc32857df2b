package crawl

import "github.com/researchaccelerator-hub/telegram-outreach/model"

// Dedup collapses channels by ID, then by case-insensitive username. When two
// entries collide the one with a username wins; entries without a username
// are always kept. Order of first appearance is preserved. It returns the
// surviving entries and how many were removed.
func Dedup(channels []model.ChannelRef) ([]model.ChannelRef, int) {
	byID := make(map[int64]int, len(channels))
	unique := make([]model.ChannelRef, 0, len(channels))

	for _, ch := range channels {
		if ch.ID != 0 {
			if i, ok := byID[ch.ID]; ok {
				if !unique[i].HasUsername() && ch.HasUsername() {
					unique[i] = ch
				}
				continue
			}
			byID[ch.ID] = len(unique)
		}
		unique = append(unique, ch)
	}

	byName := make(map[string]bool, len(unique))
	out := make([]model.ChannelRef, 0, len(unique))
	for _, ch := range unique {
		if !ch.HasUsername() {
			out = append(out, ch)
			continue
		}
		name := ch.NormalizedUsername()
		if byName[name] {
			continue
		}
		byName[name] = true
		out = append(out, ch)
	}

	return out, len(channels) - len(out)
}
