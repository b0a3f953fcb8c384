package sync

import "github.com/marcus/carelog/internal/models"

// Merge reconciles a local event list with an authoritative snapshot.
//
// Events with no pending local operation take the authoritative copy. Events
// that still have queued operations keep whichever copy has the higher
// version; the authoritative copy wins ties. Tombstones count as
// authoritative copies so a remote delete propagates. Local events the
// authority has never seen are kept only while operations for them are
// pending.
func Merge(local []models.Event, state models.ServerState, pending map[string]bool) []models.Event {
	auth := make(map[string]models.Event, len(state.Events)+len(state.Tombstones))
	var order []string
	add := func(e models.Event) {
		if _, ok := auth[e.ID]; !ok {
			order = append(order, e.ID)
		}
		auth[e.ID] = e
	}
	for _, e := range state.Events {
		add(e)
	}
	for _, e := range state.Tombstones {
		e.Deleted = true
		add(e)
	}

	out := make([]models.Event, 0, len(local)+len(auth))
	seen := make(map[string]bool, len(local))
	for _, l := range local {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		a, known := auth[l.ID]
		switch {
		case !known && pending[l.ID]:
			out = append(out, l.Clone())
		case !known:
			// the authority never accepted it
		case pending[l.ID] && l.Version > a.Version:
			out = append(out, l.Clone())
		default:
			out = append(out, a.Clone())
		}
	}
	for _, id := range order {
		if !seen[id] {
			out = append(out, auth[id].Clone())
		}
	}
	return out
}

// Visible filters out tombstoned events.
func Visible(events []models.Event) []models.Event {
	var out []models.Event
	for _, e := range events {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}
