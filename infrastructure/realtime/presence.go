package realtime

import (
	"duo-lab/domain"
	"maps"
)

// presenceRoom holds the last state tracked by each member of a room.
// It is not safe for concurrent use; owners guard it.
type presenceRoom struct {
	members map[string]domain.TypingState
}

func newPresenceRoom() *presenceRoom {
	return &presenceRoom{members: make(map[string]domain.TypingState)}
}

func (r *presenceRoom) track(member string, state domain.TypingState) {
	r.members[member] = state
}

func (r *presenceRoom) untrack(member string) bool {
	_, ok := r.members[member]
	delete(r.members, member)
	return ok
}

func (r *presenceRoom) empty() bool {
	return len(r.members) == 0
}

// snapshot merges members by user. A user connected twice shows as typing
// when any of its connections is.
func (r *presenceRoom) snapshot() map[domain.Alias]domain.TypingState {
	view := make(map[domain.Alias]domain.TypingState, len(r.members))
	for _, state := range r.members {
		if current, ok := view[state.User]; ok && current.IsTyping {
			continue
		}
		view[state.User] = state
	}
	return view
}

func cloneView(view map[domain.Alias]domain.TypingState) map[domain.Alias]domain.TypingState {
	return maps.Clone(view)
}
