package coordinator

import "sync"

// TurnRecord remembers which nodes a finished turn retrieved and cited, so a
// caller holding only the turn id can still send usage feedback for the
// right set.
type TurnRecord struct {
	RetrievedIDs []string
	UsedIDs      []string
}

// turnRegistry is a bounded map of recent turns. Once the cap is reached the
// oldest turn falls off; feedback for it is simply no longer addressable.
type turnRegistry struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]TurnRecord
}

func newTurnRegistry(limit int) *turnRegistry {
	return &turnRegistry{
		limit: limit,
		byID:  make(map[string]TurnRecord),
	}
}

func (r *turnRegistry) record(turnID string, rec TurnRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[turnID]; !exists {
		r.order = append(r.order, turnID)
	}
	r.byID[turnID] = rec

	for len(r.order) > r.limit {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.byID, oldest)
	}
}

func (r *turnRegistry) lookup(turnID string) (TurnRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[turnID]
	return rec, ok
}
