package proximity

import (
	"sync"

	"github.com/grovetools/tether/pkg/models"
)

// Transition is a rising edge into the departed tier.
type Transition struct {
	Identity string `json:"identity"`
	From     Tier   `json:"from"`
	To       Tier   `json:"to"`
}

// Result is the outcome of applying one payload.
type Result struct {
	Snapshot    Snapshot
	Transitions []Transition
}

// Diff compares snapshot tiers against remembered ones. An identity produces a
// transition only when it is departed now and was not departed before; an
// identity never seen before counts as not departed. The returned memory holds
// the current tier of every identity in memory and snapshot. memory is not
// modified.
func Diff(memory map[string]Tier, snap Snapshot) ([]Transition, map[string]Tier) {
	next := make(map[string]Tier, len(memory)+len(snap.Members))
	for k, v := range memory {
		next[k] = v
	}

	var events []Transition
	for _, m := range snap.Members {
		prev, seen := memory[m.Name]
		if m.Tier == TierDeparted && (!seen || prev != TierDeparted) {
			events = append(events, Transition{Identity: m.Name, From: prev, To: m.Tier})
		}
		next[m.Name] = m.Tier
	}
	return events, next
}

// Reducer turns a stream of payloads for one connection into snapshots and
// departure transitions. Payloads are applied one at a time.
type Reducer struct {
	role       models.Role
	thresholds *ThresholdStore

	mu     sync.Mutex
	memory map[string]Tier
	last   *Snapshot
}

// NewReducer returns an empty reducer for role. Payloads without a valid
// threshold triple are classified with the value active in thresholds at the
// time they are applied; a nil store means DefaultThresholds.
func NewReducer(role models.Role, thresholds *ThresholdStore) *Reducer {
	return &Reducer{role: role, thresholds: thresholds, memory: map[string]Tier{}}
}

// Apply decodes payload and applies it.
func (r *Reducer) Apply(payload []byte) Result {
	fallback := DefaultThresholds
	if r.thresholds != nil {
		fallback = r.thresholds.Load()
	}
	return r.ApplySnapshot(Decode(r.role, payload, fallback))
}

// ApplySnapshot diffs snap against the remembered tiers and records it.
func (r *Reducer) ApplySnapshot(snap Snapshot) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	events, next := Diff(r.memory, snap)
	r.memory = next
	r.last = &snap
	return Result{Snapshot: snap, Transitions: events}
}

// Last returns the most recent snapshot, if any.
func (r *Reducer) Last() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Snapshot{}, false
	}
	return *r.last, true
}

// Tier returns the remembered tier for identity.
func (r *Reducer) Tier(identity string) (Tier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.memory[identity]
	return t, ok
}
