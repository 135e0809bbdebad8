package sensor

import (
	"sort"
	"sync"

	"github.com/csgstat/csgstat/pkg/types"
)

// Registry holds the current sensor states across snapshots. It implements
// the unchanged-retention contract: fields the caching policy skipped keep
// the previously published value, and an unavailable facet marks its sensor
// unavailable without touching siblings.
type Registry struct {
	mu      sync.RWMutex
	sensors map[string]Sensor
}

func NewRegistry() *Registry {
	return &Registry{sensors: map[string]Sensor{}}
}

// Apply folds one refresh snapshot into the registry.
func (r *Registry) Apply(snap types.RefreshSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for accountNumber, acct := range snap.Accounts {
		for _, def := range definitions {
			r.applyOne(accountNumber, def, acct)
		}
	}
}

func (r *Registry) applyOne(accountNumber string, def definition, acct types.AccountSnapshot) {
	id := uniqueID(accountNumber, def.suffix)
	field := def.value(acct)

	if field.IsUnchanged() {
		if _, ok := r.sensors[id]; ok {
			// skipped this cycle, previous value stands
			return
		}
		// nothing published yet for this sensor, surface it as unavailable
		// rather than leaving a hole
	}

	s := Sensor{
		UniqueID: id,
		Name:     accountNumber + "-" + def.suffix,
		Class:    def.class,
		Unit:     unitFor(def.class),
	}
	if v, ok := field.Get(); ok {
		s.Available = true
		s.Value = &v
	}

	if def.attrs != nil {
		key, payload, state := def.attrs(acct)
		switch state {
		case types.FieldStateValue:
			s.Attributes = map[string]any{key: payload}
		case types.FieldStateUnchanged:
			if prev, ok := r.sensors[id]; ok {
				s.Attributes = prev.Attributes
			}
		}
	}

	r.sensors[id] = s
}

// Sensors returns all current sensors sorted by unique id.
func (r *Registry) Sensors() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// Get returns one sensor by unique id.
func (r *Registry) Get(id string) (Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sensors[id]
	return s, ok
}
