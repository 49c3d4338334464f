package locator

import "sync"

// entry pairs a Locator with the refcount spec.md's "users" bookkeeping
// describes: several endpoints (readers/writers) can share one locator
// (e.g. the same multicast group), and the list only actually removes it
// once every user has released it.
type entry struct {
	loc   Locator
	users int
}

// List is a reference-counted collection of Locator values, grounded on
// the locator-list handling original_source/dds/src/trans/ip/ri_udp.c
// uses to track which destinations a writer's proxy currently fans out
// to.
type List struct {
	mu      sync.Mutex
	entries []entry
}

// Add inserts loc, or increments its user count if an identical Locator
// (kind, address, port) is already present.
func (l *List) Add(loc Locator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if sameEndpoint(l.entries[i].loc, loc) {
			l.entries[i].users++
			return
		}
	}
	l.entries = append(l.entries, entry{loc: loc, users: 1})
}

// Remove decrements loc's user count, removing it from the list once it
// reaches zero. Removing an absent Locator is a no-op.
func (l *List) Remove(loc Locator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if sameEndpoint(l.entries[i].loc, loc) {
			l.entries[i].users--
			if l.entries[i].users <= 0 {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
			}
			return
		}
	}
}

// Users reports loc's current reference count, or 0 if absent.
func (l *List) Users(loc Locator) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if sameEndpoint(l.entries[i].loc, loc) {
			return l.entries[i].users
		}
	}
	return 0
}

// Locators returns a snapshot of the distinct locators currently held.
func (l *List) Locators() []Locator {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Locator, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.loc
	}
	return out
}

// Len reports the number of distinct locators held.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func sameEndpoint(a, b Locator) bool {
	return a.Kind == b.Kind && a.Address == b.Address && a.Port == b.Port
}
