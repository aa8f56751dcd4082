// Package schedule runs periodic entries off a single tick counter.
//
// The owner calls [Scheduler.Due] for every entry once per loop
// iteration; an entry with interval n is due on every (n+1)th call.
// A Scheduler belongs to the goroutine of its loop and is not safe for
// concurrent use.
package schedule

import "sort"

type entry struct {
	interval uint32
	counter  uint32
	runs     uint64
}

// Scheduler holds named tick counters.
type Scheduler struct {
	entries map[string]*entry
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{entries: make(map[string]*entry)}
}

// Set adds key with the given interval in ticks.  Setting an existing
// key replaces its interval and restarts its counter.
func (s *Scheduler) Set(key string, interval uint32) {
	if e, ok := s.entries[key]; ok {
		e.interval = interval
		e.counter = 0
		return
	}
	s.entries[key] = &entry{interval: interval}
}

// Remove drops key.  Unknown keys are ignored.
func (s *Scheduler) Remove(key string) { delete(s.entries, key) }

// Due advances key's counter and reports whether the entry should run
// on this tick.  Unknown keys are never due.
func (s *Scheduler) Due(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.counter >= e.interval {
		e.counter = 0
		e.runs++
		return true
	}
	e.counter++
	return false
}

// Runs returns how many times key was due.
func (s *Scheduler) Runs(key string) uint64 {
	if e, ok := s.entries[key]; ok {
		return e.runs
	}
	return 0
}

// Keys returns the registered keys in sorted order.
func (s *Scheduler) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
