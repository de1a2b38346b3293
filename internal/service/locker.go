package service

import (
	"slices"
	"sync"
	"time"

	"tablebook/internal/models"
)

// keyedLocker hands out one mutex per key and forgets it once unused.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*refLock)}
}

// Lock acquires every key in sorted order and returns the matching unlock.
func (l *keyedLocker) Lock(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*refLock, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		rl, ok := l.locks[k]
		if !ok {
			rl = &refLock{}
			l.locks[k] = rl
		}
		rl.refs++
		l.mu.Unlock()

		rl.Lock()
		held = append(held, rl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *keyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// areaKeys returns the lock keys a booking in area touches on date.
// AreaNone touches both seating areas.
func areaKeys(date time.Time, area models.Area) []string {
	day := date.Format(models.DateLayout)
	if area.IsSeating() {
		return []string{day + "/" + string(area)}
	}
	keys := make([]string, 0, len(models.SeatingAreas))
	for _, a := range models.SeatingAreas {
		keys = append(keys, day+"/"+string(a))
	}
	return keys
}
