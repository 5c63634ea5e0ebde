package record

import (
	"github.com/driftstream/driftstream-go/internal/jsonpath"
	"github.com/driftstream/driftstream-go/message"
)

// Entry events observable through List.On. Each carries the entry name and
// the index it was added at, removed from, or moved to.
const (
	EventEntryAdded   = "entryAdded"
	EventEntryRemoved = "entryRemoved"
	EventEntryMoved   = "entryMoved"
)

// List is a record whose document is an array of record names. It layers
// structural diffing on top of the record change pipeline: every accepted
// change is compared entry-by-entry and reported as added, removed and
// moved entry events. Duplicate entries are tracked by their index sets.
type List struct {
	*Record

	hasAdd    bool
	hasRemove bool
	hasMove   bool
	before    map[string][]int
	beforeLen int
	diffArmed bool
}

// newList wires the list hooks into a fresh record. Callers hold the core
// mutex.
func newList(c *core, name string) *List {
	l := &List{Record: newRecord(c, name)}
	l.transformRemote = l.coerceRemote
	l.beforeRemoteChange = l.beforeChange
	l.afterRemoteChange = l.afterChange
	return l
}

// Entries returns the current entries as a copy. Non-string elements are
// skipped.
func (l *List) Entries() []string {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return l.entriesLocked()
}

func (l *List) entriesLocked() []string {
	arr, _ := l.data.([]any)
	entries := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			entries = append(entries, s)
		}
	}
	return entries
}

// IsEmpty reports whether the list has no entries.
func (l *List) IsEmpty() bool {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return len(l.entriesLocked()) == 0
}

// Set accepts a []string or a []any of strings and replaces the whole
// list. It shadows Record.Set to keep the entries-only invariant.
func (l *List) Set(data any) error {
	entries, ok := coerceEntries(data)
	if !ok {
		return newError(CodeInvalidArgument, "a list document must be a slice of record names")
	}
	return l.SetEntries(entries)
}

// SetEntries replaces the whole list.
func (l *List) SetEntries(entries []string) error {
	return l.setEntries(entries, nil)
}

// SetEntriesWithAck is SetEntries with a server write confirmation.
func (l *List) SetEntriesWithAck(entries []string, cb WriteAckCallback) error {
	return l.setEntries(entries, cb)
}

func (l *List) setEntries(entries []string, cb WriteAckCallback) error {
	var p deferred
	l.c.mu.Lock()
	err := l.writeEntries(&p, entries, cb)
	l.c.mu.Unlock()
	p.run()
	return err
}

func (l *List) writeEntries(p *deferred, entries []string, cb WriteAckCallback) error {
	if l.destroyed {
		return errDestroyed("set", l.name)
	}
	if !l.ready {
		l.queued = append(l.queued, func(p *deferred) {
			l.writeEntries(p, entries, cb)
		})
		return nil
	}
	l.beforeChange()
	err := l.doSet(p, "", entriesToDoc(entries), cb)
	l.afterChange(p)
	return err
}

// AddEntry appends entry, or inserts it at index if given.
func (l *List) AddEntry(entry string, index ...int) error {
	var p deferred
	l.c.mu.Lock()
	err := l.editEntries(&p, func(entries []string) ([]string, error) {
		if len(index) == 0 {
			return append(entries, entry), nil
		}
		at := index[0]
		if at < 0 || at > len(entries) {
			return nil, newError(CodeInvalidArgument, "index %d out of range for list of %d entries", at, len(entries))
		}
		entries = append(entries, "")
		copy(entries[at+1:], entries[at:])
		entries[at] = entry
		return entries, nil
	})
	l.c.mu.Unlock()
	p.run()
	return err
}

// RemoveEntry removes the first occurrence of entry. Removing an absent
// entry is a no-op.
func (l *List) RemoveEntry(entry string) error {
	var p deferred
	l.c.mu.Lock()
	err := l.editEntries(&p, func(entries []string) ([]string, error) {
		for i, e := range entries {
			if e == entry {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return entries, nil
	})
	l.c.mu.Unlock()
	p.run()
	return err
}

// RemoveAt removes the entry at index.
func (l *List) RemoveAt(index int) error {
	var p deferred
	l.c.mu.Lock()
	err := l.editEntries(&p, func(entries []string) ([]string, error) {
		if index < 0 || index >= len(entries) {
			return nil, newError(CodeInvalidArgument, "index %d out of range for list of %d entries", index, len(entries))
		}
		return append(entries[:index], entries[index+1:]...), nil
	})
	l.c.mu.Unlock()
	p.run()
	return err
}

// editEntries applies edit to the current entries and writes the result.
// Edits made before readiness are queued and recomputed against the state
// at flush time.
func (l *List) editEntries(p *deferred, edit func([]string) ([]string, error)) error {
	if l.destroyed {
		return errDestroyed("edit", l.name)
	}
	if !l.ready {
		l.queued = append(l.queued, func(p *deferred) {
			l.editEntries(p, edit)
		})
		return nil
	}
	entries, err := edit(l.entriesLocked())
	if err != nil {
		return err
	}
	return l.writeEntries(p, entries, nil)
}

// coerceRemote keeps remote state inside the list invariant: patches are
// rejected and non-array documents become the empty list.
func (l *List) coerceRemote(p *deferred, action message.Action, value any) (any, bool) {
	if action == message.ActionPatch {
		l.emitError(p, CodeInvalidArgument, "received a patch for list "+l.name)
		return nil, false
	}
	if _, ok := value.([]any); !ok {
		return []any{}, true
	}
	return value, true
}

// beforeChange snapshots the index set of every entry when at least one
// entry event has a subscriber.
func (l *List) beforeChange() {
	l.hasAdd = l.emitter.Listeners(EventEntryAdded) > 0
	l.hasRemove = l.emitter.Listeners(EventEntryRemoved) > 0
	l.hasMove = l.emitter.Listeners(EventEntryMoved) > 0
	l.diffArmed = l.hasAdd || l.hasRemove || l.hasMove
	if l.diffArmed {
		l.before = l.structure()
		arr, _ := l.data.([]any)
		l.beforeLen = len(arr)
	}
}

// afterChange diffs the index sets against the snapshot and queues entry
// events.
func (l *List) afterChange(p *deferred) {
	if !l.diffArmed {
		return
	}
	before := l.before
	after := l.structure()
	arrNow, _ := l.data.([]any)
	// index shifts caused by an insertion or removal are implied by the
	// add/remove events themselves; moves are only meaningful when the
	// list kept its length
	sameLen := len(arrNow) == l.beforeLen
	l.before = nil
	l.diffArmed = false

	if l.hasRemove {
		for entry, beforeIdx := range before {
			afterIdx := after[entry]
			if len(afterIdx) >= len(beforeIdx) {
				continue
			}
			for _, n := range beforeIdx {
				if !containsIndex(afterIdx, n) {
					p.extend(l.emitter.Emit(EventEntryRemoved, entry, n))
				}
			}
		}
	}
	if !l.hasAdd && !l.hasMove {
		return
	}
	for entry, afterIdx := range after {
		beforeIdx, existed := before[entry]
		switch {
		case !existed:
			if l.hasAdd {
				for _, n := range afterIdx {
					p.extend(l.emitter.Emit(EventEntryAdded, entry, n))
				}
			}
		case len(beforeIdx) != len(afterIdx):
			if l.hasAdd {
				for _, n := range afterIdx {
					if !containsIndex(beforeIdx, n) {
						p.extend(l.emitter.Emit(EventEntryAdded, entry, n))
					}
				}
			}
		default:
			if l.hasMove && sameLen {
				for _, n := range afterIdx {
					if !containsIndex(beforeIdx, n) {
						p.extend(l.emitter.Emit(EventEntryMoved, entry, n))
					}
				}
			}
		}
	}
}

// structure maps each entry to the sorted set of indices it occupies.
func (l *List) structure() map[string][]int {
	arr, _ := l.data.([]any)
	out := make(map[string][]int)
	for i, v := range arr {
		if s, ok := v.(string); ok {
			out[s] = append(out[s], i)
		}
	}
	return out
}

func containsIndex(set []int, n int) bool {
	for _, v := range set {
		if v == n {
			return true
		}
	}
	return false
}

func entriesToDoc(entries []string) []any {
	doc := make([]any, len(entries))
	for i, e := range entries {
		doc[i] = e
	}
	return doc
}

func coerceEntries(data any) ([]string, bool) {
	switch v := data.(type) {
	case nil:
		return nil, false
	case []string:
		return append([]string(nil), v...), true
	case []any:
		entries := make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			entries[i] = s
		}
		return entries, true
	default:
		// jsonpath.Copy normalizes typed slices into []any; anything else
		// is not a list document
		copied, ok := jsonpath.Copy(data).([]any)
		if !ok {
			return nil, false
		}
		return coerceEntries(copied)
	}
}
