package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftstream/driftstream-go/message"
)

func (f *fixture) openList(t *testing.T, name, version, doc string) *List {
	t.Helper()
	lst, err := f.h.OpenList(name)
	require.NoError(t, err)
	f.ready(t, lst.Record, version, doc)
	return lst
}

type entryEvent struct {
	kind  string
	entry string
	index int
}

func observeEntries(t *testing.T, lst *List) *[]entryEvent {
	t.Helper()
	var events []entryEvent
	for _, kind := range []string{EventEntryAdded, EventEntryRemoved, EventEntryMoved} {
		kind := kind
		_, err := lst.On(kind, func(args ...any) {
			events = append(events, entryEvent{kind, args[0].(string), args[1].(int)})
		})
		require.NoError(t, err)
	}
	return &events
}

func TestList_Entries_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a","b"]`)

	entries := lst.Entries()
	assert.Equal(t, []string{"a", "b"}, entries)
	entries[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, lst.Entries())
	assert.False(t, lst.IsEmpty())
}

func TestList_SetEntries_SendsUpdate(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a"]`)

	require.NoError(t, lst.SetEntries([]string{"a", "b"}))

	assert.Equal(t, []string{"a", "b"}, lst.Entries())
	updates := f.framesFor(message.ActionUpdate, "tasks")
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"tasks", "3", `["a","b"]`}, updates[0].Data)
}

func TestList_Set_RejectsNonEntrySlices(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `[]`)

	assert.True(t, IsCode(lst.Set(map[string]any{"a": 1}), CodeInvalidArgument))
	assert.True(t, IsCode(lst.Set([]any{"a", 1.0}), CodeInvalidArgument))
	require.NoError(t, lst.Set([]string{"a"}))
	assert.Equal(t, []string{"a"}, lst.Entries())
}

func TestList_AddEntry_AppendAndInsert(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a","c"]`)

	require.NoError(t, lst.AddEntry("d"))
	assert.Equal(t, []string{"a", "c", "d"}, lst.Entries())

	require.NoError(t, lst.AddEntry("b", 1))
	assert.Equal(t, []string{"a", "b", "c", "d"}, lst.Entries())

	err := lst.AddEntry("x", 99)
	assert.True(t, IsCode(err, CodeInvalidArgument))
}

func TestList_RemoveEntry_FirstOccurrenceOnly(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["x","y","x"]`)

	require.NoError(t, lst.RemoveEntry("y"))
	assert.Equal(t, []string{"x", "x"}, lst.Entries())

	require.NoError(t, lst.RemoveEntry("x"))
	assert.Equal(t, []string{"x"}, lst.Entries())

	// absent entries are a no-op and send nothing new
	before := len(f.conn.Frames())
	require.NoError(t, lst.RemoveEntry("ghost"))
	assert.Len(t, f.conn.Frames(), before)
}

func TestList_RemoveAt_BoundsChecked(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a","b"]`)

	require.NoError(t, lst.RemoveAt(0))
	assert.Equal(t, []string{"b"}, lst.Entries())
	assert.True(t, IsCode(lst.RemoveAt(5), CodeInvalidArgument))
	assert.True(t, IsCode(lst.RemoveAt(-1), CodeInvalidArgument))
}

func TestList_EditsBeforeReadyAreQueued(t *testing.T) {
	f := newFixture(t)
	lst, err := f.h.OpenList("tasks")
	require.NoError(t, err)

	require.NoError(t, lst.AddEntry("new"))
	assert.Empty(t, f.framesFor(message.ActionUpdate, "tasks"))

	f.ready(t, lst.Record, "4", `["old"]`)

	assert.Equal(t, []string{"old", "new"}, lst.Entries())
	updates := f.framesFor(message.ActionUpdate, "tasks")
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"tasks", "5", `["old","new"]`}, updates[0].Data)
}

func TestList_EntryEvents_LocalEdits(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["x","y","x"]`)
	events := observeEntries(t, lst)

	require.NoError(t, lst.RemoveEntry("y"))

	// the shift of the trailing x is implied by the removal
	assert.Equal(t, []entryEvent{{EventEntryRemoved, "y", 1}}, *events)
}

func TestList_EntryEvents_AddDuplicate(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["x"]`)
	events := observeEntries(t, lst)

	require.NoError(t, lst.AddEntry("x"))

	assert.Equal(t, []entryEvent{{EventEntryAdded, "x", 1}}, *events)
}

func TestList_EntryEvents_RemoteUpdate(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a","b"]`)
	events := observeEntries(t, lst)

	f.conn.Deliver(message.TopicRecord, message.ActionUpdate, "tasks", "3", `["b","c"]`)

	assert.Equal(t, []string{"b", "c"}, lst.Entries())
	assert.ElementsMatch(t, []entryEvent{
		{EventEntryRemoved, "a", 0},
		{EventEntryAdded, "c", 1},
		{EventEntryMoved, "b", 0},
	}, *events)
}

func TestList_RemoteNonArrayBecomesEmpty(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a"]`)

	f.conn.Deliver(message.TopicRecord, message.ActionUpdate, "tasks", "3", `{"not":"a list"}`)

	assert.True(t, lst.IsEmpty())
	assert.Equal(t, int64(3), lst.Version())
}

func TestList_RemotePatchIsRejected(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a"]`)

	f.conn.Deliver(message.TopicRecord, message.ActionPatch, "tasks", "3", "0", "Sb")

	assert.Equal(t, []string{"a"}, lst.Entries())
	assert.Equal(t, int64(2), lst.Version())
	assert.Contains(t, f.reportedErrors(), CodeInvalidArgument)
}

func TestList_PathSubscribersSeeWholeList(t *testing.T) {
	f := newFixture(t)
	lst := f.openList(t, "tasks", "2", `["a"]`)

	var seen []any
	_, err := lst.Subscribe("", func(v any) { seen = append(seen, v) }, false)
	require.NoError(t, err)

	require.NoError(t, lst.AddEntry("b"))
	require.Len(t, seen, 1)
	assert.Equal(t, []any{"a", "b"}, seen[0])
}
