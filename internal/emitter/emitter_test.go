package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func TestEmit_InvokesInRegistrationOrder(t *testing.T) {
	e := New()
	var order []int
	e.On("change", func(args ...any) { order = append(order, 1) })
	e.On("change", func(args ...any) { order = append(order, 2) })
	e.On("change", func(args ...any) { order = append(order, 3) })

	run(e.Emit("change"))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmit_PassesArgs(t *testing.T) {
	e := New()
	var got []any
	e.On("change", func(args ...any) { got = args })

	run(e.Emit("change", "entry", 2))
	assert.Equal(t, []any{"entry", 2}, got)
}

func TestEmit_NoListeners(t *testing.T) {
	e := New()
	assert.Nil(t, e.Emit("missing"))
}

func TestEmit_DeferredInvocation(t *testing.T) {
	e := New()
	calls := 0
	e.On("ready", func(args ...any) { calls++ })

	fns := e.Emit("ready")
	assert.Zero(t, calls, "Emit must not invoke callbacks itself")
	run(fns)
	assert.Equal(t, 1, calls)
}

func TestOnce_ConsumedAfterFirstEmit(t *testing.T) {
	e := New()
	calls := 0
	e.Once("ready", func(args ...any) { calls++ })

	run(e.Emit("ready"))
	run(e.Emit("ready"))
	assert.Equal(t, 1, calls)
	assert.Zero(t, e.Listeners("ready"))
}

func TestOff_RemovesSingleRegistration(t *testing.T) {
	e := New()
	var order []int
	e.On("change", func(args ...any) { order = append(order, 1) })
	id := e.On("change", func(args ...any) { order = append(order, 2) })
	e.Off("change", id)

	run(e.Emit("change"))
	assert.Equal(t, []int{1}, order)
}

func TestOff_UnknownIDIsNoop(t *testing.T) {
	e := New()
	e.On("change", func(args ...any) {})
	e.Off("change", 999)
	e.Off("other", 1)
	assert.Equal(t, 1, e.Listeners("change"))
}

func TestDuplicateRegistrationsKept(t *testing.T) {
	e := New()
	calls := 0
	cb := func(args ...any) { calls++ }
	e.On("change", cb)
	e.On("change", cb)

	run(e.Emit("change"))
	assert.Equal(t, 2, calls)
}

func TestEvents(t *testing.T) {
	e := New()
	e.On("a", func(args ...any) {})
	e.On("b", func(args ...any) {})
	assert.ElementsMatch(t, []string{"a", "b"}, e.Events())
}

func TestRemoveAll(t *testing.T) {
	e := New()
	e.On("a", func(args ...any) {})
	e.RemoveAll()
	assert.Zero(t, e.Listeners("a"))
	assert.Empty(t, e.Events())
}
