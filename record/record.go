package record

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/driftstream/driftstream-go/connection"
	"github.com/driftstream/driftstream-go/internal/emitter"
	"github.com/driftstream/driftstream-go/internal/jsonpath"
	"github.com/driftstream/driftstream-go/message"
)

// Lifecycle events observable through Record.On.
const (
	// EventReady fires once the initial read response arrived.
	EventReady = "ready"
	// EventDestroyPending fires just before the unsubscribe or delete
	// request leaves the client.
	EventDestroyPending = "destroyPending"
	// EventDelete fires when the server confirmed the deletion.
	EventDelete = "delete"
	// EventDiscard fires when the server confirmed the unsubscribe.
	EventDiscard = "discard"
	// EventHasProviderChanged carries a bool: whether an active listener
	// currently provides this record.
	EventHasProviderChanged = "hasProviderChanged"
	// EventError carries an error code and a message.
	EventError = "error"
)

// allEvent keys whole-document subscriptions in the path emitter. The empty
// path means the whole document on the public surface.
const allEvent = "\x00all"

// writeSuccessConfig asks the server to confirm a write explicitly.
const writeSuccessConfig = `{"writeSuccess":true}`

// WriteAckCallback receives the outcome of an acknowledged write: nil on
// success, an *Error otherwise.
type WriteAckCallback func(err error)

// PathCallback receives the new value at a subscribed path.
type PathCallback func(value any)

// EventCallback receives lifecycle event arguments.
type EventCallback = emitter.Callback

// Record is one named, versioned JSON document synchronized with the
// server. Local writes apply immediately and are pushed optimistically;
// remote updates are accepted when they extend the version sequence and
// reconciled through the merge strategy when they conflict.
//
// All methods are safe for concurrent use. Unless noted otherwise they
// return an error only for invalid arguments or after the record was
// destroyed.
type Record struct {
	c    *core
	name string

	version int64
	data    any
	merge   MergeStrategy

	ready       bool
	destroyed   bool
	hasProvider bool
	usages      int

	readyCh chan struct{}
	failCh  chan struct{}
	failErr *Error

	emitter     *emitter.Emitter
	pathEmitter *emitter.Emitter

	queued         []func(*deferred)
	writeCallbacks map[int64]WriteAckCallback

	resub        *resubscribeNotifier
	readAckTimer connection.Timer
	readTimer    connection.Timer
	deleteTimer  connection.Timer
	discardTimer connection.Timer

	// change-notification bookkeeping between beginChange and
	// completeChange
	oldValue         any
	oldPathValues    map[string]any
	hasAllSubscriber bool

	// hooks installed by List
	transformRemote    func(p *deferred, action message.Action, value any) (any, bool)
	beforeRemoteChange func()
	afterRemoteChange  func(p *deferred)
}

// newRecord subscribes to name and arms the read deadlines. Callers hold
// the core mutex.
func newRecord(c *core, name string) *Record {
	r := &Record{
		c:              c,
		name:           name,
		version:        -1,
		merge:          c.opts.Merge,
		readyCh:        make(chan struct{}),
		failCh:         make(chan struct{}),
		emitter:        emitter.New(),
		pathEmitter:    emitter.New(),
		writeCallbacks: make(map[int64]WriteAckCallback),
	}
	r.resub = newResubscribeNotifier(c, r.sendRead)
	r.readAckTimer = r.armTimeout(c.opts.ReadAckTimeout, CodeAckTimeout,
		"no ack received in time for record "+name)
	r.readTimer = r.armTimeout(c.opts.ReadTimeout, CodeResponseTimeout,
		"no read response received in time for record "+name)
	r.sendRead()
	return r
}

func (r *Record) sendRead() {
	r.c.conn.Send(message.TopicRecord, message.ActionCreateOrRead, r.name)
}

// Name returns the record name.
func (r *Record) Name() string {
	return r.name
}

// Version returns the confirmed version, or -1 before the initial read.
func (r *Record) Version() int64 {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.version
}

// IsReady reports whether the initial read response arrived.
func (r *Record) IsReady() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.ready
}

// IsDestroyed reports whether the record was deleted or discarded.
func (r *Record) IsDestroyed() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.destroyed
}

// HasProvider reports whether an active listener currently provides data
// for this record.
func (r *Record) HasProvider() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.hasProvider
}

// Get returns the value at path, or the whole document for the empty path.
// The result is always a detached copy. Missing paths return nil.
func (r *Record) Get(path string) any {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.valueAt(path, true)
}

// Set replaces the whole document. data must be an object, a slice, or a
// struct that marshals to one.
func (r *Record) Set(data any) error {
	return r.set("", data, nil)
}

// SetPath writes value at path, creating intermediate containers as needed.
func (r *Record) SetPath(path string, value any) error {
	if path == "" {
		return newError(CodeInvalidArgument, "path must not be empty")
	}
	return r.set(path, value, nil)
}

// SetWithAck is Set with a server write confirmation delivered to cb.
func (r *Record) SetWithAck(data any, cb WriteAckCallback) error {
	return r.set("", data, cb)
}

// SetPathWithAck is SetPath with a server write confirmation delivered to
// cb.
func (r *Record) SetPathWithAck(path string, value any, cb WriteAckCallback) error {
	if path == "" {
		return newError(CodeInvalidArgument, "path must not be empty")
	}
	return r.set(path, value, cb)
}

// SetMergeStrategy replaces the conflict resolution strategy for this
// record.
func (r *Record) SetMergeStrategy(s MergeStrategy) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.merge = s
}

// Subscribe registers cb for changes at path; the empty path observes the
// whole document. When triggerNow is set and the record is ready, cb is
// invoked once immediately with the current value. The returned id cancels
// the subscription through Unsubscribe. Duplicate registrations are kept
// and fire independently.
func (r *Record) Subscribe(path string, cb PathCallback, triggerNow bool) (int, error) {
	if cb == nil {
		return 0, newError(CodeInvalidArgument, "subscribe callback must not be nil")
	}
	var p deferred
	r.c.mu.Lock()
	if r.destroyed {
		r.c.mu.Unlock()
		return 0, errDestroyed("subscribe", r.name)
	}
	id := r.pathEmitter.On(pathEvent(path), func(args ...any) {
		if len(args) > 0 {
			cb(args[0])
		} else {
			cb(nil)
		}
	})
	if triggerNow && r.ready {
		value := r.valueAt(path, true)
		p.add(func() {
			cb(value)
		})
	}
	r.c.mu.Unlock()
	p.run()
	return id, nil
}

// Unsubscribe cancels the subscription identified by path and id.
func (r *Record) Unsubscribe(path string, id int) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.destroyed {
		return errDestroyed("unsubscribe", r.name)
	}
	r.pathEmitter.Off(pathEvent(path), id)
	return nil
}

// On registers cb for a lifecycle event and returns an id for Off.
func (r *Record) On(event string, cb EventCallback) (int, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.destroyed {
		return 0, errDestroyed("observe", r.name)
	}
	return r.emitter.On(event, cb), nil
}

// Off removes a lifecycle event registration.
func (r *Record) Off(event string, id int) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.emitter.Off(event, id)
}

// WhenReady invokes cb once the record is ready, immediately if it already
// is. cb runs outside the record lock.
func (r *Record) WhenReady(cb func(*Record)) {
	r.c.mu.Lock()
	ready := r.ready
	if !ready {
		r.emitter.Once(EventReady, func(args ...any) {
			cb(r)
		})
	}
	r.c.mu.Unlock()
	if ready {
		cb(r)
	}
}

// WaitReady blocks until the record is ready, fails, or ctx ends.
func (r *Record) WaitReady(ctx context.Context) error {
	r.c.mu.Lock()
	if r.ready {
		r.c.mu.Unlock()
		return nil
	}
	if r.failErr != nil {
		err := r.failErr
		r.c.mu.Unlock()
		return err
	}
	readyCh, failCh := r.readyCh, r.failCh
	r.c.mu.Unlock()

	select {
	case <-readyCh:
		return nil
	case <-failCh:
		r.c.mu.Lock()
		err := r.failErr
		r.c.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard releases this handle's interest. When the last interest is
// released the record unsubscribes from the server and is destroyed once
// the server confirms. Deferred until the record is ready.
func (r *Record) Discard() error {
	var p deferred
	r.c.mu.Lock()
	if r.destroyed {
		r.c.mu.Unlock()
		return errDestroyed("discard", r.name)
	}
	r.whenReadyLocked(&p, func(p *deferred) {
		r.usages--
		if r.usages > 0 {
			return
		}
		p.extend(r.emitter.Emit(EventDestroyPending))
		r.discardTimer = r.armTimeout(r.c.opts.SubscriptionTimeout, CodeAckTimeout,
			"no ack received in time for record "+r.name)
		r.c.conn.Send(message.TopicRecord, message.ActionUnsubscribe, r.name)
	})
	r.c.mu.Unlock()
	p.run()
	return nil
}

// Delete asks the server to delete the record everywhere. The record is
// destroyed once the deletion is confirmed. Deferred until the record is
// ready.
func (r *Record) Delete() error {
	var p deferred
	r.c.mu.Lock()
	if r.destroyed {
		r.c.mu.Unlock()
		return errDestroyed("delete", r.name)
	}
	r.whenReadyLocked(&p, func(p *deferred) {
		p.extend(r.emitter.Emit(EventDestroyPending))
		r.deleteTimer = r.armTimeout(r.c.opts.DeleteTimeout, CodeDeleteTimeout,
			"no delete ack received in time for record "+r.name)
		r.c.conn.Send(message.TopicRecord, message.ActionDelete, r.name)
	})
	r.c.mu.Unlock()
	p.run()
	return nil
}

func pathEvent(path string) string {
	if path == "" {
		return allEvent
	}
	return path
}

// valueAt reads the value at path without locking. Callers hold the core
// mutex.
func (r *Record) valueAt(path string, deepCopy bool) any {
	if path == "" || path == allEvent {
		return jsonpath.Get(r.data, "", deepCopy)
	}
	return jsonpath.Get(r.data, path, deepCopy)
}

// set is the single entry point for local writes. It locks, applies, and
// then runs the collected notifications.
func (r *Record) set(path string, data any, cb WriteAckCallback) error {
	var p deferred
	r.c.mu.Lock()
	err := r.doSet(&p, path, data, cb)
	r.c.mu.Unlock()
	p.run()
	return err
}

func (r *Record) doSet(p *deferred, path string, data any, cb WriteAckCallback) error {
	if r.destroyed {
		return errDestroyed("set", r.name)
	}
	data = jsonpath.Copy(data)
	if path == "" {
		switch data.(type) {
		case map[string]any, []any:
		default:
			return newError(CodeInvalidArgument, "full-document set requires an object or array")
		}
	}
	if !r.ready {
		r.queued = append(r.queued, func(p *deferred) {
			r.doSet(p, path, data, cb)
		})
		return nil
	}

	oldValue := r.data
	newValue := jsonpath.Set(oldValue, path, data, r.c.opts.CopyOnWrite)
	if jsonpath.Equal(oldValue, newValue) {
		if cb != nil {
			p.add(func() {
				cb(nil)
			})
		}
		return nil
	}

	if cb != nil {
		r.writeCallbacks[r.version+1] = cb
		if r.c.offline() {
			name := r.name
			p.add(func() {
				cb(newError(CodeConnectionError, "connection is down, write of %q cannot be acknowledged", name))
			})
		}
	}
	r.sendUpdate(path, data, cb != nil)
	r.applyChange(p, newValue)
	return nil
}

// sendUpdate pushes a local write as version+1. A full write becomes an
// update message, a path write becomes a patch.
func (r *Record) sendUpdate(path string, data any, withAck bool) {
	r.version++
	versionStr := strconv.FormatInt(r.version, 10)
	if path == "" {
		payload, err := json.Marshal(data)
		if err != nil {
			r.c.logger.Warn("dropping unencodable update", "record", r.name, "error", err)
			return
		}
		parts := []string{r.name, versionStr, string(payload)}
		if withAck {
			parts = append(parts, writeSuccessConfig)
		}
		r.c.conn.Send(message.TopicRecord, message.ActionUpdate, parts...)
		return
	}
	token, err := message.Typed(data)
	if err != nil {
		r.c.logger.Warn("dropping unencodable patch", "record", r.name, "path", path, "error", err)
		return
	}
	parts := []string{r.name, versionStr, path, token}
	if withAck {
		parts = append(parts, writeSuccessConfig)
	}
	r.c.conn.Send(message.TopicRecord, message.ActionPatch, parts...)
}

// applyChange installs newValue and queues notifications for every
// subscribed path whose value changed.
func (r *Record) applyChange(p *deferred, newValue any) {
	if r.destroyed {
		return
	}
	oldValue := r.data
	r.data = newValue
	r.persist()
	for _, event := range r.pathEmitter.Events() {
		if event == allEvent {
			if !jsonpath.Equal(oldValue, newValue) {
				p.extend(r.pathEmitter.Emit(allEvent, r.valueAt("", r.c.opts.CopyOnRead)))
			}
			continue
		}
		oldV := jsonpath.Get(oldValue, event, false)
		newV := jsonpath.Get(newValue, event, false)
		if !jsonpath.Equal(oldV, newV) {
			p.extend(r.pathEmitter.Emit(event, r.valueAt(event, r.c.opts.CopyOnRead)))
		}
	}
}

// beginChange snapshots the values at subscribed paths before a remote
// update is merged in; completeChange diffs against the snapshot and
// notifies.
func (r *Record) beginChange() {
	r.oldValue = nil
	r.oldPathValues = nil
	r.hasAllSubscriber = false
	events := r.pathEmitter.Events()
	if len(events) == 0 {
		return
	}
	r.oldPathValues = make(map[string]any, len(events))
	for _, event := range events {
		if event == allEvent {
			r.hasAllSubscriber = true
			r.oldValue = jsonpath.Copy(r.data)
			continue
		}
		r.oldPathValues[event] = jsonpath.Get(r.data, event, true)
	}
}

func (r *Record) completeChange(p *deferred) {
	if r.hasAllSubscriber && !jsonpath.Equal(r.oldValue, r.data) {
		p.extend(r.pathEmitter.Emit(allEvent, r.valueAt("", r.c.opts.CopyOnRead)))
	}
	r.hasAllSubscriber = false
	r.oldValue = nil
	for event, oldV := range r.oldPathValues {
		if !jsonpath.Equal(oldV, jsonpath.Get(r.data, event, false)) {
			p.extend(r.pathEmitter.Emit(event, r.valueAt(event, r.c.opts.CopyOnRead)))
		}
	}
	r.oldPathValues = nil
}

// onMessage dispatches one inbound record message. The handler holds the
// core mutex.
func (r *Record) onMessage(p *deferred, msg *message.Message) {
	switch msg.Action {
	case message.ActionRead:
		if r.version < 0 {
			if r.readTimer != nil {
				r.readTimer.Stop()
				r.readTimer = nil
			}
			r.onRead(p, msg)
		} else {
			r.applyUpdate(p, msg)
		}
	case message.ActionAck:
		r.processAck(p, msg)
	case message.ActionUpdate, message.ActionPatch:
		r.applyUpdate(p, msg)
	case message.ActionWriteAck:
		r.processWriteAck(p, msg)
	case message.ActionSubscriptionHasProvider:
		r.processHasProvider(p, msg)
	case message.ActionError:
		r.processError(p, msg)
	}
}

func (r *Record) onRead(p *deferred, msg *message.Message) {
	if len(msg.Data) < 3 {
		r.emitError(p, message.EventMessageParseError, "malformed read response for "+r.name)
		return
	}
	version, err := strconv.ParseInt(msg.Data[1], 10, 64)
	if err != nil {
		r.emitError(p, message.EventMessageParseError, "invalid version in read response for "+r.name)
		return
	}
	var value any
	if err := json.Unmarshal([]byte(msg.Data[2]), &value); err != nil {
		r.emitError(p, message.EventMessageParseError, "invalid document in read response for "+r.name)
		return
	}
	r.beginChange()
	r.version = version
	r.data = value
	r.persist()
	r.completeChange(p)
	r.setReady(p)
}

// applyUpdate handles updates and patches after the initial read. Versions
// must extend the local sequence by exactly one; anything else is a
// conflict.
func (r *Record) applyUpdate(p *deferred, msg *message.Message) {
	isPatch := msg.Action == message.ActionPatch
	minLen := 3
	if isPatch {
		minLen = 4
	}
	if len(msg.Data) < minLen {
		r.emitError(p, message.EventMessageParseError, "malformed update for "+r.name)
		return
	}
	version, err := strconv.ParseInt(msg.Data[1], 10, 64)
	if err != nil {
		r.emitError(p, message.EventMessageParseError, "invalid version in update for "+r.name)
		return
	}
	var value any
	var path string
	if isPatch {
		path = msg.Data[2]
		value, err = message.ConvertTyped(msg.Data[3])
	} else {
		err = json.Unmarshal([]byte(msg.Data[2]), &value)
	}
	if err != nil {
		r.emitError(p, message.EventMessageParseError, "invalid payload in update for "+r.name)
		return
	}
	if r.transformRemote != nil {
		if v, ok := r.transformRemote(p, msg.Action, value); ok {
			value = v
		} else {
			return
		}
	}

	if r.version >= 0 && version != r.version+1 {
		if isPatch {
			// a patch against an unknown base cannot be merged; fetch
			// the full document instead
			r.c.conn.Send(message.TopicRecord, message.ActionSnapshot, r.name)
		} else {
			r.recover(p, version, value)
		}
		return
	}

	if r.beforeRemoteChange != nil {
		r.beforeRemoteChange()
	}
	r.beginChange()
	r.version = version
	if isPatch {
		r.data = jsonpath.Set(r.data, path, value, false)
	} else {
		r.data = value
	}
	r.persist()
	r.completeChange(p)
	if r.afterRemoteChange != nil {
		r.afterRemoteChange(p)
	}
}

// recover hands a conflicting update to the merge strategy. The strategy
// runs outside the lock and resolves through a one-shot resolver.
func (r *Record) recover(p *deferred, remoteVersion int64, remoteData any) {
	merge := r.merge
	if merge == nil {
		r.emitError(p, message.EventVersionExists,
			"received update for version "+strconv.FormatInt(remoteVersion, 10)+
				" but local version is "+strconv.FormatInt(r.version, 10))
		return
	}
	resolve := r.newResolver(remoteVersion, remoteData)
	p.add(func() {
		merge(r, remoteData, remoteVersion, resolve)
	})
}

func (r *Record) newResolver(remoteVersion int64, remoteData any) func(error, any) {
	var once sync.Once
	return func(err error, merged any) {
		once.Do(func() {
			var p deferred
			r.c.mu.Lock()
			r.onRecovered(&p, remoteVersion, remoteData, err, merged)
			r.c.mu.Unlock()
			p.run()
		})
	}
}

// onRecovered adopts the merge result. The record jumps to the remote
// version; if the merged document differs from the remote one it is
// re-sent as the next version, carrying over any write confirmation that
// the conflict superseded.
func (r *Record) onRecovered(p *deferred, remoteVersion int64, remoteData any, err error, merged any) {
	if r.destroyed {
		return
	}
	if err != nil {
		r.emitError(p, message.EventVersionExists,
			"merge failed for "+r.name+": "+err.Error())
		return
	}
	merged = jsonpath.Copy(merged)
	// a local write in flight is keyed at the version it claimed, which is
	// the current local version
	cb, hadWrite := r.writeCallbacks[r.version]
	if hadWrite {
		delete(r.writeCallbacks, r.version)
	}
	r.version = remoteVersion

	if r.beforeRemoteChange != nil {
		r.beforeRemoteChange()
	}
	if jsonpath.Equal(merged, remoteData) {
		r.applyChange(p, merged)
		if hadWrite {
			// the remote update subsumed the write; confirm it
			p.add(func() {
				cb(nil)
			})
		}
	} else {
		if hadWrite {
			r.writeCallbacks[remoteVersion+1] = cb
		}
		r.sendUpdate("", merged, hadWrite)
		r.applyChange(p, merged)
	}
	if r.afterRemoteChange != nil {
		r.afterRemoteChange(p)
	}
}

func (r *Record) processAck(p *deferred, msg *message.Message) {
	if len(msg.Data) < 1 {
		return
	}
	switch message.Action(msg.Data[0]) {
	case message.ActionSubscribe:
		if r.readAckTimer != nil {
			r.readAckTimer.Stop()
			r.readAckTimer = nil
		}
	case message.ActionDelete:
		p.extend(r.emitter.Emit(EventDelete))
		if r.c.opts.Store != nil {
			if err := r.c.opts.Store.Delete(r.name); err != nil {
				r.c.logger.Warn("failed to drop cached record", "record", r.name, "error", err)
			}
		}
		r.destroy(p)
	case message.ActionUnsubscribe:
		p.extend(r.emitter.Emit(EventDiscard))
		r.destroy(p)
	}
}

func (r *Record) processWriteAck(p *deferred, msg *message.Message) {
	if len(msg.Data) < 3 {
		r.emitError(p, message.EventMessageParseError, "malformed write ack for "+r.name)
		return
	}
	var rawVersions []any
	if err := json.Unmarshal([]byte(msg.Data[1]), &rawVersions); err != nil {
		r.emitError(p, message.EventMessageParseError, "invalid versions in write ack for "+r.name)
		return
	}
	var werr error
	if v, err := message.ConvertTyped(msg.Data[2]); err == nil {
		if s, ok := v.(string); ok {
			werr = newError(CodeWriteError, "%s", s)
		}
	}
	for _, rv := range rawVersions {
		f, ok := rv.(float64)
		if !ok {
			continue
		}
		if cb, ok := r.writeCallbacks[int64(f)]; ok {
			delete(r.writeCallbacks, int64(f))
			p.add(func() {
				cb(werr)
			})
		}
	}
}

func (r *Record) processHasProvider(p *deferred, msg *message.Message) {
	if len(msg.Data) < 2 {
		return
	}
	v, err := message.ConvertTyped(msg.Data[1])
	if err != nil {
		r.emitError(p, message.EventMessageParseError, "invalid provider flag for "+r.name)
		return
	}
	b, _ := v.(bool)
	r.hasProvider = b
	p.extend(r.emitter.Emit(EventHasProviderChanged, b))
}

func (r *Record) processError(p *deferred, msg *message.Message) {
	if len(msg.Data) < 1 {
		return
	}
	switch msg.Data[0] {
	case message.EventVersionExists:
		// data: [VERSION_EXISTS, name, version, document]
		if len(msg.Data) < 4 {
			r.emitError(p, message.EventMessageParseError, "malformed version conflict for "+r.name)
			return
		}
		version, err := strconv.ParseInt(msg.Data[2], 10, 64)
		if err != nil {
			r.emitError(p, message.EventMessageParseError, "invalid version in conflict for "+r.name)
			return
		}
		var value any
		if err := json.Unmarshal([]byte(msg.Data[3]), &value); err != nil {
			r.emitError(p, message.EventMessageParseError, "invalid document in conflict for "+r.name)
			return
		}
		if r.transformRemote != nil {
			if v, ok := r.transformRemote(p, message.ActionUpdate, value); ok {
				value = v
			} else {
				return
			}
		}
		r.recover(p, version, value)
	case message.EventMessageDenied:
		r.clearTimers()
		r.emitError(p, message.EventMessageDenied, "operation denied for "+r.name)
	default:
		detail := r.name
		if len(msg.Data) > 1 {
			detail = msg.Data[1]
		}
		r.emitError(p, msg.Data[0], detail)
	}
}

func (r *Record) setReady(p *deferred) {
	if r.ready {
		return
	}
	r.ready = true
	close(r.readyCh)
	queued := r.queued
	r.queued = nil
	for _, fn := range queued {
		fn(p)
	}
	p.extend(r.emitter.Emit(EventReady))
}

// whenReadyLocked runs fn now if ready, otherwise once the record becomes
// ready. Callers hold the core mutex.
func (r *Record) whenReadyLocked(p *deferred, fn func(*deferred)) {
	if r.ready {
		fn(p)
		return
	}
	r.emitter.Once(EventReady, func(args ...any) {
		var p2 deferred
		r.c.mu.Lock()
		fn(&p2)
		r.c.mu.Unlock()
		p2.run()
	})
}

func (r *Record) fail(err *Error) {
	if r.ready || r.failErr != nil {
		return
	}
	r.failErr = err
	close(r.failCh)
}

func (r *Record) armTimeout(d time.Duration, event, msg string) connection.Timer {
	return r.c.sched.Schedule(d, func() {
		var p deferred
		r.c.mu.Lock()
		r.onTimeout(&p, event, msg)
		r.c.mu.Unlock()
		p.run()
	})
}

func (r *Record) onTimeout(p *deferred, event, msg string) {
	if r.destroyed {
		return
	}
	// one unmet deadline is the terminal signal; the others must not
	// pile further reports onto the same failure
	r.clearTimers()
	r.emitError(p, event, msg)
	switch event {
	case CodeAckTimeout, CodeResponseTimeout:
		r.fail(newError(event, "%s", msg))
	}
}

// emitError notifies record-level error subscribers and the client error
// channel.
func (r *Record) emitError(p *deferred, event, msg string) {
	p.extend(r.emitter.Emit(EventError, event, msg))
	r.c.report(p, event, msg)
}

func (r *Record) persist() {
	store := r.c.opts.Store
	if store == nil || r.destroyed {
		return
	}
	payload, err := json.Marshal(r.data)
	if err != nil {
		r.c.logger.Warn("failed to encode record for cache", "record", r.name, "error", err)
		return
	}
	if err := store.Put(r.name, r.version, payload); err != nil {
		r.c.logger.Warn("failed to cache record", "record", r.name, "error", err)
	}
}

func (r *Record) clearTimers() {
	for _, t := range []*connection.Timer{&r.readAckTimer, &r.readTimer, &r.deleteTimer, &r.discardTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

// destroy tears the record down after a confirmed delete or discard, or on
// handler shutdown. Event emissions queued before this call still run.
func (r *Record) destroy(p *deferred) {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.clearTimers()
	r.resub.destroy()
	r.fail(errDestroyed("await readiness of", r.name))
	r.queued = nil
	r.writeCallbacks = make(map[int64]WriteAckCallback)
	r.emitter.RemoveAll()
	r.pathEmitter.RemoveAll()
}
