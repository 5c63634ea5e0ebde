package record

import (
	"log/slog"
	"time"

	"github.com/driftstream/driftstream-go/message"
	"github.com/driftstream/driftstream-go/storage"
)

// Options tunes the record core. The zero value is usable; normalize fills
// in the defaults below.
type Options struct {
	// ReadAckTimeout bounds the wait for the subscription ack after a
	// record is requested.
	ReadAckTimeout time.Duration
	// ReadTimeout bounds the wait for the initial read response.
	ReadTimeout time.Duration
	// DeleteTimeout bounds the wait for a delete ack.
	DeleteTimeout time.Duration
	// SubscriptionTimeout bounds every other ack or response wait:
	// discards, listens, has and snapshot queries.
	SubscriptionTimeout time.Duration

	// CopyOnRead detaches values handed to path subscribers from internal
	// state. Public reads always copy regardless. normalize forces this
	// on: subscribers must not be able to reach into the document.
	CopyOnRead bool
	// CopyOnWrite detaches the document before a write is applied to it.
	// normalize forces this on: an in-place write compares the result
	// against itself and turns every set into a silent no-op.
	CopyOnWrite bool

	// Merge reconciles version conflicts. Defaults to RemoteWins.
	Merge MergeStrategy

	// Store, when set, receives a write-through copy of every confirmed
	// record state and serves snapshots while offline.
	Store storage.Store

	// OnError receives errors that have no caller to return to: timeouts,
	// unsolicited messages, failed conflict recovery.
	OnError func(topic message.Topic, event, msg string)

	Logger *slog.Logger
}

const defaultTimeout = 15 * time.Second

// DefaultOptions returns the stock configuration: 15 second deadlines,
// defensive copies on, remote-wins conflict resolution, no persistence.
func DefaultOptions() Options {
	return Options{
		ReadAckTimeout:      defaultTimeout,
		ReadTimeout:         defaultTimeout,
		DeleteTimeout:       defaultTimeout,
		SubscriptionTimeout: defaultTimeout,
		CopyOnRead:          true,
		CopyOnWrite:         true,
		Merge:               RemoteWins,
	}
}

func (o *Options) normalize() {
	if o.ReadAckTimeout <= 0 {
		o.ReadAckTimeout = defaultTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultTimeout
	}
	if o.DeleteTimeout <= 0 {
		o.DeleteTimeout = defaultTimeout
	}
	if o.SubscriptionTimeout <= 0 {
		o.SubscriptionTimeout = defaultTimeout
	}
	// shared references are never sound here, see the field comments
	o.CopyOnRead = true
	o.CopyOnWrite = true
	if o.Merge == nil {
		o.Merge = RemoteWins
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
