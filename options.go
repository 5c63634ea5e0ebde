package driftstream

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftstream/driftstream-go/record"
	"github.com/driftstream/driftstream-go/storage"
)

// Options configures a Client.
type Options struct {
	// RecordReadAckTimeout bounds the wait for the subscription ack after
	// a record is requested.
	RecordReadAckTimeout time.Duration
	// RecordReadTimeout bounds the wait for the initial read response.
	RecordReadTimeout time.Duration
	// RecordDeleteTimeout bounds the wait for a delete ack.
	RecordDeleteTimeout time.Duration
	// SubscriptionTimeout bounds every other ack or response wait.
	SubscriptionTimeout time.Duration

	// RecordDeepCopyRead detaches values handed to path subscribers from
	// internal state. The record core clamps this on; turning it off
	// would hand subscribers live references into the document.
	RecordDeepCopyRead bool
	// RecordDeepCopyWrite detaches the document before a write is applied
	// to it. Clamped on like RecordDeepCopyRead.
	RecordDeepCopyWrite bool

	// MergeStrategy reconciles record version conflicts. Defaults to
	// record.RemoteWins.
	MergeStrategy record.MergeStrategy

	// StoragePath, when set, opens a local cache database there. Cached
	// records serve snapshots while the connection is down.
	StoragePath string

	// Storage overrides StoragePath with a ready-made store.
	Storage storage.Store

	Logger *slog.Logger
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	base := record.DefaultOptions()
	return Options{
		RecordReadAckTimeout: base.ReadAckTimeout,
		RecordReadTimeout:    base.ReadTimeout,
		RecordDeleteTimeout:  base.DeleteTimeout,
		SubscriptionTimeout:  base.SubscriptionTimeout,
		RecordDeepCopyRead:   base.CopyOnRead,
		RecordDeepCopyWrite:  base.CopyOnWrite,
		MergeStrategy:        base.Merge,
	}
}

// yamlOptions is the file form of Options. Durations are strings in
// time.ParseDuration syntax.
type yamlOptions struct {
	RecordReadAckTimeout string `yaml:"recordReadAckTimeout"`
	RecordReadTimeout    string `yaml:"recordReadTimeout"`
	RecordDeleteTimeout  string `yaml:"recordDeleteTimeout"`
	SubscriptionTimeout  string `yaml:"subscriptionTimeout"`
	RecordDeepCopyRead   *bool  `yaml:"recordDeepCopyRead"`
	RecordDeepCopyWrite  *bool  `yaml:"recordDeepCopyWrite"`
	StoragePath          string `yaml:"storagePath"`
}

// LoadOptions reads a YAML options file over the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("reading options file: %w", err)
	}
	var file yamlOptions
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return opts, fmt.Errorf("parsing options file %s: %w", path, err)
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{file.RecordReadAckTimeout, &opts.RecordReadAckTimeout},
		{file.RecordReadTimeout, &opts.RecordReadTimeout},
		{file.RecordDeleteTimeout, &opts.RecordDeleteTimeout},
		{file.SubscriptionTimeout, &opts.SubscriptionTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return opts, fmt.Errorf("parsing options file %s: %w", path, err)
		}
		*d.dst = parsed
	}
	if file.RecordDeepCopyRead != nil {
		opts.RecordDeepCopyRead = *file.RecordDeepCopyRead
	}
	if file.RecordDeepCopyWrite != nil {
		opts.RecordDeepCopyWrite = *file.RecordDeepCopyWrite
	}
	if file.StoragePath != "" {
		opts.StoragePath = file.StoragePath
	}
	return opts, nil
}
