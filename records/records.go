// Package records keeps JSON collections consistent over the blob store.
//
// Each record of a collection lives under its own key ("member:<id>"),
// and those individual keys are the canonical source of truth: List
// enumerates them with a prefix scan on every call. A legacy shadow
// object (the "_list" key) mirroring the whole collection still exists
// for older readers; it is maintained with a non-transactional
// read-modify-write and can therefore go stale under concurrent
// writers. List consults the shadow only when the prefix scan comes
// back empty, never the reverse, and RebuildShadow recomputes it from
// the individual keys on demand.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	atrium "github.com/atriumhq/atrium"
)

// ShadowSuffix is appended to a collection prefix to form the shadow key.
const ShadowSuffix = "_list"

const defaultParallelism = 8

// Repository stores one collection of JSON records under a key prefix.
type Repository[T any] struct {
	blob         atrium.BlobStore
	prefix       string
	shadowWrites bool
	less         func(a, b T) bool
	logger       *slog.Logger
	onFallback   func()
	parallelism  int
}

// Option configures a Repository.
type Option[T any] func(*Repository[T])

// WithShadowWrites enables the best-effort legacy shadow maintenance on
// every mutation. Correctness never depends on it.
func WithShadowWrites[T any](enabled bool) Option[T] {
	return func(r *Repository[T]) { r.shadowWrites = enabled }
}

// WithLess sets the sort order List returns records in.
func WithLess[T any](less func(a, b T) bool) Option[T] {
	return func(r *Repository[T]) { r.less = less }
}

// WithLogger sets a structured logger for best-effort failure reporting.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(r *Repository[T]) { r.logger = l }
}

// WithFallbackHook registers a callback invoked whenever List falls
// back to the shadow object. Used for metrics.
func WithFallbackHook[T any](fn func()) Option[T] {
	return func(r *Repository[T]) { r.onFallback = fn }
}

// New creates a Repository for records keyed "<prefix><id>".
func New[T any](blob atrium.BlobStore, prefix string, opts ...Option[T]) *Repository[T] {
	r := &Repository[T]{
		blob:        blob,
		prefix:      prefix,
		logger:      slog.Default(),
		parallelism: defaultParallelism,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Repository[T]) key(id string) string      { return r.prefix + id }
func (r *Repository[T]) shadowKey() string         { return r.prefix + ShadowSuffix }
func (r *Repository[T]) isShadowKey(k string) bool { return k == r.shadowKey() }

// Get fetches one record by id, or atrium.ErrNotFound.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := r.blob.Get(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, atrium.ErrKeyNotFound) {
			return nil, atrium.ErrNotFound
		}
		return nil, fmt.Errorf("atrium/records: fetching %s: %w", r.key(id), err)
	}

	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("atrium/records: decoding %s: %w", r.key(id), err)
	}
	return &rec, nil
}

// Put writes one record under its individual key. The shadow update, if
// enabled, is best-effort and its failure is only logged.
func (r *Repository[T]) Put(ctx context.Context, id string, rec *T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("atrium/records: encoding %s: %w", r.key(id), err)
	}
	if err := r.blob.Set(ctx, r.key(id), data); err != nil {
		return fmt.Errorf("atrium/records: storing %s: %w", r.key(id), err)
	}

	if r.shadowWrites {
		if err := r.updateShadow(ctx, id, rec); err != nil {
			r.logger.Warn("shadow list update failed", "key", r.shadowKey(), "error", err)
		}
	}
	return nil
}

// Delete removes one record's individual key. The shadow update, if
// enabled, is best-effort.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	if err := r.blob.Delete(ctx, r.key(id)); err != nil {
		return fmt.Errorf("atrium/records: deleting %s: %w", r.key(id), err)
	}

	if r.shadowWrites {
		if err := r.updateShadow(ctx, id, nil); err != nil {
			r.logger.Warn("shadow list update failed", "key", r.shadowKey(), "error", err)
		}
	}
	return nil
}

// List returns every record in the collection.
//
// The canonical path scans the individual keys and assembles the result
// in parallel, skipping the shadow key and anything that fails to
// parse. Only an empty scan result triggers the shadow fallback; a
// non-empty scan is trusted even if the shadow disagrees.
func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	out, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		if fromShadow, ok := r.readShadow(ctx); ok && len(fromShadow) > 0 {
			if r.onFallback != nil {
				r.onFallback()
			}
			r.logger.Warn("prefix scan empty, served from shadow list", "prefix", r.prefix, "records", len(fromShadow))
			out = fromShadow
		}
	}

	if r.less != nil {
		sort.Slice(out, func(i, j int) bool { return r.less(out[i], out[j]) })
	}
	return out, nil
}

// RebuildShadow recomputes the shadow object from the individual keys
// and reports how many records it now holds. This is the explicit
// repair path for a drifted shadow.
func (r *Repository[T]) RebuildShadow(ctx context.Context) (int, error) {
	recs, err := r.scan(ctx)
	if err != nil {
		return 0, err
	}
	if r.less != nil {
		sort.Slice(recs, func(i, j int) bool { return r.less(recs[i], recs[j]) })
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return 0, fmt.Errorf("atrium/records: encoding shadow %s: %w", r.shadowKey(), err)
	}
	if err := r.blob.Set(ctx, r.shadowKey(), data); err != nil {
		return 0, fmt.Errorf("atrium/records: storing shadow %s: %w", r.shadowKey(), err)
	}
	return len(recs), nil
}

// scan is the canonical per-key enumeration.
func (r *Repository[T]) scan(ctx context.Context) ([]T, error) {
	keys, err := r.blob.List(ctx, r.prefix)
	if err != nil {
		return nil, fmt.Errorf("atrium/records: listing %s*: %w", r.prefix, err)
	}

	var (
		mu  sync.Mutex
		out []T
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	for _, key := range keys {
		if r.isShadowKey(key) || !strings.HasPrefix(key, r.prefix) {
			continue
		}
		key := key
		g.Go(func() error {
			data, err := r.blob.Get(gctx, key)
			if err != nil {
				// A key that vanished between scan and fetch is skipped.
				if errors.Is(err, atrium.ErrKeyNotFound) {
					return nil
				}
				return fmt.Errorf("atrium/records: fetching %s: %w", key, err)
			}
			var rec T
			if err := json.Unmarshal(data, &rec); err != nil {
				r.logger.Warn("skipping unparseable record", "key", key, "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// readShadow loads the legacy shadow object; ok is false when it is
// absent or unreadable.
func (r *Repository[T]) readShadow(ctx context.Context) ([]T, bool) {
	data, err := r.blob.Get(ctx, r.shadowKey())
	if err != nil {
		return nil, false
	}
	var recs []T
	if err := json.Unmarshal(data, &recs); err != nil {
		r.logger.Warn("shadow list unreadable", "key", r.shadowKey(), "error", err)
		return nil, false
	}
	return recs, true
}

// updateShadow performs the legacy read-modify-write: remove any entry
// whose individual key matches id, append the replacement if rec is
// non-nil, rewrite the whole object. Not transactional; concurrent
// writers can race and leave it stale, which List tolerates.
func (r *Repository[T]) updateShadow(ctx context.Context, id string, rec *T) error {
	current, _ := r.readShadow(ctx)

	kept := make([]T, 0, len(current)+1)
	for _, existing := range current {
		if r.recordID(existing) == id {
			continue
		}
		kept = append(kept, existing)
	}
	if rec != nil {
		kept = append(kept, *rec)
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return r.blob.Set(ctx, r.shadowKey(), data)
}

// recordID extracts the "id" field from a record via its JSON form.
// Records in this system always carry one.
func (r *Repository[T]) recordID(rec T) string {
	data, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ID
}
