// Package events provides the club event collection and RSVP handling.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/records"
)

// KeyPrefix namespaces event records in the blob store.
const KeyPrefix = "event:"

// RSVP failures.
var (
	// ErrEventFull means the event reached its capacity.
	ErrEventFull = errors.New("event is full")

	// ErrAlreadyAttending means the member already holds a spot.
	ErrAlreadyAttending = errors.New("already attending this event")
)

// Repository stores event records.
type Repository struct {
	repo *records.Repository[atrium.Event]
}

// NewRepository creates an event repository on blob, listed soonest
// first.
func NewRepository(blob atrium.BlobStore, opts ...records.Option[atrium.Event]) *Repository {
	all := append([]records.Option[atrium.Event]{
		records.WithLess[atrium.Event](func(a, b atrium.Event) bool {
			return a.StartsAt.Before(b.StartsAt)
		}),
	}, opts...)
	return &Repository{repo: records.New[atrium.Event](blob, KeyPrefix, all...)}
}

// Get fetches an event by id, or atrium.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*atrium.Event, error) {
	return r.repo.Get(ctx, id)
}

// Put persists the event, stamping UpdatedAt.
func (r *Repository) Put(ctx context.Context, e *atrium.Event) error {
	if e.ID == "" {
		return fmt.Errorf("atrium/events: event has no id")
	}
	e.UpdatedAt = time.Now().UTC()
	return r.repo.Put(ctx, e.ID, e)
}

// Delete removes an event record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.repo.Delete(ctx, id)
}

// List returns every event, soonest first.
func (r *Repository) List(ctx context.Context) ([]atrium.Event, error) {
	return r.repo.List(ctx)
}

// RSVP adds the member to the event's attendee list. A second RSVP by
// the same member and an RSVP against a full event are refused.
func (r *Repository) RSVP(ctx context.Context, eventID, memberID string) (*atrium.Event, error) {
	e, err := r.repo.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	for _, id := range e.AttendeeIDs {
		if id == memberID {
			return nil, ErrAlreadyAttending
		}
	}
	if e.Capacity > 0 && len(e.AttendeeIDs) >= e.Capacity {
		return nil, ErrEventFull
	}

	e.AttendeeIDs = append(e.AttendeeIDs, memberID)
	if err := r.Put(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CancelRSVP removes the member from the attendee list. Removing an
// absent member is a no-op.
func (r *Repository) CancelRSVP(ctx context.Context, eventID, memberID string) (*atrium.Event, error) {
	e, err := r.repo.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	kept := e.AttendeeIDs[:0]
	for _, id := range e.AttendeeIDs {
		if id != memberID {
			kept = append(kept, id)
		}
	}
	e.AttendeeIDs = kept

	if err := r.Put(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RebuildShadow recomputes the legacy event list shadow from the
// individual records.
func (r *Repository) RebuildShadow(ctx context.Context) (int, error) {
	return r.repo.RebuildShadow(ctx)
}
