package events

import (
	"context"
	"testing"
	"time"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/fake"
)

func seed(t *testing.T, r *Repository, e *atrium.Event) {
	t.Helper()
	if err := r.Put(context.Background(), e); err != nil {
		t.Fatalf("seeding event: %v", err)
	}
}

func TestListSoonestFirst(t *testing.T) {
	r := NewRepository(fake.NewBlobStore())
	now := time.Now()
	seed(t, r, &atrium.Event{ID: "e-late", Name: "Late", StartsAt: now.Add(48 * time.Hour)})
	seed(t, r, &atrium.Event{ID: "e-soon", Name: "Soon", StartsAt: now.Add(2 * time.Hour)})

	all, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "e-soon" || all[1].ID != "e-late" {
		t.Errorf("unexpected order: %+v", all)
	}
}

func TestRSVP(t *testing.T) {
	r := NewRepository(fake.NewBlobStore())
	seed(t, r, &atrium.Event{ID: "e-1", Name: "Dinner", Capacity: 2})

	e, err := r.RSVP(context.Background(), "e-1", "m-1")
	if err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	if len(e.AttendeeIDs) != 1 || e.AttendeeIDs[0] != "m-1" {
		t.Errorf("unexpected attendees: %v", e.AttendeeIDs)
	}

	if _, err := r.RSVP(context.Background(), "e-1", "m-1"); err != ErrAlreadyAttending {
		t.Errorf("expected ErrAlreadyAttending, got %v", err)
	}

	if _, err := r.RSVP(context.Background(), "e-1", "m-2"); err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	if _, err := r.RSVP(context.Background(), "e-1", "m-3"); err != ErrEventFull {
		t.Errorf("expected ErrEventFull, got %v", err)
	}
}

func TestRSVPUnlimitedCapacity(t *testing.T) {
	r := NewRepository(fake.NewBlobStore())
	seed(t, r, &atrium.Event{ID: "e-1", Name: "Open house"})

	for i, id := range []string{"m-1", "m-2", "m-3", "m-4"} {
		if _, err := r.RSVP(context.Background(), "e-1", id); err != nil {
			t.Fatalf("rsvp %d: %v", i, err)
		}
	}
}

func TestRSVPUnknownEvent(t *testing.T) {
	r := NewRepository(fake.NewBlobStore())

	if _, err := r.RSVP(context.Background(), "nope", "m-1"); err != atrium.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelRSVP(t *testing.T) {
	r := NewRepository(fake.NewBlobStore())
	seed(t, r, &atrium.Event{ID: "e-1", AttendeeIDs: []string{"m-1", "m-2"}})

	e, err := r.CancelRSVP(context.Background(), "e-1", "m-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(e.AttendeeIDs) != 1 || e.AttendeeIDs[0] != "m-2" {
		t.Errorf("unexpected attendees: %v", e.AttendeeIDs)
	}

	// Cancelling an absent member is a no-op.
	if _, err := r.CancelRSVP(context.Background(), "e-1", "m-9"); err != nil {
		t.Errorf("cancel absent member: %v", err)
	}
}
