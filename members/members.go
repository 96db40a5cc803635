// Package members provides the member collection over the blob store.
package members

import (
	"context"
	"fmt"
	"time"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/records"
	"github.com/atriumhq/atrium/secrets"
)

// KeyPrefix namespaces member records in the blob store.
const KeyPrefix = "member:"

// Repository stores member records and answers the lookups the
// authentication service needs.
type Repository struct {
	repo *records.Repository[atrium.Member]
}

// NewRepository creates a member repository on blob. Additional records
// options (shadow writes, fallback hooks) may be passed through.
func NewRepository(blob atrium.BlobStore, opts ...records.Option[atrium.Member]) *Repository {
	all := append([]records.Option[atrium.Member]{
		records.WithLess[atrium.Member](func(a, b atrium.Member) bool {
			return a.SubmittedAt.After(b.SubmittedAt)
		}),
	}, opts...)
	return &Repository{repo: records.New[atrium.Member](blob, KeyPrefix, all...)}
}

// Get fetches a member by id, or atrium.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*atrium.Member, error) {
	return r.repo.Get(ctx, id)
}

// FindByEmail looks a member up by case-insensitive email, or
// atrium.ErrNotFound. Email comparison goes through the timing-safe
// comparator like every other identity check.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*atrium.Member, error) {
	all, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("atrium/members: finding by email: %w", err)
	}
	for i := range all {
		if secrets.EqualEmail(all[i].Email, email) {
			m := all[i]
			return &m, nil
		}
	}
	return nil, atrium.ErrNotFound
}

// FindApprovedByEmail is FindByEmail restricted to approved members.
// Both predicates are required: a pending or rejected applicant must
// never resolve for authentication purposes.
func (r *Repository) FindApprovedByEmail(ctx context.Context, email string) (*atrium.Member, error) {
	m, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if m.Status != atrium.StatusApproved {
		return nil, atrium.ErrNotFound
	}
	return m, nil
}

// Put persists the member record, stamping UpdatedAt.
func (r *Repository) Put(ctx context.Context, m *atrium.Member) error {
	if m.ID == "" {
		return fmt.Errorf("atrium/members: member has no id")
	}
	m.UpdatedAt = time.Now().UTC()
	return r.repo.Put(ctx, m.ID, m)
}

// Delete removes a member record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.repo.Delete(ctx, id)
}

// List returns every member record, newest application first.
func (r *Repository) List(ctx context.Context) ([]atrium.Member, error) {
	return r.repo.List(ctx)
}

// ListByStatus returns members in the given application state.
func (r *Repository) ListByStatus(ctx context.Context, status atrium.ApplicationStatus) ([]atrium.Member, error) {
	all, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]atrium.Member, 0, len(all))
	for _, m := range all {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

// RebuildShadow recomputes the legacy member list shadow from the
// individual records.
func (r *Repository) RebuildShadow(ctx context.Context) (int, error) {
	return r.repo.RebuildShadow(ctx)
}
