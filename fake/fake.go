// Package fake provides in-memory implementations of the atrium
// collaborator interfaces for testing.
//
// Use fake.NewBlobStore() and fake.NewMailer() in unit tests to avoid a
// running Redis or a real email provider.
package fake

import (
	"context"
	"strings"
	"sync"

	atrium "github.com/atriumhq/atrium"
)

// BlobStore is a mutex-guarded map implementing atrium.BlobStore.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// Err, when set, is returned by every operation. Use it to exercise
	// store-failure paths.
	Err error
}

// compile-time check
var _ atrium.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates an empty in-memory store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Get returns the value stored under key, or atrium.ErrKeyNotFound.
func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, atrium.ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores value under key.
func (s *BlobStore) Set(_ context.Context, key string, value []byte) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return nil
}

// Delete removes key; deleting an absent key is not an error.
func (s *BlobStore) Delete(_ context.Context, key string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// List returns all keys beginning with prefix.
func (s *BlobStore) List(_ context.Context, prefix string) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len reports the number of stored keys.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// SentMail is one captured Mailer.Send call.
type SentMail struct {
	To      string
	Subject string
	HTML    string
}

// Mailer records sent mail instead of delivering it.
type Mailer struct {
	mu   sync.Mutex
	sent []SentMail

	// Err, when set, is returned by Send. The calling flow must treat
	// that as best-effort and carry on.
	Err error
}

// compile-time check
var _ atrium.Mailer = (*Mailer)(nil)

// NewMailer creates an empty capture mailer.
func NewMailer() *Mailer {
	return &Mailer{}
}

// Send records the message.
func (m *Mailer) Send(_ context.Context, to, subject, html string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, SentMail{To: to, Subject: subject, HTML: html})
	return nil
}

// Sent returns a copy of all captured messages.
func (m *Mailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}
