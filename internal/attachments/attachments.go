// Package attachments keeps the images attached to open payment drafts.
//
// Each draft owns core.MaxPaymentImages slots. Every stored image gets an
// opaque preview handle; replacing a slot or releasing the draft invalidates
// the old handle.
package attachments

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"nasiya/internal/cache"
	"nasiya/internal/core"
)

var (
	ErrInvalidSlot     = errors.New("invalid attachment slot")
	ErrTooLarge        = errors.New("attachment too large")
	ErrUnsupportedType = errors.New("attachment is not an image")
	ErrEmpty           = errors.New("attachment is empty")
)

// Handle identifies one stored image. The zero value means "no image".
type Handle string

func (h Handle) IsZero() bool { return h == "" }

type draft struct {
	mu    sync.Mutex
	slots [core.MaxPaymentImages]Handle
}

func (d *draft) handles() []Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Handle, 0, len(d.slots))
	for _, h := range d.slots {
		if !h.IsZero() {
			out = append(out, h)
		}
	}
	return out
}

// Store holds draft slots in memory with an idle TTL.
type Store struct {
	mu       sync.Mutex
	maxBytes int64
	drafts   *cache.LRUCache[*draft]
	previews *cache.LRUCache[core.Image]
}

// NewStore creates a store. maxDrafts bounds the number of open drafts;
// the least recently used draft is dropped beyond it.
func NewStore(maxDrafts int, ttl time.Duration, maxBytes int64) *Store {
	s := &Store{maxBytes: maxBytes}
	// Previews outlive their draft's idle TTL; draft eviction removes them.
	s.previews = cache.NewLRUCache[core.Image]((maxDrafts+1)*core.MaxPaymentImages, 2*ttl,
		cache.WithSlidingTTL[core.Image]())
	s.drafts = cache.NewLRUCache[*draft](maxDrafts, ttl,
		cache.WithSlidingTTL[*draft](),
		cache.WithOnEvict(func(_ string, d *draft, _ cache.EvictReason) {
			for _, h := range d.handles() {
				s.previews.Delete(string(h))
			}
		}),
	)
	return s
}

// Caches exposes the underlying caches for periodic cleanup.
func (s *Store) Caches() map[string]cache.Cleaner {
	return map[string]cache.Cleaner{
		"attachment_drafts":   s.drafts,
		"attachment_previews": s.previews,
	}
}

// Put stores img in slot of draftID and returns its preview handle.
// Only that slot changes; the previous handle in it stops resolving.
func (s *Store) Put(draftID string, slot int, img core.Image) (Handle, error) {
	if slot < 0 || slot >= core.MaxPaymentImages {
		return "", fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	if len(img.Data) == 0 {
		return "", ErrEmpty
	}
	if s.maxBytes > 0 && int64(len(img.Data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(img.Data), s.maxBytes)
	}
	detected := mimetype.Detect(img.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
	}
	img.ContentType = detected.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts.Get(draftID)
	if !ok {
		d = &draft{}
	}
	h := Handle(uuid.NewString())

	d.mu.Lock()
	old := d.slots[slot]
	d.slots[slot] = h
	d.mu.Unlock()

	if !old.IsZero() {
		s.previews.Delete(string(old))
	}
	s.previews.Set(string(h), img)
	s.drafts.Set(draftID, d)
	return h, nil
}

// Preview resolves a handle to its image.
func (s *Store) Preview(h Handle) (core.Image, bool) {
	if h.IsZero() {
		return core.Image{}, false
	}
	return s.previews.Get(string(h))
}

// Images returns the images of draftID in slot order, skipping empty slots.
func (s *Store) Images(draftID string) []core.Image {
	d, ok := s.drafts.Get(draftID)
	if !ok {
		return nil
	}
	var out []core.Image
	for _, h := range d.handles() {
		if img, ok := s.previews.Get(string(h)); ok {
			out = append(out, img)
		}
	}
	return out
}

// Release drops every slot of draftID.
func (s *Store) Release(draftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts.Delete(draftID)
}

// Close releases every draft.
func (s *Store) Close() {
	s.drafts.Purge()
	s.previews.Purge()
}
