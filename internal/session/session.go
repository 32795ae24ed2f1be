// Package session keeps per-browser screen controllers between requests.
package session

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nasiya/internal/cache"
	"nasiya/internal/log"
	"nasiya/internal/screen/customers"
	"nasiya/internal/screen/detail"

	"github.com/google/uuid"
)

// CookieName holds the session id.
const CookieName = "sid"

// Factory builds the controllers a session owns.
type Factory struct {
	Customers func() *customers.Controller
	Detail    func(debtorID string) *detail.Controller
}

// Session owns at most one controller per screen. Only one of the two is
// live at a time.
type Session struct {
	ID string

	factory Factory
	logger  *slog.Logger

	mu     sync.Mutex
	list   *customers.Controller
	detail *detail.Controller
}

// Customers returns the list controller, creating it if needed. The detail
// controller is closed first.
func (s *Session) Customers() *customers.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeDetailLocked()
	if s.list == nil || s.list.Closed() {
		s.list = s.factory.Customers()
		s.logger.Debug("List screen entered")
	}
	return s.list
}

// Detail returns the controller for debtorID. The list controller and any
// controller for another debtor are closed.
func (s *Session) Detail(debtorID string) *detail.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.list != nil {
		s.list.Close()
		s.list = nil
	}
	if s.detail != nil && (s.detail.DebtorID() != debtorID || s.detail.Closed()) {
		s.closeDetailLocked()
	}
	if s.detail == nil {
		s.detail = s.factory.Detail(debtorID)
		s.logger.Debug("Detail screen entered", log.FieldDebtorID, debtorID)
	}
	return s.detail
}

// EnterCustomers replaces both controllers with a fresh list controller.
// A full page load calls it so the list is fetched again.
func (s *Session) EnterCustomers() *customers.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.list = s.factory.Customers()
	s.logger.Debug("List screen entered")
	return s.list
}

// EnterDetail replaces both controllers with a fresh controller for
// debtorID.
func (s *Session) EnterDetail(debtorID string) *detail.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.detail = s.factory.Detail(debtorID)
	s.logger.Debug("Detail screen entered", log.FieldDebtorID, debtorID)
	return s.detail
}

// CurrentDetail returns the live detail controller without changing screens.
func (s *Session) CurrentDetail(debtorID string) (*detail.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == nil || s.detail.DebtorID() != debtorID || s.detail.Closed() {
		return nil, false
	}
	return s.detail, true
}

func (s *Session) closeDetailLocked() {
	if s.detail != nil {
		s.detail.Close()
		s.detail = nil
	}
}

func (s *Session) closeLocked() {
	if s.list != nil {
		s.list.Close()
		s.list = nil
	}
	s.closeDetailLocked()
}

// Close tears down both controllers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Registry maps session ids to sessions. Idle sessions expire.
type Registry struct {
	sessions *cache.LRUCache[*Session]
	factory  Factory
	logger   *slog.Logger
	secure   bool
}

// Options configures a Registry.
type Options struct {
	MaxSessions  int
	TTL          time.Duration
	SecureCookie bool
	Logger       *slog.Logger
}

func NewRegistry(f Factory, opts Options) *Registry {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Registry{
		factory: f,
		logger:  opts.Logger.With(log.FieldComponent, log.ComponentSession),
		secure:  opts.SecureCookie,
	}
	r.sessions = cache.NewLRUCache[*Session](opts.MaxSessions, opts.TTL,
		cache.WithSlidingTTL[*Session](),
		cache.WithOnEvict(func(id string, s *Session, reason cache.EvictReason) {
			s.Close()
			r.logger.Debug("Session closed", log.FieldSessionID, id, "reason", reason.String())
		}))
	return r
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	return r.sessions.Get(id)
}

// New starts a session with a fresh id.
func (r *Registry) New() *Session {
	id := uuid.NewString()
	s := &Session{
		ID:      id,
		factory: r.factory,
		logger:  r.logger.With(log.FieldSessionID, id),
	}
	r.sessions.Set(id, s)
	return s
}

// Resolve returns the request's session, starting one and setting the
// cookie when the request has none or it expired.
func (r *Registry) Resolve(w http.ResponseWriter, req *http.Request) *Session {
	if c, err := req.Cookie(CookieName); err == nil {
		if s, ok := r.Get(c.Value); ok {
			return s
		}
	}
	s := r.New()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// End closes and forgets a session.
func (r *Registry) End(id string) {
	r.sessions.Delete(id)
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int { return r.sessions.Size() }

// Cleaner exposes the session cache to a cache.Manager.
func (r *Registry) Cleaner() cache.Cleaner { return r.sessions }

// Close ends every session.
func (r *Registry) Close() int { return r.sessions.Purge() }
