package customers

import (
	"context"
	"log/slog"
	"sync"

	"nasiya/internal/core"
	"nasiya/internal/log"
	"nasiya/internal/profile"
)

// Controller owns one Customer List screen instance.
type Controller struct {
	lister profile.DebtorLister
	stars  profile.StarWriter // nil keeps stars local
	logger *slog.Logger

	life   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	done   chan struct{} // closed when the current fetch settles
	closed bool
	filter Filter
}

// NewController creates a controller. stars may be nil.
func NewController(lister profile.DebtorLister, stars profile.StarWriter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	life, cancel := context.WithCancel(context.Background())
	return &Controller{
		lister: lister,
		stars:  stars,
		logger: logger.With(log.FieldComponent, log.ComponentCustomers),
		life:   life,
		cancel: cancel,
		state:  State{Phase: Loading},
	}
}

func (c *Controller) dispatch(a Action) bool {
	_, ok := c.apply(a)
	return ok
}

func (c *Controller) apply(a Action) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state, false
	}
	c.state = Reduce(c.state, a)
	return c.state, true
}

// Activate starts the initial fetch. Calling it again is a no-op.
func (c *Controller) Activate(ctx context.Context) {
	c.mu.Lock()
	started := c.done != nil
	c.mu.Unlock()
	if !started {
		c.Refresh(ctx)
	}
}

// Refresh starts a new fetch unless one is already in flight.
// ctx supplies request values such as the auth token; its cancellation does
// not stop the fetch, Close does.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.done != nil {
		select {
		case <-c.done:
		default:
			c.mu.Unlock()
			return
		}
	}
	done := make(chan struct{})
	c.done = done
	c.state = Reduce(c.state, FetchStarted{})
	c.mu.Unlock()

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.life, cancel)

	go func() {
		defer close(done)
		defer stop()
		defer cancel()

		debtors, err := c.lister.ListDebtors(fetchCtx)
		if err != nil {
			if c.dispatch(FetchFailed{Err: err}) {
				c.logger.ErrorContext(fetchCtx, "Failed to load debtors", log.FieldError, err)
			}
			return
		}
		if c.dispatch(FetchSucceeded{Debtors: debtors}) {
			c.logger.DebugContext(fetchCtx, "Debtors loaded", "count", len(debtors))
		}
	}()
}

// Await blocks until the current fetch settles or ctx ends, then returns
// the state.
func (c *Controller) Await(ctx context.Context) State {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return c.State()
}

// Search sets the query.
func (c *Controller) Search(q string) {
	c.dispatch(QueryChanged{Query: q})
}

// ToggleStar flips the flag locally, persists it when a writer is
// configured, and restores the prior value if persisting fails while no
// later toggle has changed the flag.
func (c *Controller) ToggleStar(ctx context.Context, id string) error {
	s, ok := c.apply(StarToggled{ID: id})
	if !ok {
		return context.Canceled
	}
	d, found := core.FindDebtor(s.Debtors, id)
	if c.stars == nil || !found {
		return nil
	}
	starred := d.IsStarred

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	if err := c.stars.SetStarred(callCtx, id, starred); err != nil {
		if c.dispatch(StarReverted{ID: id, Starred: starred, Err: err}) {
			c.logger.ErrorContext(ctx, "Failed to save star", log.FieldDebtorID, id, log.FieldError, err)
		}
		return err
	}
	return nil
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Visible returns the filtered debtors for the current state.
func (c *Controller) Visible() []core.Debtor {
	return c.filter.Apply(c.State())
}

// FilterComputes reports how often the visible list was recomputed.
func (c *Controller) FilterComputes() int {
	return c.filter.Computes()
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close cancels in-flight work. Results that arrive later are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}
