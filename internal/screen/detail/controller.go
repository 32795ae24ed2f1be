package detail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nasiya/internal/attachments"
	"nasiya/internal/core"
	"nasiya/internal/log"
	"nasiya/internal/profile"
)

var (
	ErrClosed    = errors.New("screen closed")
	ErrNoForm    = errors.New("payment form is not open")
	ErrBusy      = errors.New("payment is being submitted")
	ErrNoStorage = errors.New("attachments are not configured")

	ErrImagesExpired = errors.New("draft images expired")
)

// Backend is what the detail screen needs from the data-access collaborator.
type Backend interface {
	profile.DebtorReader
	profile.DetailsReader
	profile.PaymentSubmitter
}

// Deps configures a Controller.
type Deps struct {
	Backend     Backend
	Stars       profile.StarWriter // nil keeps the flag local
	Attachments *attachments.Store // nil disables image slots
	Clock       func() time.Time   // defaults to time.Now
	Logger      *slog.Logger
	Observer    func(View) // called under the controller lock for every transition
}

// Controller owns one Customer Detail screen instance.
type Controller struct {
	debtorID string
	deps     Deps
	logger   *slog.Logger

	life   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	view   View
	done   chan struct{}
	closed bool
}

func NewController(debtorID string, deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	life, cancel := context.WithCancel(context.Background())
	return &Controller{
		debtorID: debtorID,
		deps:     deps,
		logger:   deps.Logger.With(log.FieldComponent, log.ComponentDetail, log.FieldDebtorID, debtorID),
		life:     life,
		cancel:   cancel,
		view:     Loading{},
	}
}

// DebtorID is the debtor this screen shows.
func (c *Controller) DebtorID() string { return c.debtorID }

func (c *Controller) apply(a Action) (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(a)
}

func (c *Controller) applyLocked(a Action) (View, bool) {
	if c.closed {
		return c.view, false
	}
	next, ok := reduce(c.view, a)
	if !ok {
		return c.view, false
	}
	c.view = next
	if c.deps.Observer != nil {
		c.deps.Observer(next)
	}
	return next, true
}

// bind derives a context that keeps ctx's values, ignores its cancellation,
// and ends when the controller closes.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.life, cancel)
	return bound, func() {
		stop()
		cancel()
	}
}

// Activate fetches the debtor header and details concurrently. Only the
// first call has an effect.
func (c *Controller) Activate(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.done != nil {
		c.mu.Unlock()
		return
	}
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	fetchCtx, release := c.bind(ctx)
	go func() {
		defer close(done)
		defer release()

		var (
			debtor  core.Debtor
			details core.DebtorDetails
		)
		g, gctx := errgroup.WithContext(fetchCtx)
		g.Go(func() error {
			var err error
			debtor, err = c.deps.Backend.GetDebtor(gctx, c.debtorID)
			return err
		})
		g.Go(func() error {
			var err error
			details, err = c.deps.Backend.GetDebtorDetails(gctx, c.debtorID)
			return err
		})
		if err := g.Wait(); err != nil {
			if _, ok := c.apply(LoadFailed{Err: err}); ok {
				c.logger.ErrorContext(fetchCtx, "Failed to load debtor details", log.FieldError, err)
			}
			return
		}
		if _, ok := c.apply(Loaded{Debtor: debtor, Details: details}); ok {
			c.logger.DebugContext(fetchCtx, "Debtor details loaded", "transactions", len(details.Transactions))
		}
	}()
}

// Await blocks until the fetch settles or ctx ends, then returns the view.
func (c *Controller) Await(ctx context.Context) View {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return c.View()
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// OpenForm switches from the list to a fresh payment form.
func (c *Controller) OpenForm() View {
	v, _ := c.apply(FormOpened{Draft: NewDraft(uuid.NewString(), c.deps.Clock())})
	return v
}

// CancelForm discards the draft and returns to the list.
func (c *Controller) CancelForm() View {
	c.mu.Lock()
	draftID := c.draftIDLocked()
	v, ok := c.applyLocked(FormCancelled{})
	c.mu.Unlock()
	if ok {
		c.releaseDraft(draftID)
	}
	return v
}

// EditDraft replaces the text inputs of the open form.
func (c *Controller) EditDraft(f DraftFields) View {
	v, _ := c.apply(DraftEdited{Fields: f})
	return v
}

// AttachImage stores img in slot, replacing only that slot.
func (c *Controller) AttachImage(slot int, img core.Image) (View, error) {
	if c.deps.Attachments == nil {
		return c.View(), ErrNoStorage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	form, ok := c.view.(FormOpen)
	switch {
	case c.closed:
		return c.view, ErrClosed
	case !ok:
		return c.view, ErrNoForm
	case form.Submitting:
		return c.view, ErrBusy
	}
	h, err := c.deps.Attachments.Put(form.Draft.ID, slot, img)
	if err != nil {
		return c.view, err
	}
	v, _ := c.applyLocked(ImageAttached{Slot: slot, Handle: h})
	return v, nil
}

// Submit sends the open draft. The form shows Submitting until the
// backend answers; success moves to Success, failure back to the form
// with an error.
func (c *Controller) Submit(ctx context.Context) (View, error) {
	c.mu.Lock()
	form, ok := c.view.(FormOpen)
	switch {
	case c.closed:
		c.mu.Unlock()
		return c.View(), ErrClosed
	case !ok:
		v := c.view
		c.mu.Unlock()
		return v, ErrNoForm
	case form.Submitting:
		v := c.view
		c.mu.Unlock()
		return v, ErrBusy
	}

	var images []core.Image
	if c.deps.Attachments != nil {
		images = c.deps.Attachments.Images(form.Draft.ID)
	}
	payment, err := form.Draft.Payment(c.debtorID, images)
	if err == nil && len(images) < form.Draft.Attached() {
		err = ErrImagesExpired
	}
	if err != nil {
		v, _ := c.applyLocked(SubmitFailed{Err: err})
		c.mu.Unlock()
		return v, err
	}
	c.applyLocked(SubmitStarted{})
	c.mu.Unlock()

	callCtx, release := c.bind(ctx)
	defer release()

	ref, err := c.deps.Backend.SubmitPayment(callCtx, payment)
	if err != nil {
		v, ok := c.apply(SubmitFailed{Err: err})
		if ok {
			c.logger.ErrorContext(ctx, "Failed to submit payment",
				log.FieldAmount, payment.Amount, log.FieldError, err)
		}
		return v, err
	}

	v, ok := c.apply(SubmitSucceeded{Ref: ref})
	if ok {
		c.releaseDraft(form.Draft.ID)
		c.logger.InfoContext(ctx, "Payment submitted",
			log.FieldAmount, payment.Amount, log.FieldPaymentRef, ref)
	}
	return v, nil
}

// ToggleStar flips the starred flag of the shown debtor and persists it when
// a writer is configured. A failed write restores the prior value unless a
// later toggle has already changed the flag.
func (c *Controller) ToggleStar(ctx context.Context) (View, error) {
	v, ok := c.apply(StarToggled{})
	if !ok {
		return v, nil
	}
	if c.deps.Stars == nil {
		return v, nil
	}
	var starred bool
	switch v := v.(type) {
	case List:
		starred = v.Debtor.IsStarred
	case FormOpen:
		starred = v.Debtor.IsStarred
	}

	callCtx, release := c.bind(ctx)
	defer release()
	if err := c.deps.Stars.SetStarred(callCtx, c.debtorID, starred); err != nil {
		v, _ = c.apply(StarReverted{Starred: starred, Err: err})
		c.logger.ErrorContext(ctx, "Failed to save star", log.FieldError, err)
		return v, fmt.Errorf("set starred: %w", err)
	}
	return v, nil
}

// PreviewHandle returns the handle stored in slot of the open draft.
func (c *Controller) PreviewHandle(slot int) (attachments.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	form, ok := c.view.(FormOpen)
	if !ok || slot < 0 || slot >= len(form.Draft.Slots) || form.Draft.Slots[slot].IsZero() {
		return "", false
	}
	return form.Draft.Slots[slot], true
}

func (c *Controller) draftIDLocked() string {
	if form, ok := c.view.(FormOpen); ok {
		return form.Draft.ID
	}
	return ""
}

func (c *Controller) releaseDraft(id string) {
	if id != "" && c.deps.Attachments != nil {
		c.deps.Attachments.Release(id)
	}
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close cancels in-flight work and releases the open draft.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	draftID := c.draftIDLocked()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.releaseDraft(draftID)
}
