package detail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nasiya/internal/attachments"
	"nasiya/internal/core"
	"nasiya/internal/profile"
	"nasiya/internal/profile/memory"
	"nasiya/internal/seed"
)

var fixedNow = time.Date(2024, 11, 7, 14, 51, 37, 0, time.UTC)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) observe(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, v.Name())
}

func (r *recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type blockingBackend struct {
	*memory.Store
	release chan struct{}
	err     error
}

func (b *blockingBackend) SubmitPayment(ctx context.Context, p core.Payment) (string, error) {
	<-b.release
	if b.err != nil {
		return "", b.err
	}
	return b.Store.SubmitPayment(ctx, p)
}

func newController(t *testing.T, backend Backend, rec *recorder) (*Controller, *attachments.Store) {
	t.Helper()
	store := attachments.NewStore(8, time.Minute, 1<<20)
	deps := Deps{
		Backend:     backend,
		Attachments: store,
		Clock:       func() time.Time { return fixedNow },
	}
	if rec != nil {
		deps.Observer = rec.observe
	}
	c := NewController("1", deps)
	t.Cleanup(c.Close)
	return c, store
}

func loaded(t *testing.T, c *Controller) List {
	t.Helper()
	c.Activate(context.Background())
	v := c.Await(context.Background())
	list, ok := v.(List)
	require.True(t, ok, "expected list view, got %s", v.Name())
	return list
}

func TestReduceIgnoresInvalidActions(t *testing.T) {
	assert.Equal(t, Loading{}, Reduce(Loading{}, FormOpened{}))
	assert.Equal(t, Loading{}, Reduce(Loading{}, SubmitSucceeded{}))

	s := Success{DebtorID: "1"}
	assert.Equal(t, s, Reduce(s, FormCancelled{}))
	assert.Equal(t, s, Reduce(s, Loaded{}))

	f := Failed{Err: "x"}
	assert.Equal(t, f, Reduce(f, FormOpened{}))
}

func TestReduceFormLifecycle(t *testing.T) {
	list := List{Debtor: core.Debtor{ID: "1"}}
	form, ok := Reduce(list, FormOpened{Draft: NewDraft("d", fixedNow)}).(FormOpen)
	require.True(t, ok)
	assert.Equal(t, "2024-11-07", form.Draft.Date)
	assert.Equal(t, "14:51", form.Draft.Time)

	back := Reduce(form, FormCancelled{})
	assert.IsType(t, List{}, back)

	submitting := Reduce(form, SubmitStarted{}).(FormOpen)
	assert.True(t, submitting.Submitting)
	assert.Equal(t, submitting, Reduce(submitting, FormCancelled{}), "cannot cancel while submitting")

	failedBack := Reduce(submitting, SubmitFailed{Err: core.ErrInvalidAmount}).(FormOpen)
	assert.False(t, failedBack.Submitting)
	assert.Equal(t, AmountError, failedBack.Err)

	assert.Equal(t, failedBack, Reduce(failedBack, SubmitSucceeded{}), "success requires an in-flight submit")
	assert.Equal(t, Success{DebtorID: "1", Ref: "r"}, Reduce(submitting, SubmitSucceeded{Ref: "r"}))
}

func TestReduceLoadFailedIsSurfaced(t *testing.T) {
	v := Reduce(Loading{}, LoadFailed{Err: errors.New("boom")})
	assert.Equal(t, Failed{Err: LoadFallbackError}, v)

	v = Reduce(Loading{}, LoadFailed{Err: profile.Unauthenticated("Sessiya tugadi")})
	assert.Equal(t, Failed{Err: "Sessiya tugadi", Redirect: LoginPath}, v)
}

func TestDraftEditKeepsSlots(t *testing.T) {
	form := FormOpen{Draft: NewDraft("d", fixedNow)}
	form = Reduce(form, ImageAttached{Slot: 1, Handle: "h1"}).(FormOpen)
	form = Reduce(form, DraftEdited{Fields: DraftFields{Date: "2024-11-08", Time: "09:00", Amount: "500 000"}}).(FormOpen)

	assert.Equal(t, "d", form.Draft.ID)
	assert.Equal(t, "500 000", form.Draft.Amount)
	assert.Equal(t, attachments.Handle("h1"), form.Draft.Slots[1])
	assert.True(t, form.Draft.Slots[0].IsZero())
}

func TestControllerLoadsHeaderAndDetails(t *testing.T) {
	c, _ := newController(t, memory.New(seed.Default()), nil)
	list := loaded(t, c)

	assert.Equal(t, "Avazbek Solijonov", list.Debtor.FullName)
	assert.Equal(t, int64(14786000), list.Details.TotalDebt)
	require.Len(t, list.Details.Transactions, 1)
	assert.InDelta(t, 8.554, core.Progress(list.Details.Transactions[0].PaidAmount, list.Details.Transactions[0].Amount), 0.01)
}

func TestControllerLoadFailure(t *testing.T) {
	c := NewController("404", Deps{Backend: memory.New(seed.Default())})
	defer c.Close()
	c.Activate(context.Background())
	v := c.Await(context.Background())
	failed, ok := v.(Failed)
	require.True(t, ok, "got %s", v.Name())
	assert.NotEmpty(t, failed.Err)
	assert.Empty(t, failed.Redirect)
}

func TestSubmitEntersSuccessOnceWithoutList(t *testing.T) {
	rec := &recorder{}
	backend := &blockingBackend{Store: memory.New(seed.Default()), release: make(chan struct{})}
	c, _ := newController(t, backend, rec)
	loaded(t, c)

	c.OpenForm()
	c.EditDraft(DraftFields{Date: "2024-11-07", Time: "14:51", Amount: "500 000", Note: "naqd"})

	result := make(chan View, 1)
	go func() {
		v, err := c.Submit(context.Background())
		assert.NoError(t, err)
		result <- v
	}()

	require.Eventually(t, func() bool {
		form, ok := c.View().(FormOpen)
		return ok && form.Submitting
	}, time.Second, time.Millisecond)
	close(backend.release)

	v := <-result
	assert.Equal(t, "success", v.Name())
	assert.Equal(t, []string{"list", "form", "form", "form", "success"}, rec.Names())

	details, err := backend.GetDebtorDetails(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), details.Transactions[0].PaidAmount)
}

func TestSubmitValidationStaysOnForm(t *testing.T) {
	c, _ := newController(t, memory.New(seed.Default()), nil)
	loaded(t, c)
	c.OpenForm()
	c.EditDraft(DraftFields{Date: "2024-11-07", Time: "14:51", Amount: "abc"})

	v, err := c.Submit(context.Background())
	require.ErrorIs(t, err, core.ErrInvalidAmount)
	form, ok := v.(FormOpen)
	require.True(t, ok)
	assert.Equal(t, AmountError, form.Err)
	assert.False(t, form.Submitting)
}

func TestSubmitBackendFailureIsSurfaced(t *testing.T) {
	rec := &recorder{}
	backend := &blockingBackend{
		Store:   memory.New(seed.Default()),
		release: make(chan struct{}),
		err:     &profile.APIError{Status: 500, Message: "Server band"},
	}
	close(backend.release)
	c, _ := newController(t, backend, rec)
	loaded(t, c)
	c.OpenForm()
	c.EditDraft(DraftFields{Date: "2024-11-07", Time: "14:51", Amount: "1000"})

	v, err := c.Submit(context.Background())
	require.Error(t, err)
	form, ok := v.(FormOpen)
	require.True(t, ok)
	assert.Equal(t, "Server band", form.Err)
	assert.NotContains(t, rec.Names(), "success")
}

func TestAttachImagePreservesOtherSlot(t *testing.T) {
	c, store := newController(t, memory.New(seed.Default()), nil)
	loaded(t, c)

	_, err := c.AttachImage(0, core.Image{Name: "a.png", Data: pngBytes})
	require.ErrorIs(t, err, ErrNoForm)

	c.OpenForm()
	_, err = c.AttachImage(0, core.Image{Name: "a.png", Data: pngBytes})
	require.NoError(t, err)
	v, err := c.AttachImage(1, core.Image{Name: "b.png", Data: pngBytes})
	require.NoError(t, err)
	first := v.(FormOpen).Draft.Slots[0]

	v, err = c.AttachImage(1, core.Image{Name: "c.png", Data: pngBytes})
	require.NoError(t, err)
	form := v.(FormOpen)
	assert.Equal(t, first, form.Draft.Slots[0], "slot 0 untouched by slot 1 replacement")

	img, ok := store.Preview(form.Draft.Slots[1])
	require.True(t, ok)
	assert.Equal(t, "c.png", img.Name)

	_, err = c.AttachImage(2, core.Image{Name: "d.png", Data: pngBytes})
	require.ErrorIs(t, err, attachments.ErrInvalidSlot)
}

func TestCancelReleasesDraft(t *testing.T) {
	c, store := newController(t, memory.New(seed.Default()), nil)
	loaded(t, c)
	c.OpenForm()
	v, err := c.AttachImage(0, core.Image{Name: "a.png", Data: pngBytes})
	require.NoError(t, err)
	h := v.(FormOpen).Draft.Slots[0]

	assert.IsType(t, List{}, c.CancelForm())
	_, ok := store.Preview(h)
	assert.False(t, ok, "cancel discards the draft images")

	reopened := c.OpenForm().(FormOpen)
	assert.True(t, reopened.Draft.Slots[0].IsZero())
	assert.Empty(t, reopened.Draft.Amount)
}

func TestCloseReleasesDraftAndDropsResults(t *testing.T) {
	c, store := newController(t, memory.New(seed.Default()), nil)
	loaded(t, c)
	c.OpenForm()
	v, err := c.AttachImage(0, core.Image{Name: "a.png", Data: pngBytes})
	require.NoError(t, err)
	h := v.(FormOpen).Draft.Slots[0]

	c.Close()
	_, ok := store.Preview(h)
	assert.False(t, ok)
	assert.IsType(t, FormOpen{}, c.CancelForm(), "closed controller ignores commands")
}

type failingStars struct{ err error }

func (f failingStars) SetStarred(context.Context, string, bool) error { return f.err }

func TestToggleStarRevertsOnFailure(t *testing.T) {
	c := NewController("1", Deps{
		Backend: memory.New(seed.Default()),
		Stars:   failingStars{err: errors.New("offline")},
	})
	defer c.Close()
	before := loaded(t, c)

	v, err := c.ToggleStar(context.Background())
	require.Error(t, err)
	list := v.(List)
	assert.Equal(t, before.Debtor.IsStarred, list.Debtor.IsStarred)
	assert.Equal(t, StarFallbackError, list.Notice)
}

func TestToggleStarLocal(t *testing.T) {
	c := NewController("1", Deps{Backend: memory.New(seed.Default())})
	defer c.Close()
	before := loaded(t, c)

	v, err := c.ToggleStar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, !before.Debtor.IsStarred, v.(List).Debtor.IsStarred)
}

func TestReduceStarRevertAfterLaterToggle(t *testing.T) {
	var v View = List{Debtor: core.Debtor{ID: "1"}}
	v = Reduce(v, StarToggled{}) // target true
	v = Reduce(v, StarToggled{}) // target false

	list := Reduce(v, StarReverted{Starred: true, Err: errors.New("x")}).(List)
	assert.False(t, list.Debtor.IsStarred, "later toggle keeps its value")
	assert.Equal(t, StarFallbackError, list.Notice)

	list = Reduce(List{Debtor: core.Debtor{ID: "1", IsStarred: true}}, StarReverted{Starred: true, Err: errors.New("x")}).(List)
	assert.False(t, list.Debtor.IsStarred)
}

// heldStars blocks the first SetStarred until release closes and then fails
// it. Later calls succeed and are recorded as the server value.
type heldStars struct {
	mu      sync.Mutex
	calls   int
	server  bool
	entered chan struct{}
	release chan struct{}
}

func (f *heldStars) SetStarred(ctx context.Context, _ string, starred bool) error {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	if !first {
		f.server = starred
	}
	f.mu.Unlock()
	if !first {
		return nil
	}
	close(f.entered)
	select {
	case <-f.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return errors.New("offline")
}

func (f *heldStars) Server() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.server
}

func TestOverlappingToggleStarMatchesServer(t *testing.T) {
	stars := &heldStars{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewController("1", Deps{Backend: memory.New(seed.Default()), Stars: stars})
	defer c.Close()
	before := loaded(t, c)
	stars.server = before.Debtor.IsStarred

	first := make(chan error, 1)
	go func() {
		_, err := c.ToggleStar(context.Background())
		first <- err
	}()
	<-stars.entered

	_, err := c.ToggleStar(context.Background())
	require.NoError(t, err)
	close(stars.release)
	require.Error(t, <-first)

	list := c.View().(List)
	assert.Equal(t, stars.Server(), list.Debtor.IsStarred)
	assert.Equal(t, before.Debtor.IsStarred, list.Debtor.IsStarred)
	assert.Equal(t, StarFallbackError, list.Notice)
}

func TestSubmitRejectsExpiredImages(t *testing.T) {
	store := attachments.NewStore(1, time.Minute, 1<<20)
	backend := memory.New(seed.Default())
	c := NewController("1", Deps{Backend: backend, Attachments: store, Clock: func() time.Time { return fixedNow }})
	defer c.Close()
	loaded(t, c)

	c.OpenForm()
	c.EditDraft(DraftFields{Date: "2024-11-07", Time: "14:51", Amount: "1000"})
	_, err := c.AttachImage(0, core.Image{Name: "a.png", Data: pngBytes})
	require.NoError(t, err)

	// a second open draft pushes this one out of the store
	_, err = store.Put("other", 0, core.Image{Name: "b.png", Data: pngBytes})
	require.NoError(t, err)

	v, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrImagesExpired)
	form, ok := v.(FormOpen)
	require.True(t, ok)
	assert.Equal(t, ImagesExpiredError, form.Err)
	assert.False(t, form.Submitting)

	details, err := backend.GetDebtorDetails(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int64(500000), details.Transactions[0].PaidAmount, "nothing was recorded")
}

func TestSubmitMapsDateAndTime(t *testing.T) {
	c, _ := newController(t, memory.New(seed.Default()), nil)
	loaded(t, c)
	c.OpenForm()

	c.EditDraft(DraftFields{Date: "07.11.2024", Time: "14:51", Amount: "1000"})
	v, err := c.Submit(context.Background())
	require.ErrorIs(t, err, core.ErrInvalidDate)
	assert.Equal(t, DateError, v.(FormOpen).Err)

	c.EditDraft(DraftFields{Date: "2024-11-07", Time: "2pm", Amount: "1000"})
	v, err = c.Submit(context.Background())
	require.ErrorIs(t, err, core.ErrInvalidTime)
	assert.Equal(t, TimeError, v.(FormOpen).Err)
}
