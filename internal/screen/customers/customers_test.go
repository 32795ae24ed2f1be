package customers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nasiya/internal/core"
	"nasiya/internal/profile"
)

func sample() []core.Debtor {
	return []core.Debtor{
		{ID: "1", FullName: "Avazbek Solijonov", PhoneNumbers: []string{"+998 91 123 45 67"}, Address: "Toshkent"},
		{ID: "2", FullName: "Dilnoza Karimova", PhoneNumbers: []string{"+998 90 000 11 22"}, Address: "Samarqand", IsStarred: true},
		{ID: "3", FullName: "Jasur Aliyev", Address: "Buxoro"},
	}
}

type fakeLister struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	debtors []core.Debtor
	err     error
}

func (f *fakeLister) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.debtors, f.err
}

func (f *fakeLister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStars struct {
	err   error
	calls []bool
}

func (f *fakeStars) SetStarred(_ context.Context, _ string, starred bool) error {
	f.calls = append(f.calls, starred)
	return f.err
}

// heldStars blocks SetStarred(true) until release closes and then fails it.
// SetStarred(false) succeeds immediately.
type heldStars struct {
	mu      sync.Mutex
	server  map[string]bool
	entered chan struct{}
	release chan struct{}
}

func (f *heldStars) SetStarred(ctx context.Context, id string, starred bool) error {
	if starred {
		close(f.entered)
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return errors.New("offline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.server[id] = starred
	return nil
}

func (f *heldStars) Server(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.server[id]
}

func TestReduceFetch(t *testing.T) {
	s := Reduce(State{}, FetchStarted{})
	assert.Equal(t, Loading, s.Phase)

	s = Reduce(s, FetchFailed{Err: errors.New("network down")})
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, FallbackError, s.Err)
	assert.Empty(t, s.Redirect)

	s = Reduce(s, FetchSucceeded{Debtors: sample()})
	assert.Equal(t, Ready, s.Phase)
	assert.Empty(t, s.Err)
	assert.Len(t, s.Debtors, 3)
	assert.Equal(t, uint64(1), s.Version)
}

func TestReduceFetchFailedPrefersServerMessage(t *testing.T) {
	s := Reduce(State{}, FetchFailed{Err: &profile.APIError{Status: 500, Message: "Server xatosi"}})
	assert.Equal(t, "Server xatosi", s.Err)
	assert.Empty(t, s.Redirect)

	s = Reduce(State{}, FetchFailed{Err: profile.Unauthenticated("")})
	assert.Equal(t, LoginPath, s.Redirect)
	assert.Equal(t, FallbackError, s.Err)
}

func TestReduceStarToggleIsPure(t *testing.T) {
	before := Reduce(State{}, FetchSucceeded{Debtors: sample()})
	after := Reduce(before, StarToggled{ID: "1"})

	assert.False(t, before.Debtors[0].IsStarred, "previous state must not change")
	assert.True(t, after.Debtors[0].IsStarred)
	assert.Equal(t, before.Version+1, after.Version)

	back := Reduce(after, StarToggled{ID: "1"})
	assert.Equal(t, before.Debtors, back.Debtors)

	reverted := Reduce(after, StarReverted{ID: "1", Starred: true, Err: errors.New("x")})
	assert.False(t, reverted.Debtors[0].IsStarred)
	assert.Equal(t, StarFallbackError, reverted.Notice)
}

func TestReduceStarRevertAfterLaterToggle(t *testing.T) {
	s := Reduce(State{}, FetchSucceeded{Debtors: sample()})
	s = Reduce(s, StarToggled{ID: "1"}) // target true
	s = Reduce(s, StarToggled{ID: "1"}) // target false

	s = Reduce(s, StarReverted{ID: "1", Starred: true, Err: errors.New("x")})
	d, _ := core.FindDebtor(s.Debtors, "1")
	assert.False(t, d.IsStarred, "later toggle keeps its value")
	assert.Equal(t, StarFallbackError, s.Notice)
}

func TestFilterMemo(t *testing.T) {
	var f Filter
	s := Reduce(State{}, FetchSucceeded{Debtors: sample()})

	assert.Len(t, f.Apply(s), 3)
	assert.Len(t, f.Apply(s), 3)
	assert.Equal(t, 1, f.Computes(), "same version and query must not recompute")

	s = Reduce(s, QueryChanged{Query: "dil"})
	got := f.Apply(s)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, 2, f.Computes())

	s = Reduce(s, QueryChanged{Query: "dil"})
	f.Apply(s)
	assert.Equal(t, 2, f.Computes())

	s = Reduce(s, StarToggled{ID: "2"})
	got = f.Apply(s)
	assert.Equal(t, 3, f.Computes(), "collection change must recompute")
	assert.False(t, got[0].IsStarred)
}

func TestFilterMatchesPhoneAndAddress(t *testing.T) {
	s := Reduce(State{}, FetchSucceeded{Debtors: sample()})
	var f Filter

	s.Query = "000 11"
	assert.Equal(t, []string{"2"}, ids(f.Apply(s)))

	s.Query = "BUXORO"
	assert.Equal(t, []string{"3"}, ids(f.Apply(s)))

	s.Query = ""
	assert.Equal(t, []string{"1", "2", "3"}, ids(f.Apply(s)))
}

func ids(ds []core.Debtor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

func TestControllerActivateIsIdempotent(t *testing.T) {
	lister := &fakeLister{release: make(chan struct{}), debtors: sample()}
	c := NewController(lister, nil, nil)
	defer c.Close()

	c.Activate(context.Background())
	c.Activate(context.Background())
	assert.Equal(t, Loading, c.State().Phase)

	close(lister.release)
	s := c.Await(context.Background())
	assert.Equal(t, Ready, s.Phase)
	assert.Equal(t, 1, lister.Calls())

	c.Activate(context.Background())
	c.Await(context.Background())
	assert.Equal(t, 1, lister.Calls())

	c.Refresh(context.Background())
	c.Await(context.Background())
	assert.Equal(t, 2, lister.Calls())
}

func TestControllerFetchOutlivesRequestContext(t *testing.T) {
	lister := &fakeLister{release: make(chan struct{}), debtors: sample()}
	c := NewController(lister, nil, nil)
	defer c.Close()

	reqCtx, cancelReq := context.WithCancel(context.Background())
	c.Activate(reqCtx)
	cancelReq()
	close(lister.release)

	assert.Equal(t, Ready, c.Await(context.Background()).Phase)
}

func TestControllerCloseDropsLateResults(t *testing.T) {
	lister := &fakeLister{release: make(chan struct{}), debtors: sample()}
	c := NewController(lister, nil, nil)

	c.Activate(context.Background())
	c.Close()
	s := c.Await(context.Background())
	assert.Equal(t, Loading, s.Phase)
	assert.Nil(t, s.Debtors)
}

func TestControllerAwaitHonoursContext(t *testing.T) {
	lister := &fakeLister{release: make(chan struct{}), debtors: sample()}
	c := NewController(lister, nil, nil)
	defer c.Close()
	c.Activate(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, Loading, c.Await(ctx).Phase)
	close(lister.release)
}

func TestControllerUnauthenticated(t *testing.T) {
	c := NewController(&fakeLister{err: profile.Unauthenticated("")}, nil, nil)
	defer c.Close()
	c.Activate(context.Background())
	s := c.Await(context.Background())
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, LoginPath, s.Redirect)
}

func TestControllerToggleStarLocalOnly(t *testing.T) {
	c := NewController(&fakeLister{debtors: sample()}, nil, nil)
	defer c.Close()
	c.Activate(context.Background())
	c.Await(context.Background())

	require.NoError(t, c.ToggleStar(context.Background(), "3"))
	d, ok := core.FindDebtor(c.State().Debtors, "3")
	require.True(t, ok)
	assert.True(t, d.IsStarred)
}

func TestControllerToggleStarPersistsAndReverts(t *testing.T) {
	stars := &fakeStars{}
	c := NewController(&fakeLister{debtors: sample()}, stars, nil)
	defer c.Close()
	c.Activate(context.Background())
	c.Await(context.Background())

	require.NoError(t, c.ToggleStar(context.Background(), "1"))
	assert.Equal(t, []bool{true}, stars.calls)

	stars.err = errors.New("offline")
	err := c.ToggleStar(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, []bool{true, false}, stars.calls)

	s := c.State()
	d, _ := core.FindDebtor(s.Debtors, "1")
	assert.True(t, d.IsStarred, "failed unstar is reverted")
	assert.Equal(t, StarFallbackError, s.Notice)
}

func TestControllerOverlappingToggleMatchesServer(t *testing.T) {
	stars := &heldStars{
		server:  map[string]bool{},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewController(&fakeLister{debtors: sample()}, stars, nil)
	defer c.Close()
	c.Activate(context.Background())
	c.Await(context.Background())

	first := make(chan error, 1)
	go func() { first <- c.ToggleStar(context.Background(), "1") }()
	<-stars.entered

	require.NoError(t, c.ToggleStar(context.Background(), "1"))
	close(stars.release)
	require.Error(t, <-first)

	d, _ := core.FindDebtor(c.State().Debtors, "1")
	assert.Equal(t, stars.Server("1"), d.IsStarred)
	assert.False(t, d.IsStarred)
	assert.Equal(t, StarFallbackError, c.State().Notice)
}

func TestControllerVisible(t *testing.T) {
	c := NewController(&fakeLister{debtors: sample()}, nil, nil)
	defer c.Close()
	c.Activate(context.Background())
	c.Await(context.Background())

	c.Search("avaz")
	assert.Equal(t, []string{"1"}, ids(c.Visible()))
	c.Visible()
	assert.Equal(t, 1, c.FilterComputes())
}
