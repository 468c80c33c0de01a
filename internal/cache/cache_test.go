package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
	"github.com/MarcoPoloResearchLab/roster/internal/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errRemote = errors.New("remote unavailable")

type fakeSource struct {
	mu         sync.Mutex
	rows       []records.Record
	fetchErr   error
	mutateErr  error
	gate       chan struct{}
	fetchCalls int
}

func (s *fakeSource) FetchAll(context.Context) ([]records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return append([]records.Record(nil), s.rows...), nil
}

func (s *fakeSource) Create(_ context.Context, record records.Record) (records.Record, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutateErr != nil {
		return records.Record{}, s.mutateErr
	}
	s.rows = append([]records.Record{record}, s.rows...)
	return record, nil
}

func (s *fakeSource) Update(_ context.Context, record records.Record) (records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutateErr != nil {
		return records.Record{}, s.mutateErr
	}
	for index := range s.rows {
		if s.rows[index].ID == record.ID {
			s.rows[index] = record
		}
	}
	return record, nil
}

func (s *fakeSource) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutateErr != nil {
		return s.mutateErr
	}
	kept := s.rows[:0]
	for _, row := range s.rows {
		if row.ID != id {
			kept = append(kept, row)
		}
	}
	s.rows = kept
	return nil
}

func sampleRows() []records.Record {
	return []records.Record{
		{ID: 1, FirstName: "Anna", LastName: "Perera", Age: 31},
		{ID: 2, FirstName: "Bob", LastName: "Stone", Age: 25},
		{ID: 3, FirstName: "Cara", LastName: "Silva", Age: 40},
	}
}

func newLoadedCache(t *testing.T, source *fakeSource, opts ...Option) *Cache[records.Record] {
	t.Helper()
	c, err := New[records.Record]("users", source, opts...)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background())
	require.NoError(t, err)
	return c
}

func keys(rows []records.Record) []int {
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func TestOptimisticCreateVisibleBeforeSourceResolves(t *testing.T) {
	source := &fakeSource{rows: sampleRows(), gate: make(chan struct{})}
	c := newLoadedCache(t, source, WithBackgroundRefetch(false))

	done := make(chan error, 1)
	go func() {
		_, err := c.Create(context.Background(), records.Record{ID: 9, FirstName: "New"})
		done <- err
	}()

	require.Eventually(t, func() bool {
		rows := c.Rows()
		return len(rows) == 4 && rows[0].ID == 9
	}, time.Second, 5*time.Millisecond)

	close(source.gate)
	require.NoError(t, <-done)
	require.Equal(t, []int{9, 1, 2, 3}, keys(c.Rows()))
	require.True(t, c.IsStale())
}

func TestOptimisticCreateReachesTableBeforeSourceResolves(t *testing.T) {
	source := &fakeSource{rows: sampleRows(), gate: make(chan struct{})}
	c := newLoadedCache(t, source, WithBackgroundRefetch(false))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots, stop := c.Subscribe(ctx)
	defer stop()

	drafts := []records.Record{{ID: 20, FirstName: "Draft"}}
	controller := table.New[records.Record](table.Merge(c.Rows(), drafts), table.UserColumns(), table.WithPageSize(10))

	done := make(chan error, 1)
	go func() {
		_, err := c.Create(context.Background(), records.Record{ID: 9, FirstName: "New"})
		done <- err
	}()

	select {
	case snapshot := <-snapshots:
		controller.SetRows(table.Merge(snapshot.Rows, drafts))
	case <-time.After(time.Second):
		t.Fatal("expected optimistic snapshot")
	}
	require.Equal(t, []int{9, 1, 2, 3, 20}, keys(controller.Rows()))
	require.Equal(t, 5, controller.RowCount())

	close(source.gate)
	require.NoError(t, <-done)
}

func TestFailedCreateRollsBack(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	source := &fakeSource{rows: sampleRows(), mutateErr: errRemote}
	c := newLoadedCache(t, source, WithLogger(zap.New(core)))

	_, err := c.Create(context.Background(), records.Record{ID: 1, FirstName: "Duplicate"})
	require.ErrorIs(t, err, errRemote)
	rows := c.Rows()
	require.Equal(t, []int{1, 2, 3}, keys(rows))
	require.Equal(t, "Anna", rows[0].FirstName)
	require.Equal(t, 1, logs.FilterField(zap.String("operation", opCreate)).Len())
}

func TestFailedUpdateRestoresPreviousRecord(t *testing.T) {
	source := &fakeSource{rows: sampleRows(), mutateErr: errRemote}
	c := newLoadedCache(t, source)

	_, err := c.Update(context.Background(), records.Record{ID: 2, FirstName: "Robert"})
	require.Error(t, err)
	require.Equal(t, "Bob", c.Rows()[1].FirstName)
}

func TestFailedDeleteReinsertsAtFormerIndex(t *testing.T) {
	source := &fakeSource{rows: sampleRows(), mutateErr: errRemote}
	c := newLoadedCache(t, source)

	err := c.Delete(context.Background(), 2)
	require.ErrorIs(t, err, errRemote)
	require.Equal(t, []int{1, 2, 3}, keys(c.Rows()))
}

func TestConfirmedMutationTriggersRefetch(t *testing.T) {
	source := &fakeSource{rows: sampleRows()}
	c := newLoadedCache(t, source)

	require.NoError(t, c.Delete(context.Background(), 1))
	c.Wait()

	require.Equal(t, []int{2, 3}, keys(c.Rows()))
	require.False(t, c.IsStale())
	source.mu.Lock()
	defer source.mu.Unlock()
	require.Equal(t, 2, source.fetchCalls)
}

func TestFetchFailureKeepsSnapshot(t *testing.T) {
	source := &fakeSource{rows: sampleRows()}
	c := newLoadedCache(t, source)
	before := c.Snapshot()

	source.mu.Lock()
	source.fetchErr = errRemote
	source.mu.Unlock()

	_, err := c.Fetch(context.Background())
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "users", fetchErr.Key)
	require.ErrorIs(t, err, errRemote)
	require.Equal(t, before, c.Snapshot())
}

func TestStaleAfterStaleTime(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := newLoadedCache(t, &fakeSource{rows: sampleRows()}, WithClock(clock), WithStaleTime(time.Minute))

	require.False(t, c.IsStale())
	now = now.Add(2 * time.Minute)
	require.True(t, c.IsStale())
}

func TestSubscribersObserveEverySnapshotChange(t *testing.T) {
	c := newLoadedCache(t, &fakeSource{rows: sampleRows()}, WithBackgroundRefetch(false))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, stopFirst := c.Subscribe(ctx)
	defer stopFirst()
	second, stopSecond := c.Subscribe(ctx)
	defer stopSecond()

	c.Invalidate()
	for _, stream := range []<-chan Snapshot[records.Record]{first, second} {
		select {
		case snapshot := <-stream:
			require.True(t, snapshot.Stale)
		case <-time.After(time.Second):
			t.Fatal("expected snapshot notification")
		}
	}

	stopFirst()
	require.Equal(t, 1, c.stream.count())
}

func TestApplyDispatchesIntents(t *testing.T) {
	c := newLoadedCache(t, &fakeSource{rows: sampleRows()}, WithBackgroundRefetch(false))

	outcome := c.Apply(context.Background(), Intent[records.Record]{Kind: IntentCreate, Record: records.Record{ID: 4}})
	require.True(t, outcome.Confirmed)
	require.Equal(t, 4, outcome.ID)

	outcome = c.Apply(context.Background(), Intent[records.Record]{Kind: IntentDelete, ID: 4})
	require.True(t, outcome.Confirmed)

	outcome = c.Apply(context.Background(), Intent[records.Record]{Kind: "merge"})
	require.False(t, outcome.Confirmed)
	require.Error(t, outcome.Err)
}

func TestRegistryHoldsOneCachePerKey(t *testing.T) {
	registry := NewRegistry()
	users := newLoadedCache(t, &fakeSource{rows: sampleRows()})
	require.NoError(t, Register(registry, users))

	again, err := New[records.Record]("users", &fakeSource{})
	require.NoError(t, err)
	require.ErrorIs(t, Register(registry, again), ErrDuplicateCollection)

	found, ok := Lookup[records.Record](registry, "users")
	require.True(t, ok)
	require.Same(t, users, found)

	_, ok = Lookup[records.Product](registry, "users")
	require.False(t, ok)

	require.Empty(t, registry.Stale())
	registry.Invalidate("users")
	require.Equal(t, []string{"users"}, registry.Stale())
	registry.Wait()
}

func TestSubscriptionStreamClosesOnStopAndCancel(t *testing.T) {
	c := newLoadedCache(t, &fakeSource{rows: sampleRows()}, WithBackgroundRefetch(false))

	stopped, stop := c.Subscribe(context.Background())
	stop()
	stop()
	_, ok := <-stopped
	require.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled, release := c.Subscribe(ctx)
	defer release()
	cancel()
	select {
	case _, ok := <-cancelled:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected stream to close after cancel")
	}
	require.Zero(t, c.stream.count())
}

func TestSubscribersSeeVersionsInOrder(t *testing.T) {
	c := newLoadedCache(t, &fakeSource{rows: sampleRows()}, WithBackgroundRefetch(false))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots, stop := c.Subscribe(ctx)
	defer stop()

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for index := 0; index < writers; index++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := c.Update(context.Background(), records.Record{ID: 1 + id%3, FirstName: "Writer"})
			errs <- err
		}(index)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	final := c.Snapshot().Version

	var last uint64
	for last < final {
		select {
		case snapshot := <-snapshots:
			require.Greater(t, snapshot.Version, last)
			last = snapshot.Version
		case <-time.After(time.Second):
			t.Fatalf("stopped at version %d of %d", last, final)
		}
	}
}
