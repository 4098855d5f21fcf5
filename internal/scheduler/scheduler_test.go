package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcraft/internal/store"
)

// mockMaintenanceStore satisfies store.Store for maintenance tests.
type mockMaintenanceStore struct {
	store.Store
	mu       sync.Mutex
	cutoffs  []time.Time
	vacuums  int
	pruned   int64
	pruneErr error
	block    chan struct{}
}

func (m *mockMaintenanceStore) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, before)
	return m.pruned, m.pruneErr
}

func (m *mockMaintenanceStore) Vacuum(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacuums++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(&mockMaintenanceStore{}, Config{Schedule: "not a cron"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron expression")
}

func TestNext(t *testing.T) {
	m, err := New(&mockMaintenanceStore{}, Config{Logger: testLogger()})
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), m.Next(from))

	hourly, err := New(&mockMaintenanceStore{}, Config{Schedule: "15 * * * *", Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 15, 0, 0, time.UTC), hourly.Next(from))
}

func TestRunOnce_PrunesThenVacuums(t *testing.T) {
	st := &mockMaintenanceStore{pruned: 7}
	m, err := New(st, Config{Retention: 24 * time.Hour, Logger: testLogger()})
	require.NoError(t, err)
	fixed := time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	r, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.Pruned)
	assert.True(t, r.Vacuumed)
	require.Len(t, st.cutoffs, 1)
	assert.Equal(t, fixed.Add(-24*time.Hour), st.cutoffs[0])
	assert.Equal(t, 1, st.vacuums)
}

func TestRunOnce_NoRetentionSkipsPrune(t *testing.T) {
	st := &mockMaintenanceStore{}
	m, err := New(st, Config{Logger: testLogger()})
	require.NoError(t, err)

	r, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.Pruned)
	assert.Empty(t, st.cutoffs)
	assert.Equal(t, 1, st.vacuums)
}

func TestRunOnce_PruneError(t *testing.T) {
	st := &mockMaintenanceStore{pruneErr: errors.New("disk full")}
	m, err := New(st, Config{Retention: time.Hour, Logger: testLogger()})
	require.NoError(t, err)

	_, err = m.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, st.vacuums, "vacuum is skipped after a failed prune")
}

func TestRunOnce_NoOverlap(t *testing.T) {
	st := &mockMaintenanceStore{block: make(chan struct{})}
	m, err := New(st, Config{Retention: time.Hour, Logger: testLogger()})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.RunOnce(context.Background())
	}()

	require.Eventually(t, m.running.Load, time.Second, time.Millisecond)
	r, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Vacuumed, "overlapping run is skipped")

	close(st.block)
	<-done
	assert.Equal(t, 1, st.vacuums)
}

func TestStartStop(t *testing.T) {
	m, err := New(&mockMaintenanceStore{}, Config{Logger: testLogger()})
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()), "second start fails")
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop(), "stop is idempotent")
}
