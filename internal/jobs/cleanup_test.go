package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockCredentialPruner struct {
	mu          sync.Mutex
	calls       int
	staleBefore time.Time
	err         error
}

func (m *mockCredentialPruner) DeleteExpired(ctx context.Context, staleBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.staleBefore = staleBefore
	return 3, m.err
}

func (m *mockCredentialPruner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCleanupJob(t *testing.T) {
	t.Run("prunes on start", func(t *testing.T) {
		pruner := &mockCredentialPruner{}
		job := NewCleanupJob(pruner, time.Hour)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool { return pruner.callCount() == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("runs on every tick", func(t *testing.T) {
		pruner := &mockCredentialPruner{}
		job := NewCleanupJob(pruner, 20*time.Millisecond)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool { return pruner.callCount() >= 3 }, time.Second, 10*time.Millisecond)
	})

	t.Run("passes stale cutoff", func(t *testing.T) {
		pruner := &mockCredentialPruner{}
		job := NewCleanupJob(pruner, time.Hour)
		fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		job.now = func() time.Time { return fixed }
		job.staleAfter = 24 * time.Hour

		job.cleanup()

		assert.Equal(t, fixed.Add(-24*time.Hour), pruner.staleBefore)
	})

	t.Run("survives repository errors", func(t *testing.T) {
		pruner := &mockCredentialPruner{err: errors.New("db down")}
		job := NewCleanupJob(pruner, time.Hour)

		assert.NotPanics(t, job.cleanup)
		assert.Equal(t, 1, pruner.callCount())
	})
}
