package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracklens/tracklens/internal/core"
)

func TestHealthMonitorVerdicts(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      core.HealthStatus
	}{
		{"mostly successful", 9, 1, core.HealthHealthy},
		{"mostly failing", 3, 7, core.HealthUnhealthy},
		{"borderline", 6, 4, core.HealthDegraded},
		{"all failing", 0, 5, core.HealthUnhealthy},
		{"all successful", 5, 0, core.HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewHealthMonitor()
			for i := 0; i < tt.successes; i++ {
				monitor.RecordSuccess("openai", 120*time.Millisecond)
			}
			for i := 0; i < tt.failures; i++ {
				monitor.RecordFailure("openai", core.ErrorKindServerError)
			}
			require.Equal(t, tt.want, monitor.Status("openai"))
		})
	}
}

func TestHealthMonitorColdStartIsOptimistic(t *testing.T) {
	monitor := NewHealthMonitor()

	require.Equal(t, core.HealthHealthy, monitor.Status("never-tried"))
	require.True(t, monitor.IsHealthy("never-tried"))
}

func TestHealthMonitorOnlyWindowedOutcomesCount(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	monitor := NewHealthMonitor()
	monitor.Clock = func() time.Time { return now }

	for i := 0; i < 6; i++ {
		monitor.RecordFailure("flaky", core.ErrorKindTimeout)
	}
	require.Equal(t, core.HealthUnhealthy, monitor.Status("flaky"))

	// Old failures age out of the window; fresh successes dominate.
	now = now.Add(10 * time.Minute)
	monitor.RecordSuccess("flaky", 80*time.Millisecond)
	monitor.RecordSuccess("flaky", 90*time.Millisecond)
	require.Equal(t, core.HealthHealthy, monitor.Status("flaky"))
}

func TestHealthMonitorBoundsSampleCount(t *testing.T) {
	monitor := NewHealthMonitor()
	monitor.MaxSamples = 4

	for i := 0; i < 20; i++ {
		monitor.RecordFailure("noisy", core.ErrorKindServerError)
	}
	for i := 0; i < 4; i++ {
		monitor.RecordSuccess("noisy", time.Millisecond)
	}

	// Only the 4 newest samples remain, all successes.
	require.Equal(t, core.HealthHealthy, monitor.Status("noisy"))
}

func TestHealthMonitorConcurrentProviders(t *testing.T) {
	monitor := NewHealthMonitor()

	var wg sync.WaitGroup
	providers := []string{"a", "b", "c", "d"}
	for _, name := range providers {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(name string, i int) {
				defer wg.Done()
				if i%2 == 0 {
					monitor.RecordSuccess(name, time.Millisecond)
				} else {
					monitor.RecordFailure(name, core.ErrorKindRateLimited)
				}
				_ = monitor.Status(name)
			}(name, i)
		}
	}
	wg.Wait()

	for _, name := range providers {
		require.Equal(t, core.HealthUnhealthy, monitor.Status(name))
	}
}
