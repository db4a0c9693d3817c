package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/latoulicious/groovebox/pkg/metrics"
)

func TestCollectorCountsAndAverages(t *testing.T) {
	c := metrics.NewBasicCollector()

	c.RecordResolve(true, 100*time.Millisecond)
	c.RecordResolve(true, 300*time.Millisecond)
	c.RecordResolve(false, 0)
	c.RecordDecode(true, 2*time.Second)
	c.RecordPlayStart()
	c.RecordPlayEnd(90 * time.Second)
	c.RecordPreloadHit()
	c.RecordPreloadMiss()
	c.RecordError("NETWORK_REQUEST_TIMEOUT")
	c.RecordError("NETWORK_REQUEST_TIMEOUT")
	c.SetActiveSessions(3)
	c.SetTrackedProcesses(2)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.Resolves)
	assert.Equal(t, int64(1), snap.ResolveFailures)
	assert.Equal(t, 200*time.Millisecond, snap.AvgResolveTime)
	assert.Equal(t, int64(1), snap.Decodes)
	assert.Equal(t, 2*time.Second, snap.AvgDecodeTime)
	assert.Equal(t, int64(1), snap.PlaysStarted)
	assert.Equal(t, int64(1), snap.PlaysCompleted)
	assert.Equal(t, 90*time.Second, snap.TotalPlaybackTime)
	assert.Equal(t, int64(1), snap.PreloadHits)
	assert.Equal(t, int64(1), snap.PreloadMisses)
	assert.Equal(t, 2, snap.ErrorsByCode["NETWORK_REQUEST_TIMEOUT"])
	assert.Equal(t, 3, snap.ActiveSessions)
	assert.Equal(t, 2, snap.TrackedProcesses)
	assert.Greater(t, snap.Uptime, time.Duration(0))
}

func TestSnapshotIsACopy(t *testing.T) {
	c := metrics.NewBasicCollector()
	c.RecordError("MEDIA_RESOLVE_FAILED")

	snap := c.Snapshot()
	snap.ErrorsByCode["MEDIA_RESOLVE_FAILED"] = 99

	assert.Equal(t, 1, c.Snapshot().ErrorsByCode["MEDIA_RESOLVE_FAILED"])
}

func TestIsHealthyHeuristic(t *testing.T) {
	c := metrics.NewBasicCollector()

	// Too few samples to judge
	c.RecordResolve(false, 0)
	assert.True(t, c.IsHealthy())

	for i := 0; i < 10; i++ {
		c.RecordResolve(false, 0)
	}
	assert.False(t, c.IsHealthy())

	healthy := metrics.NewBasicCollector()
	for i := 0; i < 10; i++ {
		healthy.RecordResolve(true, time.Millisecond)
	}
	assert.True(t, healthy.IsHealthy())
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := metrics.NewBasicCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordResolve(true, time.Millisecond)
				c.RecordError("SYSTEM_RATE_LIMITED")
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(800), snap.Resolves)
	assert.Equal(t, 800, snap.ErrorsByCode["SYSTEM_RATE_LIMITED"])
}
