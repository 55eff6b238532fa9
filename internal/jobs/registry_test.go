package jobs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobInitializesPendingDevices(t *testing.T) {
	r := NewMemoryRegistry()
	id := r.CreateJob([]string{"r1", "r2", "r3"})
	require.NotEmpty(t, id)

	job, err := r.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 3, job.TotalDevices)
	assert.Equal(t, 0, job.CompletedDevices)
	assert.Equal(t, 0, job.FailedDevices)
	assert.Equal(t, 0, job.Progress)
	require.Len(t, job.Devices, 3)
	for _, d := range job.Devices {
		assert.Equal(t, StatusPending, d.Status)
		assert.Nil(t, d.StartedAt)
	}
}

func TestGetJobUnknownID(t *testing.T) {
	r := NewMemoryRegistry()
	_, err := r.GetJob("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestGetJobReturnsCopy(t *testing.T) {
	r := NewMemoryRegistry()
	id := r.CreateJob([]string{"r1"})

	job, err := r.GetJob(id)
	require.NoError(t, err)
	job.Status = StatusFailed
	job.Devices["r1"].Status = StatusFailed

	fresh, err := r.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, fresh.Status)
	assert.Equal(t, StatusPending, fresh.Devices["r1"].Status)
}

func TestDeviceProgressPercentageTracksCounters(t *testing.T) {
	r := NewMemoryRegistry()
	id := r.CreateJob([]string{"r1", "r2", "r3"})

	require.NoError(t, r.UpdateDeviceProgress(id, "r1", StatusCompleted, 100, "", ""))
	job, _ := r.GetJob(id)
	assert.Equal(t, 1, job.CompletedDevices)
	assert.Equal(t, 33, job.Progress) // floor(1/3*100)

	require.NoError(t, r.UpdateDeviceProgress(id, "r2", StatusFailed, 50, "", "ssh timeout"))
	job, _ = r.GetJob(id)
	assert.Equal(t, 1, job.FailedDevices)
	assert.Equal(t, 66, job.Progress) // floor(2/3*100)

	require.NoError(t, r.UpdateDeviceProgress(id, "r3", StatusCompleted, 100, "", ""))
	job, _ = r.GetJob(id)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, job.TotalDevices, job.CompletedDevices+job.FailedDevices)
}

func TestTerminalDeviceRejectsFurtherTransitions(t *testing.T) {
	r := NewMemoryRegistry()
	id := r.CreateJob([]string{"r1"})

	require.NoError(t, r.UpdateDeviceProgress(id, "r1", StatusCompleted, 100, "", ""))
	// A stale worker reporting failure after completion must not double-count.
	require.NoError(t, r.UpdateDeviceProgress(id, "r1", StatusFailed, 0, "", "late error"))

	job, _ := r.GetJob(id)
	assert.Equal(t, 1, job.CompletedDevices)
	assert.Equal(t, 0, job.FailedDevices)
	assert.Equal(t, StatusCompleted, job.Devices["r1"].Status)
}

func TestUpdateDeviceProgressUnknownDevice(t *testing.T) {
	r := NewMemoryRegistry()
	id := r.CreateJob([]string{"r1"})
	err := r.UpdateDeviceProgress(id, "ghost", StatusCompleted, 100, "", "")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestJobStatusLifecycle(t *testing.T) {
	r := NewMemoryRegistry()
	id := r.CreateJob([]string{"r1"})

	require.NoError(t, r.UpdateJobStatus(id, StatusInProgress, ""))
	job, _ := r.GetJob(id)
	assert.Equal(t, StatusInProgress, job.Status)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, r.UpdateJobStatus(id, StatusCompleted, ""))
	job, _ = r.GetJob(id)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

// Parallel worker tasks hammer the registry; each device must be counted
// exactly once and counters must never exceed the total.
func TestConcurrentDeviceUpdatesCountOnce(t *testing.T) {
	r := NewMemoryRegistry()
	const devices = 50
	ids := make([]string, devices)
	for i := range ids {
		ids[i] = fmt.Sprintf("dev-%d", i)
	}
	jobID := r.CreateJob(ids)

	var wg sync.WaitGroup
	for _, dev := range ids {
		dev := dev
		// Two goroutines race to terminate the same device.
		for _, status := range []Status{StatusCompleted, StatusFailed} {
			status := status
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.UpdateDeviceProgress(jobID, dev, status, 100, "", "")
			}()
		}
	}
	wg.Wait()

	job, err := r.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, devices, job.CompletedDevices+job.FailedDevices)
	assert.LessOrEqual(t, job.CompletedDevices+job.FailedDevices, job.TotalDevices)
	assert.Equal(t, 100, job.Progress)
}
