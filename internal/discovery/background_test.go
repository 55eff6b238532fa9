package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/netgraph/internal/jobs"
)

// gaugeFetcher counts overlapping fetches so tests can assert the worker
// pool bound.
type gaugeFetcher struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (g *gaugeFetcher) Fetch(_ context.Context, _ *Identity, _ Category) ([]map[string]any, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return []map[string]any{{"address": "10.0.0.2"}}, nil
}

func (g *gaugeFetcher) peakInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// blockingFetcher parks every fetch until its context is cancelled, so a
// test can cancel a group with tasks both in flight and still queued.
type blockingFetcher struct {
	started chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context, _ *Identity, _ Category) ([]map[string]any, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOrchestratorBoundsWorkerPool(t *testing.T) {
	fetcher := &gaugeFetcher{}
	devices := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
	e := newTestEngine(t, fetcher, devices...)
	orch := &Orchestrator{Engine: e, Concurrency: 2, PollInterval: 10 * time.Millisecond}

	result, err := orch.Run(context.Background(), devices, []Category{CategoryARP}, false)
	require.NoError(t, err)
	assert.Len(t, result.DevicesData, len(devices))
	assert.Empty(t, result.Errors)
	assert.LessOrEqual(t, fetcher.peakInFlight(), 2, "never more device sweeps in flight than Concurrency")

	job, err := e.Jobs.GetJob(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, len(devices), job.CompletedDevices)
	assert.Equal(t, 100, job.Progress)
}

func TestOrchestratorCancellationLeavesEveryDeviceTerminal(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}, 1)}
	devices := []string{"r1", "r2", "r3"}
	e := newTestEngine(t, fetcher, devices...)
	orch := &Orchestrator{Engine: e, Concurrency: 1, PollInterval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := orch.Run(ctx, devices, []Category{CategoryInterfaces, CategoryARP}, false)
		done <- outcome{r, err}
	}()

	// Revoke the group with one sweep in flight and two still queued.
	<-fetcher.started
	cancel()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not return after cancellation")
	}
	require.NoError(t, out.err)

	job, err := e.Jobs.GetJob(out.result.JobID)
	require.NoError(t, err)
	assert.Equal(t, len(devices), job.CompletedDevices+job.FailedDevices,
		"no device may be left non-terminal after cancellation")
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, jobs.StatusFailed, job.Status, "every device failed, so the job fails")

	// Each device surfaces a cancellation error rather than going missing.
	for _, id := range devices {
		assert.Equal(t, jobs.StatusFailed, job.Devices[id].Status)
		assert.Contains(t, out.result.Errors[id], "cancel", "device %s", id)
	}
}

func TestOrchestratorRunJobReusesCreatedJob(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{
		CategoryARP: {{"address": "10.0.0.2"}},
	}}
	e := newTestEngine(t, fetcher, "r1")
	orch := &Orchestrator{Engine: e, Concurrency: 2, PollInterval: 10 * time.Millisecond}

	jobID := e.Jobs.CreateJob([]string{"r1"})
	result, err := orch.RunJob(context.Background(), jobID, []string{"r1"}, []Category{CategoryARP}, true)
	require.NoError(t, err)
	assert.Equal(t, jobID, result.JobID)

	job, err := e.Jobs.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

func TestOrchestratorAggregatesMixedOutcomes(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{
		CategoryARP: {{"address": "10.0.0.2"}},
	}}
	e := newTestEngine(t, fetcher, "r2") // r1 missing from inventory
	orch := &Orchestrator{Engine: e, Concurrency: 4, PollInterval: 10 * time.Millisecond}

	result, err := orch.Run(context.Background(), []string{"r1", "r2"}, []Category{CategoryARP}, true)
	require.NoError(t, err)
	assert.Contains(t, result.Errors["r1"], "identity resolution failed")
	assert.Contains(t, result.DevicesData, "r2")
	assert.NotContains(t, result.DevicesData, "r1")

	job, err := e.Jobs.GetJob(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status, "one survivor keeps the job completed")
	assert.Equal(t, 1, job.CompletedDevices)
	assert.Equal(t, 1, job.FailedDevices)
	assert.Equal(t, 100, job.Progress)
}
