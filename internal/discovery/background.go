package discovery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vesaa/netgraph/internal/jobs"
)

// BackgroundFetcher satisfies CategoryFetcher for the worker path: it runs
// the category's command directly over the device transport (no HTTP hop)
// and hands the raw output to the injected parser. It is blocking end to
// end, matching the one-task-per-device worker model.
type BackgroundFetcher struct {
	Runner CommandRunner
	Parser RowParser
}

// Fetch executes the command on the device's primary IP and parses the rows.
func (b *BackgroundFetcher) Fetch(ctx context.Context, ident *Identity, category Category) ([]map[string]any, error) {
	raw, err := b.Runner.Run(ctx, ident.PrimaryIP, category.Command())
	if err != nil {
		return nil, err
	}
	rows, err := b.Parser.Parse(category.Command(), raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %q output from %s: %w", category.Command(), ident.DeviceID, err)
	}
	return rows, nil
}

// Orchestrator fans a background job out as one parallel group of per-device
// tasks and polls the job registry for aggregate progress. Devices never
// share cache keys or table rows, so the tasks only contend on the registry,
// which serializes counter updates itself.
type Orchestrator struct {
	Engine      *Engine
	Concurrency int
	// PollInterval paces the progress log while the group runs.
	PollInterval time.Duration
}

// Run dispatches one task per device, bounded by Concurrency, and blocks
// until every device reaches a terminal state. Cancelling ctx surfaces each
// unfinished device as failed with a cancellation error rather than leaving
// it silently missing.
func (o *Orchestrator) Run(ctx context.Context, deviceIDs []string, categories []Category, cacheEnabled bool) (*Result, error) {
	start := time.Now()
	jobID := o.Engine.Jobs.CreateJob(deviceIDs)
	_ = o.Engine.Jobs.UpdateJobStatus(jobID, jobs.StatusInProgress, "")
	return o.run(ctx, jobID, start, deviceIDs, categories, cacheEnabled)
}

// RunJob is Run for a pre-created job id, used when the API has already
// handed the id back to the caller before the group starts.
func (o *Orchestrator) RunJob(ctx context.Context, jobID string, deviceIDs []string, categories []Category, cacheEnabled bool) (*Result, error) {
	_ = o.Engine.Jobs.UpdateJobStatus(jobID, jobs.StatusInProgress, "")
	return o.run(ctx, jobID, time.Now(), deviceIDs, categories, cacheEnabled)
}

func (o *Orchestrator) run(ctx context.Context, jobID string, start time.Time, deviceIDs []string, categories []Category, cacheEnabled bool) (*Result, error) {
	concurrency := o.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	poll := o.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	result := &Result{
		JobID:       jobID,
		DevicesData: make(map[string]*DeviceData),
		Errors:      make(map[string]string),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, concurrency)
	)

	for _, deviceID := range deviceIDs {
		deviceID := deviceID
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Task revoked before it started.
				_ = o.Engine.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusFailed, 0, "",
					fmt.Sprintf("discovery cancelled: %v", ctx.Err()))
				mu.Lock()
				result.Errors[deviceID] = "discovery cancelled before start"
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			data, err := o.Engine.DiscoverDevice(ctx, jobID, deviceID, categories, cacheEnabled)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[deviceID] = err.Error()
			}
			if data != nil {
				result.DevicesData[deviceID] = data
				for cat, cr := range data.Categories {
					if cr.Error != "" {
						result.Errors[deviceID+":"+string(cat)] = cr.Error
					}
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Poll individual device statuses to report aggregate progress while
	// the group runs.
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			o.Engine.finishJob(jobID)
			result.Duration = time.Since(start)
			log.Printf("[worker] job %s finished: %d devices in %s", jobID, len(deviceIDs), result.Duration)
			return result, nil
		case <-ticker.C:
			if job, err := o.Engine.Jobs.GetJob(jobID); err == nil {
				log.Printf("[worker] job %s: %d%% (%d ok / %d failed / %d total)",
					jobID, job.Progress, job.CompletedDevices, job.FailedDevices, job.TotalDevices)
			}
		}
	}
}
