package discovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vesaa/netgraph/internal/jobs"
	"github.com/vesaa/netgraph/internal/models"
	"github.com/vesaa/netgraph/internal/store"
)

// CategoryResult is what one category sweep yielded for one device.
type CategoryResult struct {
	Category Category         `json:"category"`
	Rows     []map[string]any `json:"rows"`
	Cached   bool             `json:"cached"`
	Error    string           `json:"error,omitempty"`
}

// DeviceData aggregates all category results for one device. Partial data is
// valid: failed categories are present with an Error and empty Rows.
type DeviceData struct {
	DeviceID   string                       `json:"device_id"`
	Name       string                       `json:"device_name"`
	PrimaryIP  string                       `json:"primary_ip"`
	Platform   string                       `json:"platform"`
	Categories map[Category]*CategoryResult `json:"categories"`
}

// Result is the outcome of a whole discovery job.
type Result struct {
	JobID       string                 `json:"job_id"`
	DevicesData map[string]*DeviceData `json:"devices_data"`
	// Errors is keyed by device id for identity failures and by
	// "<device>:<category>" for per-category failures.
	Errors   map[string]string `json:"errors"`
	Duration time.Duration     `json:"duration"`
}

// Engine runs the per-device discovery algorithm. Both execution strategies
// share it; only the CategoryFetcher and the sweep Order differ.
type Engine struct {
	Store     *store.Store
	Inventory Inventory
	Jobs      jobs.Registry
	Fetcher   CategoryFetcher
	// Order is the strategy's fixed category order (ForegroundOrder or
	// BackgroundOrder); requested categories are swept in this order.
	Order []Category
}

// DiscoverDevice sweeps one device: resolve identity, upsert the device
// record, then walk the requested categories — cache first, live fetch on
// miss, normalize and persist on success, record-and-continue on failure.
// The returned error is non-nil only for identity failures (the device is
// marked failed); category failures leave the device completed.
func (e *Engine) DiscoverDevice(ctx context.Context, jobID, deviceID string, categories []Category, cacheEnabled bool) (*DeviceData, error) {
	_ = e.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusInProgress, 0, "resolving identity", "")

	ident, err := e.Inventory.GetDevice(ctx, deviceID)
	if err == nil {
		err = ident.Validate()
	}
	if err != nil {
		msg := fmt.Sprintf("identity resolution failed: %v", err)
		_ = e.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusFailed, 0, "", msg)
		return nil, fmt.Errorf("%s: %s", deviceID, msg)
	}

	// Device record first, so category rows always have an owner.
	if _, err := e.Store.UpsertDevice(ident.DeviceID, ident.Name, ident.PrimaryIP, ident.Platform, ident.NetworkDriver); err != nil {
		msg := fmt.Sprintf("device record upsert failed: %v", err)
		_ = e.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusFailed, 0, "", msg)
		return nil, fmt.Errorf("%s: %s", deviceID, msg)
	}

	data := &DeviceData{
		DeviceID:   ident.DeviceID,
		Name:       ident.Name,
		PrimaryIP:  ident.PrimaryIP,
		Platform:   ident.Platform,
		Categories: make(map[Category]*CategoryResult),
	}

	ordered := orderFor(e.Order, categories)
	for i, cat := range ordered {
		if ctx.Err() != nil {
			msg := fmt.Sprintf("discovery cancelled during %s: %v", cat, ctx.Err())
			_ = e.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusFailed, sweepProgress(i, len(ordered)), "", msg)
			return data, fmt.Errorf("%s: %s", deviceID, msg)
		}

		_ = e.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusInProgress,
			sweepProgress(i, len(ordered)), "collecting "+string(cat), "")

		result := e.collectCategory(ctx, ident, cat, cacheEnabled)
		data.Categories[cat] = result

		_ = e.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusInProgress,
			sweepProgress(i+1, len(ordered)), "collecting "+string(cat), "")
	}

	// Partial data is valid: the device completes even when some categories
	// failed, as long as identity resolution succeeded.
	_ = e.Jobs.UpdateDeviceProgress(jobID, deviceID, jobs.StatusCompleted, 100, "", "")
	return data, nil
}

// sweepProgress converts categories-done into a device percentage.
func sweepProgress(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

// collectCategory is the cache-check / fetch / persist step for one category.
func (e *Engine) collectCategory(ctx context.Context, ident *Identity, cat Category, cacheEnabled bool) *CategoryResult {
	result := &CategoryResult{Category: cat}
	command := cat.Command()

	if cacheEnabled {
		rows, hit, err := e.Store.GetValidCache(ident.DeviceID, command)
		if err != nil {
			// Cache trouble degrades to a live fetch, never fails the category.
			log.Printf("[discover] %s: cache read for %q failed: %v", ident.DeviceID, command, err)
		} else if hit {
			result.Rows = rows
			result.Cached = true
			return result
		}
	}

	rows, err := e.Fetcher.Fetch(ctx, ident, cat)
	if err != nil {
		log.Printf("[discover] %s: %s failed: %v", ident.DeviceID, cat, err)
		result.Error = err.Error()
		return result
	}
	result.Rows = rows

	if err := e.Store.SetCache(ident.DeviceID, command, rows); err != nil {
		log.Printf("[discover] %s: cache write for %q failed: %v", ident.DeviceID, command, err)
	}
	if err := e.persist(ident.DeviceID, cat, rows); err != nil {
		log.Printf("[discover] %s: persisting %s failed: %v", ident.DeviceID, cat, err)
		result.Error = err.Error()
	}
	return result
}

// persist normalizes raw rows and swaps the device's table for the category.
func (e *Engine) persist(deviceID string, cat Category, rows []map[string]any) error {
	switch cat {
	case CategoryInterfaces:
		ifaces, addrs := NormalizeInterfaces(deviceID, rows)
		if err := e.Store.ReplaceInterfaces(deviceID, ifaces); err != nil {
			return err
		}
		return e.Store.ReplaceIPAddresses(deviceID, addrs)
	case CategoryStaticRoutes:
		return e.Store.ReplaceRoutes(deviceID, models.RouteStatic, NormalizeRoutes(deviceID, models.RouteStatic, rows))
	case CategoryOSPFRoutes:
		return e.Store.ReplaceRoutes(deviceID, models.RouteOSPF, NormalizeRoutes(deviceID, models.RouteOSPF, rows))
	case CategoryBGPRoutes:
		return e.Store.ReplaceRoutes(deviceID, models.RouteBGP, NormalizeRoutes(deviceID, models.RouteBGP, rows))
	case CategoryMACTable:
		return e.Store.ReplaceMACEntries(deviceID, NormalizeMACTable(deviceID, rows))
	case CategoryCDPNeighbors:
		return e.Store.ReplaceCDPNeighbors(deviceID, NormalizeCDPNeighbors(deviceID, rows))
	case CategoryARP:
		return e.Store.ReplaceARPEntries(deviceID, NormalizeARP(deviceID, rows))
	default:
		return fmt.Errorf("unknown category %q", cat)
	}
}

// DiscoverTopology is the foreground entry point: one job, devices swept
// sequentially inside the calling request. A failing device is recorded and
// the batch moves on; the job only fails if every device failed.
func (e *Engine) DiscoverTopology(ctx context.Context, deviceIDs []string, categories []Category, cacheEnabled bool) (*Result, error) {
	start := time.Now()
	jobID := e.Jobs.CreateJob(deviceIDs)
	_ = e.Jobs.UpdateJobStatus(jobID, jobs.StatusInProgress, "")

	result := &Result{
		JobID:       jobID,
		DevicesData: make(map[string]*DeviceData),
		Errors:      make(map[string]string),
	}

	for _, deviceID := range deviceIDs {
		data, err := e.DiscoverDevice(ctx, jobID, deviceID, categories, cacheEnabled)
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
	}

	e.finishJob(jobID)
	result.Duration = time.Since(start)
	log.Printf("[discover] job %s finished: %d devices in %s", jobID, len(deviceIDs), result.Duration)
	return result, nil
}

// finishJob derives the terminal job status from the device counters:
// failed only when every device failed, completed otherwise.
func (e *Engine) finishJob(jobID string) {
	job, err := e.Jobs.GetJob(jobID)
	if err != nil {
		return
	}
	if job.TotalDevices > 0 && job.FailedDevices == job.TotalDevices {
		_ = e.Jobs.UpdateJobStatus(jobID, jobs.StatusFailed, "all devices failed")
		return
	}
	_ = e.Jobs.UpdateJobStatus(jobID, jobs.StatusCompleted, "")
}
