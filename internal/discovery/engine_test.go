package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/netgraph/internal/config"
	"github.com/vesaa/netgraph/internal/jobs"
	"github.com/vesaa/netgraph/internal/store"
)

// fakeInventory serves identities from a map.
type fakeInventory struct {
	devices map[string]*Identity
}

func (f *fakeInventory) GetDevice(_ context.Context, deviceID string) (*Identity, error) {
	id, ok := f.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return id, nil
}

// fakeFetcher records every fetch and serves canned rows per category.
type fakeFetcher struct {
	mu    sync.Mutex
	rows  map[Category][]map[string]any
	fails map[Category]error
	calls []Category
}

func (f *fakeFetcher) Fetch(_ context.Context, _ *Identity, cat Category) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cat)
	f.mu.Unlock()
	if err, ok := f.fails[cat]; ok {
		return nil, err
	}
	return f.rows[cat], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func openEngineStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := &config.Config{
		DBPath:          filepath.Join(t.TempDir(), "test.db"),
		DBDriver:        "sqlite",
		CacheTTLMinutes: 15,
	}
	s, err := store.Open(cfg)
	require.NoError(t, err)
	return s
}

func identity(id string) *Identity {
	return &Identity{DeviceID: id, Name: id + ".example.com", PrimaryIP: "10.0.0.1", Platform: "ios", NetworkDriver: "cisco_ios"}
}

func newTestEngine(t *testing.T, fetcher CategoryFetcher, devices ...string) *Engine {
	t.Helper()
	inv := &fakeInventory{devices: map[string]*Identity{}}
	for _, d := range devices {
		inv.devices[d] = identity(d)
	}
	return &Engine{
		Store:     openEngineStore(t),
		Inventory: inv,
		Jobs:      jobs.NewMemoryRegistry(),
		Fetcher:   fetcher,
		Order:     ForegroundOrder,
	}
}

func TestDiscoverDevicePersistsAndCompletes(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{
		CategoryInterfaces: {{"interface": "Gi0/0", "ip_address": "10.0.0.1/24"}},
		CategoryARP:        {{"address": "10.0.0.2", "mac": "aa:aa:aa:aa:aa:aa"}},
	}}
	e := newTestEngine(t, fetcher, "r1")
	jobID := e.Jobs.CreateJob([]string{"r1"})

	data, err := e.DiscoverDevice(context.Background(), jobID, "r1",
		[]Category{CategoryInterfaces, CategoryARP}, true)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "r1.example.com", data.Name)
	require.Len(t, data.Categories, 2)
	assert.False(t, data.Categories[CategoryInterfaces].Cached)

	job, err := e.Jobs.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Devices["r1"].Status)

	ifaces, err := e.Store.Interfaces([]string{"r1"})
	require.NoError(t, err)
	require.Len(t, ifaces, 1)
	assert.Equal(t, "Gi0/0", ifaces[0].Name)

	addrs, err := e.Store.IPAddresses([]string{"r1"})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "10.0.0.1", addrs[0].Address)

	arps, err := e.Store.ARPEntries([]string{"r1"})
	require.NoError(t, err)
	assert.Len(t, arps, 1)
}

func TestSecondSweepWithinTTLServesFromCache(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{
		CategoryARP: {{"address": "10.0.0.2"}},
	}}
	e := newTestEngine(t, fetcher, "r1")
	cats := []Category{CategoryARP}

	jobID := e.Jobs.CreateJob([]string{"r1"})
	first, err := e.DiscoverDevice(context.Background(), jobID, "r1", cats, true)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.callCount())

	jobID2 := e.Jobs.CreateJob([]string{"r1"})
	second, err := e.DiscoverDevice(context.Background(), jobID2, "r1", cats, true)
	require.NoError(t, err)

	// No new device traffic, same payload, flagged as cached.
	assert.Equal(t, 1, fetcher.callCount())
	assert.True(t, second.Categories[CategoryARP].Cached)
	assert.Equal(t, first.Categories[CategoryARP].Rows, second.Categories[CategoryARP].Rows)
}

func TestCacheDisabledAlwaysFetches(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{
		CategoryARP: {{"address": "10.0.0.2"}},
	}}
	e := newTestEngine(t, fetcher, "r1")
	cats := []Category{CategoryARP}

	for i := 0; i < 2; i++ {
		jobID := e.Jobs.CreateJob([]string{"r1"})
		data, err := e.DiscoverDevice(context.Background(), jobID, "r1", cats, false)
		require.NoError(t, err)
		assert.False(t, data.Categories[CategoryARP].Cached)
	}
	assert.Equal(t, 2, fetcher.callCount())
}

func TestCategoryFailureLeavesDeviceCompleted(t *testing.T) {
	fetcher := &fakeFetcher{
		rows:  map[Category][]map[string]any{CategoryInterfaces: {{"interface": "Gi0/0"}}},
		fails: map[Category]error{CategoryARP: errors.New("connection refused")},
	}
	e := newTestEngine(t, fetcher, "r1")
	jobID := e.Jobs.CreateJob([]string{"r1"})

	data, err := e.DiscoverDevice(context.Background(), jobID, "r1",
		[]Category{CategoryInterfaces, CategoryARP}, true)
	require.NoError(t, err, "a failed category must not fail the device")
	assert.Equal(t, "connection refused", data.Categories[CategoryARP].Error)
	assert.Empty(t, data.Categories[CategoryInterfaces].Error)

	job, _ := e.Jobs.GetJob(jobID)
	assert.Equal(t, jobs.StatusCompleted, job.Devices["r1"].Status)
}

func TestFailedFetchLeavesPreviousRowsIntact(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{
		CategoryARP: {{"address": "10.0.0.2"}},
	}}
	e := newTestEngine(t, fetcher, "r1")
	cats := []Category{CategoryARP}

	jobID := e.Jobs.CreateJob([]string{"r1"})
	_, err := e.DiscoverDevice(context.Background(), jobID, "r1", cats, false)
	require.NoError(t, err)

	// The device goes dark: old rows must survive the failed refresh.
	fetcher.fails = map[Category]error{CategoryARP: errors.New("timeout")}
	jobID2 := e.Jobs.CreateJob([]string{"r1"})
	_, err = e.DiscoverDevice(context.Background(), jobID2, "r1", cats, false)
	require.NoError(t, err)

	rows, err := e.Store.ARPEntries([]string{"r1"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestIdentityFailureMarksDeviceFailedAndBatchContinues(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{
		CategoryARP: {{"address": "10.0.0.2"}},
	}}
	e := newTestEngine(t, fetcher, "r2") // r1 missing from inventory

	result, err := e.DiscoverTopology(context.Background(), []string{"r1", "r2"},
		[]Category{CategoryARP}, true)
	require.NoError(t, err)

	assert.Contains(t, result.Errors["r1"], "identity resolution failed")
	assert.Contains(t, result.DevicesData, "r2")
	assert.NotContains(t, result.DevicesData, "r1")

	job, _ := e.Jobs.GetJob(result.JobID)
	assert.Equal(t, jobs.StatusCompleted, job.Status, "one survivor keeps the job completed")
	assert.Equal(t, 1, job.FailedDevices)
	assert.Equal(t, 1, job.CompletedDevices)
}

func TestIdentityMissingDriverFailsValidation(t *testing.T) {
	fetcher := &fakeFetcher{}
	e := newTestEngine(t, fetcher)
	e.Inventory = &fakeInventory{devices: map[string]*Identity{
		"r1": {DeviceID: "r1", Name: "r1", PrimaryIP: "10.0.0.1"}, // no driver
	}}
	jobID := e.Jobs.CreateJob([]string{"r1"})

	_, err := e.DiscoverDevice(context.Background(), jobID, "r1", []Category{CategoryARP}, true)
	require.Error(t, err)
	assert.Equal(t, 0, fetcher.callCount())

	job, _ := e.Jobs.GetJob(jobID)
	assert.Equal(t, jobs.StatusFailed, job.Devices["r1"].Status)
}

func TestAllDevicesFailedFailsJob(t *testing.T) {
	e := newTestEngine(t, &fakeFetcher{}) // empty inventory

	result, err := e.DiscoverTopology(context.Background(), []string{"r1", "r2"},
		[]Category{CategoryARP}, true)
	require.NoError(t, err)
	assert.Len(t, result.Errors, 2)

	job, _ := e.Jobs.GetJob(result.JobID)
	assert.Equal(t, jobs.StatusFailed, job.Status)
}

func TestCancelledContextFailsDevice(t *testing.T) {
	fetcher := &fakeFetcher{}
	e := newTestEngine(t, fetcher, "r1")
	jobID := e.Jobs.CreateJob([]string{"r1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.DiscoverDevice(ctx, jobID, "r1", []Category{CategoryARP}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Equal(t, 0, fetcher.callCount())

	job, _ := e.Jobs.GetJob(jobID)
	assert.Equal(t, jobs.StatusFailed, job.Devices["r1"].Status)
}

func TestSweepProgressPercentage(t *testing.T) {
	assert.Equal(t, 100, sweepProgress(0, 0), "an empty sweep is trivially complete")
	assert.Equal(t, 0, sweepProgress(0, 7))
	assert.Equal(t, 42, sweepProgress(3, 7)) // floor(3/7*100)
	assert.Equal(t, 100, sweepProgress(7, 7))
}

func TestSweepFollowsEngineOrder(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[Category][]map[string]any{}}
	e := newTestEngine(t, fetcher, "r1")
	e.Order = BackgroundOrder
	jobID := e.Jobs.CreateJob([]string{"r1"})

	// Request in foreground order; sweep must still follow BackgroundOrder.
	_, err := e.DiscoverDevice(context.Background(), jobID, "r1",
		[]Category{CategoryARP, CategoryInterfaces, CategoryCDPNeighbors}, false)
	require.NoError(t, err)

	assert.Equal(t, []Category{CategoryInterfaces, CategoryCDPNeighbors, CategoryARP}, fetcher.calls)
}
