// Package server provides the NetGraph Gin-based REST API: discovery jobs,
// topology assembly, neighbor resolution and the device inventory.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vesaa/netgraph/internal/discovery"
	"github.com/vesaa/netgraph/internal/jobs"
	"github.com/vesaa/netgraph/internal/store"
	"github.com/vesaa/netgraph/internal/topology"
	"gorm.io/gorm"
)

// Dependencies are injected once at startup.
type Dependencies struct {
	Store        *store.Store
	Registry     jobs.Registry
	Foreground   *discovery.Engine
	Orchestrator *discovery.Orchestrator
	Builder      *topology.Builder
	// DefaultLayout is applied when a topology request names no algorithm.
	DefaultLayout string
	AdminUser     string
	AdminPass     string
}

var deps Dependencies

// Init stores the wired dependencies; call before RegisterRoutes.
func Init(d Dependencies) { deps = d }

// RegisterRoutes wires up the API on the given engine.
//
//	Public:   POST /api/login, GET /api/health
//	Protected (JWT): everything else under /api
func RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// ── Public endpoints ──────────────────────────────────────────────────────
	api.POST("/login", handleLogin)

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	// ── JWT-protected endpoints ───────────────────────────────────────────────
	auth := api.Group("/", JWTMiddleware())
	{
		// Discovery
		auth.POST("/discover", handleDiscover)
		auth.GET("/discover/jobs/:id", handleJobProgress)

		// Topology
		auth.GET("/topology", handleTopologyGet)
		auth.POST("/topology", handleTopologyPost)
		auth.POST("/topology/resolve", handleResolveNeighbor)

		// Device inventory
		auth.POST("/devices/register", handleDeviceRegister)
		auth.GET("/devices", handleDeviceList)
		auth.DELETE("/devices/:id", handleDeviceDelete)

		// Server self-telemetry
		auth.GET("/status", handleStatus)
	}
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// handleLogin accepts username + password and returns a signed JWT.
func handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if body.Username != deps.AdminUser || body.Password != deps.AdminPass {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := GenerateJWT(body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(TokenLifetime().Seconds()),
		"type":       "Bearer",
	})
}

// handleDiscover starts a discovery run.
//
//	POST /api/discover
//	Body: { "device_ids": [...], "categories": [...], "background": false, "cache_enabled": true }
//
// Foreground runs sweep devices sequentially inside this request and return
// the full result. Background runs dispatch a worker group and return the
// job id immediately; poll /api/discover/jobs/:id for progress.
func handleDiscover(c *gin.Context) {
	var body struct {
		DeviceIDs    []string `json:"device_ids" binding:"required"`
		Categories   []string `json:"categories"`
		Background   bool     `json:"background"`
		CacheEnabled *bool    `json:"cache_enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body.DeviceIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_ids must not be empty"})
		return
	}

	categories, err := discovery.ParseCategories(body.Categories)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cacheEnabled := true
	if body.CacheEnabled != nil {
		cacheEnabled = *body.CacheEnabled
	}

	if body.Background {
		jobID := deps.Registry.CreateJob(body.DeviceIDs)
		go func() {
			// Detached from the request: client disconnects must not abort
			// an in-flight worker group.
			_, _ = deps.Orchestrator.RunJob(context.Background(), jobID, body.DeviceIDs, categories, cacheEnabled)
		}()
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": jobs.StatusPending})
		return
	}

	result, err := deps.Foreground.DiscoverTopology(c.Request.Context(), body.DeviceIDs, categories, cacheEnabled)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	job, _ := deps.Registry.GetJob(result.JobID)
	status := jobs.StatusCompleted
	if job != nil {
		status = job.Status
	}
	c.JSON(http.StatusOK, gin.H{"job_id": result.JobID, "status": status, "result": result})
}

// handleJobProgress returns the job and its per-device progress.
func handleJobProgress(c *gin.Context) {
	job, err := deps.Registry.GetJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}

// handleTopologyGet builds a graph from query parameters.
//
//	GET /api/topology?device_ids=a,b&neighbors=true&routing=true&route_kinds=ospf,bgp&layer2=false&layout=circular
func handleTopologyGet(c *gin.Context) {
	opts := topology.BuildOptions{
		IncludeNeighborLinks: c.DefaultQuery("neighbors", "true") == "true",
		IncludeRouting:       c.DefaultQuery("routing", "true") == "true",
		IncludeLayer2:        c.DefaultQuery("layer2", "false") == "true",
		LayoutAlgorithm:      c.DefaultQuery("layout", deps.DefaultLayout),
	}
	if ids := c.Query("device_ids"); ids != "" {
		opts.DeviceIDs = strings.Split(ids, ",")
	}
	if kinds := c.Query("route_kinds"); kinds != "" {
		opts.RouteKinds = strings.Split(kinds, ",")
	}
	buildAndRespond(c, opts)
}

// handleTopologyPost builds a graph from a JSON options body.
func handleTopologyPost(c *gin.Context) {
	opts := topology.BuildOptions{
		IncludeNeighborLinks: true,
		IncludeRouting:       true,
		LayoutAlgorithm:      deps.DefaultLayout,
	}
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	buildAndRespond(c, opts)
}

func buildAndRespond(c *gin.Context, opts topology.BuildOptions) {
	graph, err := deps.Builder.Build(opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, graph)
}

// handleResolveNeighbor resolves a neighbor-protocol name/IP to a device.
//
//	POST /api/topology/resolve
//	Body: { "name": "B.example.com", "ip": "10.0.0.2" }
func handleResolveNeighbor(c *gin.Context) {
	var body struct {
		Name string `json:"name" binding:"required"`
		IP   string `json:"ip"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	res, err := deps.Builder.ResolveNeighbor(body.Name, body.IP)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleDeviceRegister creates or updates an inventory entry. Discovery
// resolves identities from this table, so a device must be registered (or
// synced from an external CMDB) before it can be discovered.
func handleDeviceRegister(c *gin.Context) {
	var body struct {
		DeviceID      string `json:"device_id" binding:"required"`
		Name          string `json:"device_name"`
		PrimaryIP     string `json:"primary_ip"`
		Platform      string `json:"platform"`
		NetworkDriver string `json:"network_driver"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dev, err := deps.Store.UpsertDevice(body.DeviceID, body.Name, body.PrimaryIP, body.Platform, body.NetworkDriver)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": dev.DeviceID, "device_name": dev.Name})
}

// handleDeviceList returns all inventory entries.
func handleDeviceList(c *gin.Context) {
	devices, err := deps.Store.ListDevices(nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]any, 0, len(devices))
	for i := range devices {
		out = append(out, devices[i].Summary())
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// handleDeviceDelete removes a device and everything discovery cached for it.
func handleDeviceDelete(c *gin.Context) {
	id := c.Param("id")
	if _, err := deps.Store.GetDevice(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := deps.Store.DeleteDevice(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
