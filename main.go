// NetGraph — network state discovery & topology mapping platform.
// Author: vesaa | License: MIT | https://github.com/vesaa/netgraph
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/vesaa/netgraph/internal/config"
	"github.com/vesaa/netgraph/internal/discovery"
	"github.com/vesaa/netgraph/internal/jobs"
	"github.com/vesaa/netgraph/internal/server"
	"github.com/vesaa/netgraph/internal/store"
	"github.com/vesaa/netgraph/internal/topology"
)

const asciiLogo = `
 ███╗   ██╗███████╗████████╗ ██████╗ ██████╗  █████╗ ██████╗ ██╗  ██╗
 ████╗  ██║██╔════╝╚══██╔══╝██╔════╝ ██╔══██╗██╔══██╗██╔══██╗██║  ██║
 ██╔██╗ ██║█████╗     ██║   ██║  ███╗██████╔╝███████║██████╔╝███████║
 ██║╚██╗██║██╔══╝     ██║   ██║   ██║██╔══██╗██╔══██║██╔═══╝ ██╔══██║
 ██║ ╚████║███████╗   ██║   ╚██████╔╝██║  ██║██║  ██║██║     ██║  ██║
 ╚═╝  ╚═══╝╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚═╝  ╚═╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Printf("%s\n", asciiLogo)
	fmt.Printf("  ► NetGraph %s  |  Author: vesaa  |  Mode: %s\n\n", version, mode)
}

// buildEngines wires the shared pieces both subcommands need.
func buildEngines(cfg *config.Config) (*store.Store, jobs.Registry, *discovery.Engine, *discovery.Orchestrator, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initializing database: %w", err)
	}

	registry := jobs.NewMemoryRegistry()
	inventory := discovery.NewStoreInventory(st)

	foreground := &discovery.Engine{
		Store:     st,
		Inventory: inventory,
		Jobs:      registry,
		Fetcher:   discovery.NewForegroundFetcher(cfg),
		Order:     discovery.ForegroundOrder,
	}

	background := &discovery.Engine{
		Store:     st,
		Inventory: inventory,
		Jobs:      registry,
		Fetcher: &discovery.BackgroundFetcher{
			Runner: discovery.NewSSHRunner(cfg.SSHUser, cfg.SSHPass, cfg.SSHKeyPath,
				time.Duration(cfg.SSHTimeoutSeconds)*time.Second),
			Parser: discovery.KeyValueParser{},
		},
		Order: discovery.BackgroundOrder,
	}

	orch := &discovery.Orchestrator{
		Engine:      background,
		Concurrency: cfg.WorkerConcurrency,
	}
	return st, registry, foreground, orch, nil
}

func main() {
	root := &cobra.Command{
		Use:   "netgraph",
		Short: "NetGraph — network state discovery & topology mapping platform",
		Long: `NetGraph discovers operational state (interfaces, routing tables, ARP/MAC
tables, CDP neighbors) from a fleet of network devices and assembles it into
a topology graph for visualization.`,
		SilenceUsage: true,
	}

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the NetGraph API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			st, registry, foreground, orch, err := buildEngines(cfg)
			if err != nil {
				return err
			}

			server.ConfigureAuth(cfg.JWTSecret, time.Duration(cfg.TokenLifetimeHours)*time.Hour)
			server.Init(server.Dependencies{
				Store:         st,
				Registry:      registry,
				Foreground:    foreground,
				Orchestrator:  orch,
				Builder:       &topology.Builder{Store: st},
				DefaultLayout: cfg.LayoutAlgorithm,
				AdminUser:     cfg.AdminUser,
				AdminPass:     cfg.AdminPass,
			})

			gin.SetMode(gin.ReleaseMode)
			engine := gin.New()
			engine.Use(gin.Recovery(), func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
				c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				if c.Request.Method == "OPTIONS" {
					c.AbortWithStatus(204)
					return
				}
				c.Next()
			})
			server.RegisterRoutes(engine)

			addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
			fmt.Printf("  ✓ API           → http://%s\n", addr)
			fmt.Printf("  ✓ Exec service  → %s\n", cfg.ExecEndpoint)
			fmt.Printf("  ✓ Cache TTL     → %s\n", cfg.CacheTTL())
			fmt.Printf("  ✓ Default login: %s / %s\n\n", cfg.AdminUser, cfg.AdminPass)

			srv := &http.Server{Addr: addr, Handler: engine}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt) // os.Interrupt = SIGINT; works on all platforms

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("\n  → Shutting down gracefully…")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	// ── worker subcommand ─────────────────────────────────────────────────────
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one background discovery group against the given devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("WORKER")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			devicesFlag, _ := cmd.Flags().GetString("devices")
			categoriesFlag, _ := cmd.Flags().GetString("categories")
			noCache, _ := cmd.Flags().GetBool("no-cache")

			deviceIDs := splitList(devicesFlag)
			if len(deviceIDs) == 0 {
				return fmt.Errorf("--devices is required (comma-separated device ids)")
			}
			categories, err := discovery.ParseCategories(splitList(categoriesFlag))
			if err != nil {
				return err
			}

			_, _, _, orch, err := buildEngines(cfg)
			if err != nil {
				return err
			}

			// SIGINT revokes the group; unfinished devices surface as failed.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			fmt.Printf("  ✓ Devices:     %s\n", strings.Join(deviceIDs, ", "))
			fmt.Printf("  ✓ Concurrency: %d\n\n", cfg.WorkerConcurrency)

			result, err := orch.Run(ctx, deviceIDs, categories, !noCache)
			if err != nil {
				return err
			}

			fmt.Printf("\n  ✓ Job %s done in %s — %d device(s), %d error(s)\n",
				result.JobID, result.Duration.Round(time.Millisecond), len(result.DevicesData), len(result.Errors))
			for key, msg := range result.Errors {
				fmt.Printf("    ✗ %s: %s\n", key, msg)
			}
			return nil
		},
	}
	workerCmd.Flags().String("devices", "", "Comma-separated device ids to discover")
	workerCmd.Flags().String("categories", "", "Comma-separated categories (default: all)")
	workerCmd.Flags().Bool("no-cache", false, "Skip the command cache and always query devices")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print NetGraph version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("NetGraph %s  |  Author: vesaa\n", version)
		},
	}

	root.AddCommand(serverCmd, workerCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
