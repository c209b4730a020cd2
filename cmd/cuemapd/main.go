// Command cuemapd runs the CueMap daemon: the HTTP API, the optional
// MCP tool surface, and the background consolidation/snapshot sweeps,
// all multiplexed across tenants by pkg/tenant.Supervisor.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuemap-dev/cuemap/pkg/api"
	"github.com/cuemap-dev/cuemap/pkg/config"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/daemon"
	"github.com/cuemap-dev/cuemap/pkg/mcpsurface"
	"github.com/cuemap-dev/cuemap/pkg/persistence"
	"github.com/cuemap-dev/cuemap/pkg/tenant"
)

// cliOverrides holds every flag the root command accepts, applied on top
// of the loaded config only when explicitly set on the command line.
type cliOverrides struct {
	configPath *string
	httpAddr   *string
	mcpAddr    *string
	dataPath   *string
	compress   *bool
	apiKey     *string
	registry   *bool
}

func main() {
	var overrides cliOverrides

	rootCmd := &cobra.Command{
		Use:   "cuemapd",
		Short: "CueMap - cue-based temporal-associative memory for LLMs",
		Long:  "A multi-tenant, in-process memory store with cue-based recall, sharded concurrent indices, and a background consolidation pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), &overrides)
		},
		SilenceUsage: true,
	}

	f := rootCmd.Flags()
	overrides.configPath = f.StringP("config", "f", "", "Path to YAML config file (overrides CUEMAP_CONFIG env)")
	overrides.httpAddr = f.String("http-addr", "", "HTTP listen address for the JSON API")
	overrides.mcpAddr = f.String("mcp-addr", "", "HTTP listen address for the MCP tool surface (empty disables it)")
	overrides.dataPath = f.String("data-path", "", "Data directory for snapshot files")
	overrides.compress = f.Bool("compress", false, "Enable snapshot compression")
	overrides.apiKey = f.String("api-key", "", "Require this value in the X-API-Key header")
	overrides.registry = f.Bool("registry", false, "Enable the tenant registration gate")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet, o *cliOverrides) error {
	core.PrintBanner()

	configPath := *o.configPath
	if configPath == "" {
		configPath = os.Getenv("CUEMAP_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyExplicitFlags(flags, cfg, o)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Printf("data path: %s", cfg.Storage.DataPath)
	log.Printf("http addr: %s", cfg.Server.HTTPAddr)

	store, err := persistence.NewStore(cfg.Storage.DataPath, cfg.Storage.Compress)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot store: %w", err)
	}
	log.Println("snapshot store initialized")

	sup := tenant.New(cfg, store)
	log.Println("tenant supervisor initialized")

	dm := daemon.NewManager(sup, cfg.Consolidate.Interval, cfg.Consolidate.Jaccard, cfg.Alias.Interval, cfg.Alias.Jaccard, cfg.Storage.SnapshotInterval)
	dm.Start()

	httpServer := api.NewServer(cfg.Server.HTTPAddr, sup, cfg.Server.APIKey)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	log.Println("HTTP API listening")

	var mcpServer *http.Server
	if cfg.Server.MCPAddr != "" {
		handler, err := mcpsurface.NewHandler(mcpsurface.Config{
			APIKey:         cfg.Server.APIKey,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		}, mcpsurface.NewSupervisorBackend(sup))
		if err != nil {
			log.Printf("MCP surface disabled: %v", err)
		} else {
			mcpServer = &http.Server{Addr: cfg.Server.MCPAddr, Handler: handler}
			go func() {
				if err := mcpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("MCP server error: %v", err)
				}
			}()
			log.Printf("MCP tool surface listening on %s", cfg.Server.MCPAddr)
		}
	}

	log.Println("cuemapd is ready")

	ctx, cancel := context.WithCancel(context.Background())
	core.WaitForShutdown(ctx, cancel)

	log.Println("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if mcpServer != nil {
		if err := mcpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("MCP shutdown error: %v", err)
		}
	}

	dm.Stop()

	if err := sup.Shutdown(); err != nil {
		log.Printf("supervisor shutdown error: %v", err)
	}

	log.Println("cuemapd shutdown complete")
	return nil
}

func applyExplicitFlags(flags *pflag.FlagSet, cfg *config.Config, o *cliOverrides) {
	if flags.Changed("http-addr") {
		cfg.Server.HTTPAddr = *o.httpAddr
	}
	if flags.Changed("mcp-addr") {
		cfg.Server.MCPAddr = *o.mcpAddr
	}
	if flags.Changed("data-path") {
		cfg.Storage.DataPath = *o.dataPath
	}
	if flags.Changed("compress") {
		cfg.Storage.Compress = *o.compress
	}
	if flags.Changed("api-key") {
		cfg.Server.APIKey = *o.apiKey
	}
	if flags.Changed("registry") {
		cfg.Tenant.RegistryEnabled = *o.registry
	}
}
