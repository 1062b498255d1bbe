package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/mj1618/voxnav/internal/config"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/server"
	"github.com/mj1618/voxnav/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the voice navigation engine over MCP and HTTP",
	Long: `Start a Model Context Protocol (MCP) server that exposes ingest, command,
resolve, match and learn as tools, plus an optional JSON HTTP API. One engine
backs both, so commands resolve against the latest ingested snapshot.

Supported transports:
  stdio             Standard I/O (default, for MCP clients)
  streamable-http   Streamable HTTP transport (for remote agents)

Snapshots can also be fed from a tree provider with --replay.

Examples:
  voxnav serve
  voxnav serve --transport streamable-http --addr :8080
  voxnav serve --http :8081 --replay session.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("transport", "", "Transport: stdio, streamable-http (default from config)")
	serveCmd.Flags().String("addr", "", "Listen address for streamable-http (default from config)")
	serveCmd.Flags().String("http", "", "Also serve the JSON HTTP API on this address")
	serveCmd.Flags().StringSlice("replay", nil, "Feed snapshots from these replay files")
	serveCmd.Flags().Bool("watch-catalog", false, "Reload the command catalog file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := cfg.Server
	if cmd.Flags().Changed("transport") {
		sc.Transport, _ = cmd.Flags().GetString("transport")
	}
	if cmd.Flags().Changed("addr") {
		sc.MCPAddr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("http") {
		sc.HTTPAddr, _ = cmd.Flags().GetString("http")
	}
	watch := cfg.Matcher.WatchCatalog
	if cmd.Flags().Changed("watch-catalog") {
		watch, _ = cmd.Flags().GetBool("watch-catalog")
	}
	replay, _ := cmd.Flags().GetStringSlice("replay")

	if sc.Transport != config.TransportStdio && sc.Transport != config.TransportHTTP {
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", sc.Transport)
	}
	if watch && cfg.Matcher.Catalog == "" {
		return fmt.Errorf("--watch-catalog needs a catalog file (matcher.catalog or VOXNAV_CATALOG)")
	}

	var provider *platform.Provider
	if len(replay) > 0 {
		var err error
		if provider, err = platform.NewProvider("replay", platform.ProviderOptions{Paths: replay, Logger: logger}); err != nil {
			return err
		}
	}

	var exec platform.ActionExecutor = platform.NewLogExecutor(logger)
	if provider != nil {
		exec = provider.Executor
	}
	s, err := openSession(cmd.Context(), exec)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer s.Close()

	srv := server.New(s.eng, logger, version.Version)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if provider != nil {
		g.Go(func() error {
			err := s.eng.Run(gctx, provider.Source)
			if err == nil {
				logger.Info("replay finished", zap.Strings("files", replay))
			}
			return ignoreCanceled(err)
		})
	}
	if watch {
		g.Go(func() error {
			return ignoreCanceled(s.match.WatchCatalog(gctx, cfg.Matcher.Catalog))
		})
	}
	if sc.HTTPAddr != "" {
		g.Go(func() error {
			return srv.ListenAndServe(gctx, sc.HTTPAddr)
		})
	}
	g.Go(func() error {
		// The MCP transport defines the lifetime of the process.
		defer cancel()
		return srv.ServeMCP(gctx, sc.Transport, sc.MCPAddr)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
