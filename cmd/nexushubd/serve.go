package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexushq/nexushub/internal/httpapi"
	"github.com/nexushq/nexushub/internal/nexusconfig"
	"github.com/nexushq/nexushub/internal/nexuslog"
	"github.com/nexushq/nexushub/internal/telemetry"
	"github.com/nexushq/nexushub/pkg/clients"
	"github.com/nexushq/nexushub/pkg/hub"
	"github.com/nexushq/nexushub/pkg/mcpproto"
	"github.com/nexushq/nexushub/pkg/output"
	"github.com/nexushq/nexushub/pkg/router"
	"github.com/nexushq/nexushub/pkg/security"
	"github.com/nexushq/nexushub/pkg/supervisor"
	"github.com/nexushq/nexushub/pkg/transport"
)

var serveVerbose bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub daemon",
	Long:  "Loads the hub config, brings up every subsystem, and blocks serving the administrative API until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "debug-level logging to stderr")
}

func runServe() error {
	cfg, err := nexusconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	logBuffer := nexuslog.NewBuffer(1000)
	logLevel := nexuslog.ParseLevel(cfg.Logging.Level)
	if serveVerbose {
		logLevel = slog.LevelDebug
	}
	logger := nexuslog.New(nexuslog.Config{
		Level:      logLevel,
		Format:     nexuslog.ParseFormat(cfg.Logging.Format),
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Buffer:     logBuffer,
		Component:  "hub",
	})

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	printer := output.New()
	printer.Banner(version)

	registry := supervisor.NewRegistry(cfg.State.RegistryPath, logger.With("component", "registry"))
	sup := supervisor.New(registry, mcpproto.NewCapabilities(), logger.With("component", "supervisor"))
	clientRegistry := clients.New(logger.With("component", "clients"))
	rtr := router.New(logger.With("component", "router"))

	acl := security.NewAccessControlList(cfg.State.RolesPath, logger.With("component", "acl"))

	authMgr := security.NewAuthManager()
	authMgr.RegisterProvider("basic", security.NewBasicAuthProvider(cfg.State.UsersPath, cfg.Auth.TokenLifetime, logger.With("component", "auth")))
	authMgr.RegisterProvider("token", security.NewTokenAuthProvider(cfg.State.TokensPath, logger.With("component", "auth")))

	h := hub.New(registry, sup, clientRegistry, rtr, authMgr, acl, logger)
	h.Start(context.Background())
	defer h.Stop()

	for _, reg := range registry.List() {
		if reg.AutoStart {
			if err := sup.StartServer(context.Background(), reg); err != nil {
				logger.Error("failed to auto-start server", "server", reg.ID, "error", err)
			}
		}
	}

	watcher := nexusconfig.NewWatcher([]string{cfg.State.RegistryPath, cfg.State.RolesPath}, func(path string) error {
		switch path {
		case cfg.State.RegistryPath:
			registry.Reload()
		case cfg.State.RolesPath:
			acl.Reload()
		}
		return nil
	})
	watcher.SetLogger(logger.With("component", "config-watcher"))

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go func() {
		if err := watcher.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("config watcher stopped", "error", err)
		}
	}()

	admin := httpapi.New(h, logger.With("component", "httpapi"), logBuffer, cfg.CORS.Origins)
	httpServer := &http.Server{
		Addr:    cfg.Network.AdminAddr,
		Handler: admin.Handler(),
	}

	mcpLogger := logger.With("component", "mcp-transport")
	mcpTransport := transport.NewHTTPServerTransport(mcpLogger)
	mcpMux := http.NewServeMux()
	mcpMux.HandleFunc("/jsonrpc", mcpTransport.ServeJSONRPC)
	mcpMux.HandleFunc("/events", mcpTransport.ServeSSE)
	mcpServer := &http.Server{
		Addr:    cfg.Network.MCPAddr,
		Handler: mcpMux,
	}

	if _, err := h.ConnectRemoteClient(context.Background(), mcpTransport); err != nil {
		return fmt.Errorf("starting MCP listener on %s: %w", cfg.Network.MCPAddr, err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		if err := mcpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("hub listener failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	printer.Info("hub running", "admin_addr", cfg.Network.AdminAddr, "mcp_addr", cfg.Network.MCPAddr, "servers", len(registry.List()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		printer.Info("shutting down")
	case err := <-serverErr:
		logger.Error("hub listener crashed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	adminErr := httpServer.Shutdown(shutdownCtx)
	mcpErr := mcpServer.Shutdown(shutdownCtx)
	if adminErr != nil {
		return adminErr
	}
	return mcpErr
}
