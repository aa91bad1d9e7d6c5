package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/steptrace/internal/api"
	"github.com/kalambet/steptrace/internal/browser"
	"github.com/kalambet/steptrace/internal/capture"
	"github.com/kalambet/steptrace/internal/clock"
	"github.com/kalambet/steptrace/internal/config"
	"github.com/kalambet/steptrace/internal/coordinator"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/storage"
	"github.com/kalambet/steptrace/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recorder (foreground)",
	Long: `Run the recorder in the foreground.

The recorder attaches to the browser at browser.debugger_url, or launches
Chrome when none is set, and serves the control API on 127.0.0.1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		noBrowser, _ := cmd.Flags().GetBool("no-browser")
		return runServer(cmd.Context(), noBrowser)
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the running steptrace server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func init() {
	serveCmd.Flags().Bool("no-browser", false, "serve the control API without driving a browser")
	rootCmd.AddCommand(serveCmd, shutdownCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "steptrace.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer(parent context.Context, noBrowser bool) error {
	fmt.Fprintf(os.Stderr, "steptrace version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	// Refuse to start twice. The health endpoint needs no token.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("steptrace is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("steptrace is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("flushing telemetry failed", "error", err)
		}
	}()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	var driver *browser.Driver
	if cfg.Browser.Enabled && !noBrowser {
		printStep("Connecting to browser...")
		driver, err = browser.Launch(ctx, browser.Config{
			ControlURL:     cfg.Browser.DebuggerURL,
			Bin:            cfg.Browser.Bin,
			Headless:       cfg.Browser.Headless,
			StartURL:       cfg.Browser.StartURL,
			ScanLimit:      cfg.Recorder.ScanLimit,
			Keys:           cfg.Recorder.KeyList(),
			SensitiveNames: cfg.Redaction.Patterns(),
			WindowWidth:    cfg.Browser.ViewportWidth,
			WindowHeight:   cfg.Browser.ViewportHeight,
		})
		if err != nil {
			return fmt.Errorf("starting browser: %w", err)
		}
		defer func() {
			if err := driver.Close(); err != nil {
				slog.Warn("closing browser failed", "error", err)
			}
		}()
	}

	defaults := model.Options{
		CaptureScreenshots: cfg.Recorder.CaptureScreenshots,
		CaptureDOMState:    cfg.Recorder.CaptureDOMState,
	}
	deps := coordinator.Deps{
		Store:           store,
		DefaultOptions:  &defaults,
		PostDelay:       cfg.Recorder.PostDelay(),
		ScrollPostDelay: cfg.Recorder.ScrollPostDelay(),
	}
	if driver != nil {
		deps.Page, deps.Screenshots, deps.Tabs = driver, driver, driver
	}
	svc := coordinator.New(deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})

	if driver != nil {
		rec := capture.NewRecorder(capture.EmitterFunc(func(ev model.ActionEvent) error {
			_, _, err := svc.OnActionEvent(gctx, ev)
			return err
		}), clock.Real(), capture.Config{
			ScanLimit:      cfg.Recorder.ScanLimit,
			ScrollDebounce: cfg.Recorder.ScrollDebounce(),
			Keys:           cfg.Recorder.KeyList(),
			SensitiveNames: cfg.Redaction.Patterns(),
		})
		defer rec.Close()
		driver.Attach(rec)

		// Resume a recording that was active when the server last stopped.
		st, err := svc.Status(gctx)
		if err != nil {
			return err
		}
		if err := driver.EnsureCaptureScript(gctx); err != nil {
			slog.Warn("installing capture script failed", "error", err)
		}
		if err := driver.SetEnabled(gctx, st.IsRecording); err != nil {
			slog.Warn("toggling capture failed", "error", err)
		}
		if st.IsRecording {
			slog.Info("resuming recording", "episode_id", st.ActiveEpisode(), "steps", st.StepCount)
		}
	}

	handler := api.NewControlHandler(api.ControlDeps{
		Recorder: svc,
		Token:    cfg.APIToken,
	})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return gctx
		},
	}
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "steptrace listening on %s\n", addr)
		slog.Info("API bearer token available", "hint", config.TokenHint())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.MCP.Enabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Recorder: svc, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("steptrace is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop steptrace (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to steptrace (PID %d)", pid)
	return nil
}
