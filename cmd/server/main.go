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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Brownie44l1/caulicare-api/internal/config"
	"github.com/Brownie44l1/caulicare-api/internal/envvar"
	"github.com/Brownie44l1/caulicare-api/internal/handlers"
	"github.com/Brownie44l1/caulicare-api/internal/logger"
	"github.com/Brownie44l1/caulicare-api/internal/metrics"
	"github.com/Brownie44l1/caulicare-api/internal/model"
)

const shutdownTimeout = 10 * time.Second

// options are command-line overrides applied on top of the config file.
type options struct {
	configPath string
	host       string
	port       int
	modelsDir  string
	ortLib     string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "path to a YAML config file (defaults are built in)")
	fs.StringVar(&o.host, "host", "", "listen host")
	fs.IntVarP(&o.port, "port", "p", 0, "listen port")
	fs.StringVar(&o.modelsDir, "models-dir", "", "directory holding the ONNX model files")
	fs.StringVar(&o.ortLib, "ort-lib", "", "path to the onnxruntime shared library")
}

// load reads the config and applies flag overrides.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if o.modelsDir != "" {
		cfg.ModelsDir = o.modelsDir
	}
	if o.ortLib != "" {
		cfg.Runtime.SharedLibrary = o.ortLib
	}

	return cfg, cfg.Validate()
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "caulicare-api",
		Short:         "Serve cauliflower leaf disease predictions over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	opts.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load every configured model and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			return check(cmd, cfg)
		},
	})

	return cmd
}

func setupLogging(cfg *config.Config) error {
	log, err := logger.New(
		logger.FromString(os.Getenv(envvar.Env)),
		logger.WithLevel(cfg.Log.Level),
		logger.WithLogFile(cfg.Log.File),
	)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	return nil
}

// loadRegistry brings up onnxruntime and every model. Any failure is fatal.
func loadRegistry(cfg *config.Config) (*model.Registry, func(), error) {
	rt, err := model.NewRuntime(cfg.Runtime.SharedLibrary)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("Loading models", "count", len(cfg.Models), "dir", cfg.ModelsDir)
	registry, err := model.Load(cfg, rt.Open)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := registry.Close(); err != nil {
			slog.Warn("Failed to release models", "error", err)
		}
		if err := rt.Close(); err != nil {
			slog.Warn("Failed to destroy ONNX environment", "error", err)
		}
	}
	return registry, cleanup, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	registry, cleanup, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("All models loaded", "models", registry.Names(), "default", cfg.Prediction.DefaultModel,
		"labels", model.ClassLabels)

	gin.SetMode(cfg.Server.GinMode)
	engine := handlers.NewEngine(&handlers.Dependencies{
		Registry: registry,
		Metrics:  metrics.New(),
		Config:   cfg,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func check(cmd *cobra.Command, cfg *config.Config) error {
	registry, cleanup, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	for _, e := range registry.All() {
		fmt.Fprintf(out, "%-14s %dx%d  %-6s %s\n", e.Nickname, e.Width, e.Height, e.Normalization, e.Path)
	}
	fmt.Fprintf(out, "%d models ready, %d classes\n", len(registry.All()), model.NumClasses)
	return nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("Startup failed", "error", err.Error(), "trace", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}
