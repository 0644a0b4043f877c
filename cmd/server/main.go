package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Brownie44l1/fer-light/internal/config"
	"github.com/Brownie44l1/fer-light/internal/emotion"
	"github.com/Brownie44l1/fer-light/internal/events"
	"github.com/Brownie44l1/fer-light/internal/handlers"
	"github.com/Brownie44l1/fer-light/internal/history"
	"github.com/Brownie44l1/fer-light/internal/hue"
	"github.com/Brownie44l1/fer-light/internal/model"
)

var (
	envFile string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fer-light",
		Short: "Serve facial expression predictions and dim a Hue light to match",
		Long: `fer-light loads a trained facial expression classifier and serves
POST /upload_image. Each uploaded image is classified into one of seven
emotions and the configured Hue light is set to the brightness for that
emotion.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(envFile)
			if err != nil {
				return err
			}

			zapConfig := zap.NewProductionConfig()
			if verbose || cfg.Debug() {
				zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err = zapConfig.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: runServer,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load settings from this file instead of .env")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newValidateCmd(), newLabelsCmd())
	return rootCmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the model artifact and check it against the label set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, model.Options{
				SharedLibraryPath: cfg.ONNXRuntimeLibrary,
			})
			if err != nil {
				return err
			}
			defer modelServer.Close()

			meta := modelServer.Metadata
			fmt.Fprintf(cmd.OutOrStdout(), "model:   %s\n", cfg.ModelPath)
			fmt.Fprintf(cmd.OutOrStdout(), "input:   %v (%s)\n", meta.InputShape, meta.Normalizer().Layout)
			fmt.Fprintf(cmd.OutOrStdout(), "output:  %v\n", meta.OutputShape)
			fmt.Fprintf(cmd.OutOrStdout(), "classes: %v\n", meta.Classes)
			return nil
		},
	}
}

func newLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Print the label order and the brightness for each emotion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "label set %s\n", emotion.LabelSetVersion)
			for i, l := range emotion.Labels {
				pct := emotion.Brightness(l)
				fmt.Fprintf(cmd.OutOrStdout(), "%d  %-8s  %3d%%  bri=%d\n", i, l, pct, hue.DeviceBrightness(pct))
			}
			return nil
		},
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("loading model", zap.String("model", cfg.ModelPath), zap.String("metadata", cfg.MetadataPath))
	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, model.Options{
		SharedLibraryPath: cfg.ONNXRuntimeLibrary,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer modelServer.Close()

	light := hue.NewClient(hue.Config{
		BridgeAddr: cfg.HueBridgeAddr,
		APIKey:     cfg.HueAPIKey,
		LightID:    cfg.HueLightID,
		Timeout:    cfg.HueTimeout,
	}, logger)

	var recorders []handlers.Recorder

	if cfg.MQTTBroker != "" {
		client, err := events.Connect(events.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, logger)
		if err != nil {
			return err
		}
		publisher := events.NewPublisher(client, cfg.MQTTTopicPrediction, cfg.HueLightID, logger)
		defer publisher.Close()
		recorders = append(recorders, publisher)
		logger.Info("publishing predictions", zap.String("topic", publisher.Topic()))
	}

	if cfg.ClickHouseAddr != "" {
		store, err := history.Open(ctx, history.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, cfg.HueLightID, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		recorders = append(recorders, store)
	}

	if !verbose && !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	normalizer := modelServer.Metadata.Normalizer()
	normalizer.MaxPixels = int(cfg.MaxImagePixels)

	handler := handlers.NewHandler(modelServer, normalizer, light, logger, handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaticDir:      cfg.StaticDir,
		Classes:        modelServer.Classes(),
		Recorders:      recorders,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           handler.Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Strings("classes", modelServer.Classes()),
			zap.String("bridge", cfg.HueBridgeAddr),
			zap.String("light", light.LightID()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
