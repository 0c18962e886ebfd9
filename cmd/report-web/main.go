package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/litter-report/internal/app"
	"github.com/fpang/litter-report/internal/config"
	"github.com/fpang/litter-report/internal/geo"
	"github.com/fpang/litter-report/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFlag string
	pickerFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "report-web",
	Short: "Local web server for citizen litter reports",
	Long: `Report Web serves the litter report workflow as a JSON API: take or
upload a photo, set the location, add optional contact details and submit.

The reporting backend must be set with --submission-base-url or
LITTER_SUBMISSION_BASE_URL.

Examples:
  report-web --submission-base-url https://meldingen.example.nl
  report-web --port 9090
  report-web --config litter.yaml --photos-backend s3`,
	RunE: runMain,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configFlag, "config", "c", "", "Config file (yaml, json or toml)")
	f.BoolVar(&pickerFlag, "picker", false, "Enable the native file picker for photo import")
	f.Int("port", 8080, "Port to listen on")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("region-file", "", "YAML file with the allowed reporting region")
	f.String("drafts-backend", "sqlite", "Draft persistence: memory, sqlite, dynamodb")
	f.String("photos-backend", "disk", "Photo storage: memory, disk, s3, minio")
	f.String("classifier-provider", "none", "Photo classifier: none, gemini, http")
	f.String("submission-base-url", "", "Base URL of the reporting backend")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	start := time.Now()
	logging.Init()

	cfg, err := config.Load(config.Options{File: configFlag, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	startup := logging.NewStartupLogger("report-web").
		Version(logging.EnvOrDefault("LITTER_VERSION", "dev")).
		Config("port", fmt.Sprint(cfg.Port))

	position := geo.NewPushSource(geo.DefaultMaxFixAge)
	components, err := app.NewBuilder(cfg, startup).Components(ctx, position, pickerFlag)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}
	engine, err := app.New(ctx, components)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newServer(engine, position).routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	startup.InitDuration(time.Since(start)).Log()
	log.Info().Int("port", cfg.Port).Msg("Starting web server")
	fmt.Printf("\n  Litter report API: http://localhost:%d/api/state\n\n", cfg.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
