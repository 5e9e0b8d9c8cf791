package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diwise/integration-ruuvi/internal/pkg/application"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/alias"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/datapoint"
	"github.com/diwise/integration-ruuvi/internal/pkg/infrastructure/bluetooth"
	"github.com/diwise/integration-ruuvi/internal/pkg/infrastructure/router"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

const serviceName string = "integration-ruuvi"

const (
	exitOK    int = 0
	exitFatal int = 1
	exitPanic int = 2
)

const shutdownTimeout time.Duration = 5 * time.Second

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)

	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid arguments")
	}

	aliases, err := loadAliases(flags)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load aliases")
	}

	table, err := alias.NewTable(flags.keepMacColons, aliases...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create alias table")
	}

	sinks, closeSinks := setupSinks(ctx, logger, flags)
	if len(sinks) == 0 {
		logger.Fatal().Msg("no sinks configured, set INFLUXDB_URL or another sink endpoint")
	}

	go func() {
		r := router.SetupRouter(chi.NewRouter(), logger)
		if err := r.Start(flags.port); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	assembler := datapoint.Assembler{
		MeasurementName: flags.measurementName,
		KeepColons:      flags.keepMacColons,
		Aliases:         table,
	}

	app := application.New(bluetooth.New(logger), assembler, sinks, application.Options{
		Verbose:        flags.verbose,
		FormatVersions: flags.formatVersions,
	})

	code := run(ctx, app, logger)

	stop()
	closeSinks()
	cleanup()

	os.Exit(code)
}

// run supervises the event loop and maps the way it ended to an exit status
func run(ctx context.Context, app application.IntegrationRuuvi, logger zerolog.Logger) (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("unexpected fault, shutting down")
			code = exitPanic
		}
	}()

	err := app.Run(ctx)

	if werr := app.Wait(shutdownTimeout); werr != nil {
		logger.Warn().Err(werr).Msg("shutting down with data points still in flight")
	}

	switch {
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("shutting down")
		return exitOK
	case errors.Is(err, os.ErrPermission):
		logger.Error().Err(err).Msg("permission denied, have you run setcap on the binary?")
		return exitFatal
	default:
		logger.Error().Err(err).Msg("listener stopped")
		return exitFatal
	}
}
