package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/ruuvi"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

var (
	ErrNoEvents           = errors.New("no events received")
	ErrAdapterUnavailable = errors.New("bluetooth adapter not available")
	ErrDrainTimeout       = errors.New("timed out waiting for dispatched data points")
)

type IntegrationRuuvi interface {
	Run(ctx context.Context) error
	Wait(timeout time.Duration) error
}

// Sink receives assembled data points. Implementations must be safe for
// concurrent use since every dispatched point is written from its own goroutine.
type Sink interface {
	Write(ctx context.Context, dp domain.DataPoint) error
}

type SinkFunc func(ctx context.Context, dp domain.DataPoint) error

func (f SinkFunc) Write(ctx context.Context, dp domain.DataPoint) error {
	return f(ctx, dp)
}

type Assembler interface {
	DataPoint(ctx context.Context, m domain.Measurement) domain.DataPoint
}

type Options struct {
	Verbose bool
	// FormatVersions restricts which data formats are dispatched. Empty accepts all.
	FormatVersions []uint8
}

type state int

const (
	idle state = iota
	resolving
	decoding
	filtering
	dispatching
)

func (s state) String() string {
	return [...]string{"idle", "resolving", "decoding", "filtering", "dispatching"}[s]
}

type integrationRuuvi struct {
	adapter   Adapter
	gateway   ruuvi.Gateway
	assembler Assembler
	sinkNames []string
	sinks     map[string]Sink
	opts      Options

	wg sync.WaitGroup
}

func New(adapter Adapter, assembler Assembler, sinks map[string]Sink, opts Options) IntegrationRuuvi {
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	sort.Strings(names)

	return &integrationRuuvi{
		adapter:   adapter,
		gateway:   ruuvi.NewGateway(ruuvi.Decode),
		assembler: assembler,
		sinkNames: names,
		sinks:     sinks,
		opts:      opts,
	}
}

// Run consumes adapter events until the context is cancelled or the event
// stream closes. A closed stream is reported as ErrNoEvents.
func (a *integrationRuuvi) Run(ctx context.Context) error {
	logger := logging.GetFromContext(ctx)

	events, err := a.adapter.Events(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAdapterUnavailable, err)
	}

	logger.Info().Strs("sinks", a.sinkNames).Msg("listening for ruuvi advertisements")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrNoEvents
			}
			outcome := a.handle(ctx, e)
			eventsTotal.WithLabelValues(e.Kind.String(), outcome).Inc()
		}
	}
}

// handle triages a single event from idle and back, returning the outcome
func (a *integrationRuuvi) handle(ctx context.Context, e domain.Event) string {
	if e.Kind != domain.DeviceDiscovered && e.Kind != domain.DeviceUpdated {
		return "ignored"
	}

	logger := logging.GetFromContext(ctx).With().Str("mac", e.Address.String()).Logger()

	m, err := BuildMeasurement(ctx, a.adapter, a.gateway, e.Address)
	if err != nil {
		if errors.Is(err, ruuvi.ErrUnrecognizedSource) {
			return "unrecognized"
		}
		if a.opts.Verbose {
			logger.Warn().Err(err).Stringer("state", decoding).Msg("failed to decode advertisement")
		}
		return "decode_failed"
	}
	if m == nil {
		if a.opts.Verbose {
			logger.Info().Stringer("state", resolving).Msg("device properties not available")
		}
		return "unavailable"
	}

	if !a.accepts(m.Readings) {
		logger.Debug().Stringer("state", filtering).Msg("data format not in allow list")
		return "filtered"
	}

	logger.Trace().Stringer("state", dispatching).Msg("dispatching measurement")
	a.dispatch(context.WithoutCancel(ctx), *m)

	return "dispatched"
}

func (a *integrationRuuvi) accepts(r domain.SensorReadings) bool {
	if len(a.opts.FormatVersions) == 0 {
		return true
	}
	if r.FormatVersion == nil {
		return false
	}
	return slices.Contains(a.opts.FormatVersions, *r.FormatVersion)
}

// dispatch assembles and writes the data point on its own goroutine. The
// caller never waits for it and no ordering is kept between dispatches.
func (a *integrationRuuvi) dispatch(ctx context.Context, m domain.Measurement) {
	a.wg.Add(1)
	dispatchesInFlight.Inc()

	go func() {
		logger := logging.GetFromContext(ctx).With().Str("mac", m.Address.String()).Logger()

		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("recovered from panic while dispatching data point")
			}
			dispatchesInFlight.Dec()
			a.wg.Done()
		}()

		dp := a.assembler.DataPoint(ctx, m)
		if len(dp.Fields) == 0 {
			logger.Debug().Msg("measurement produced no fields, nothing to dispatch")
			return
		}

		for _, name := range a.sinkNames {
			if err := a.sinks[name].Write(ctx, dp); err != nil {
				sinkWritesTotal.WithLabelValues(name, "failure").Inc()
				logger.Error().Err(err).Str("sink", name).Msg("failed to write data point")
				continue
			}
			sinkWritesTotal.WithLabelValues(name, "success").Inc()
		}
	}()
}

// Wait blocks until all dispatched data points have been handled or the
// timeout expires
func (a *integrationRuuvi) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrDrainTimeout
	}
}
