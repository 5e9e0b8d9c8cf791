package fiware

import (
	"context"
	"errors"
	"fmt"
	"time"

	fw "github.com/diwise/context-broker/pkg/datamodels/fiware"
	"github.com/diwise/context-broker/pkg/ngsild/client"
	ngsierrors "github.com/diwise/context-broker/pkg/ngsild/errors"
	"github.com/diwise/context-broker/pkg/ngsild/types"
	"github.com/diwise/context-broker/pkg/ngsild/types/entities"
	. "github.com/diwise/context-broker/pkg/ngsild/types/entities/decorators"
	"github.com/diwise/context-broker/pkg/ngsild/types/properties"
	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("integration-ruuvi/fiware")

// Sink keeps one AirQualityObserved entity per device up to date in a
// context broker
type Sink struct {
	cbClient client.ContextBrokerClient
}

func New(cbClient client.ContextBrokerClient) *Sink {
	return &Sink{cbClient: cbClient}
}

func (s *Sink) Write(ctx context.Context, dp domain.DataPoint) error {
	return CreateOrUpdateAirQualityObserved(ctx, s.cbClient, dp)
}

func CreateOrUpdateAirQualityObserved(ctx context.Context, cbClient client.ContextBrokerClient, dp domain.DataPoint) error {
	var err error

	ctx, span := tracer.Start(ctx, "create-air-quality")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

	headers := map[string][]string{"Content-Type": {"application/ld+json"}}

	timestamp := dp.Timestamp.UTC().Format(time.RFC3339)

	decorators := []entities.EntityDecoratorFunc{
		entities.DefaultContext(),
		Text("areaServed", dp.Tags["name"]),
		DateTime(properties.DateObserved, timestamp),
	}
	decorators = append(decorators, createFragmentsFromFields(dp.Fields, timestamp)...)

	var fragment types.EntityFragment
	fragment, err = entities.NewFragment(decorators...)
	if err != nil {
		err = fmt.Errorf("failed to create entity fragment: %w", err)
		return err
	}

	entityID := EntityID(dp.Tags["mac"])

	_, err = cbClient.MergeEntity(ctx, entityID, fragment, headers)
	if err == nil {
		logger.Debug().Msgf("updated entity %s", entityID)
		return nil
	}

	if !errors.Is(err, ngsierrors.ErrNotFound) {
		logger.Error().Err(err).Msg("failed to merge entity")
	}

	var entity types.Entity
	entity, err = entities.New(entityID, fw.AirQualityObservedTypeName, decorators...)
	if err != nil {
		err = fmt.Errorf("failed to create new entity: %w", err)
		return err
	}

	_, err = cbClient.CreateEntity(ctx, entity, headers)
	if err != nil {
		err = fmt.Errorf("failed to post entity to context broker: %w", err)
		return err
	}

	logger.Info().Msgf("created entity %s", entityID)

	return nil
}

func EntityID(mac string) string {
	return fw.AirQualityObservedIDPrefix + "ruuvi:" + mac
}

func createFragmentsFromFields(fields map[string]any, timestamp string) []entities.EntityDecoratorFunc {
	readings := []entities.EntityDecoratorFunc{}

	for field, value := range fields {
		attr, ok := attributes[field]
		if !ok {
			continue
		}

		v, ok := value.(float64)
		if !ok {
			continue
		}

		readings = append(readings, Number(
			attr.name,
			v*attr.scale,
			properties.UnitCode(attr.unitCode),
			properties.ObservedAt(timestamp),
		))
	}

	return readings
}

type attribute struct {
	name     string
	unitCode string
	scale    float64
}

var attributes map[string]attribute = map[string]attribute{
	"temperature":    {name: "temperature", unitCode: "CEL", scale: 1},
	"humidity":       {name: "relativeHumidity", unitCode: "P1", scale: 1},
	"pressure":       {name: "atmosphericPressure", unitCode: "A97", scale: 10},
	"batteryVoltage": {name: "voltage", unitCode: "VLT", scale: 1},
	"pm25":           {name: "PM25", unitCode: "GQ", scale: 0.1},
	"co2":            {name: "CO2", unitCode: "59", scale: 1},
}
