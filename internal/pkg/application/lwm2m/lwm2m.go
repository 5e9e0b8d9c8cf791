package lwm2m

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/farshidtz/senml/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tlsSkipVerify bool

func init() {
	tlsSkipVerify = env.GetVariableOrDefault(zerolog.Logger{}, "TLS_SKIP_VERIFY", "0") == "1"
}

var tracer = otel.Tracer("integration-ruuvi/lwm2m")

const (
	AirQualityURN  string = "urn:oma:lwm2m:ext:3428"
	HumidityURN    string = "urn:oma:lwm2m:ext:3304"
	PressureURN    string = "urn:oma:lwm2m:ext:3323"
	TemperatureURN string = "urn:oma:lwm2m:ext:3303"
)

type SenderFunc = func(context.Context, string, senml.Pack) error

// Sink converts data points into one SenML pack per LwM2M object and posts
// them to url
type Sink struct {
	url    string
	sender SenderFunc
}

func New(url string) *Sink {
	return &Sink{url: url, sender: Send}
}

func (s *Sink) Write(ctx context.Context, dp domain.DataPoint) error {
	return CreateAndSendAsLWM2M(ctx, dp, s.url, s.sender)
}

func CreateAndSendAsLWM2M(ctx context.Context, dp domain.DataPoint, url string, sender SenderFunc) error {
	deviceID := dp.Tags["mac"]
	log := logging.GetFromContext(ctx).With().Str("device_id", deviceID).Logger()

	var errs []error

	for _, p := range packs(dp) {
		err := sender(ctx, url, p)
		if err != nil {
			log.Error().Err(err).Msg("could not send pack")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func packs(dp domain.DataPoint) map[string]senml.Pack {
	deviceID := dp.Tags["mac"]
	timestamp := dp.Timestamp

	packs := make(map[string]senml.Pack)

	if v, ok := dp.Fields["temperature"].(float64); ok {
		packs[TemperatureURN] = newPack(TemperatureURN, "5700", deviceID, v, senml.UnitCelsius, timestamp, timestamp)
	}
	if v, ok := dp.Fields["humidity"].(float64); ok {
		packs[HumidityURN] = newPack(HumidityURN, "5700", deviceID, v, senml.UnitRelativeHumidity, timestamp, timestamp)
	}
	if v, ok := dp.Fields["pressure"].(float64); ok {
		packs[PressureURN] = newPack(PressureURN, "5700", deviceID, v, "kPa", timestamp, timestamp)
	}
	if v, ok := dp.Fields["pm25"].(float64); ok {
		packs[AirQualityURN] = newPack(AirQualityURN, "3", deviceID, v/10, "ug/m3", timestamp, timestamp)
	}
	if v, ok := dp.Fields["co2"].(float64); ok {
		if _, ok := packs[AirQualityURN]; !ok {
			packs[AirQualityURN] = newPack(AirQualityURN, "17", deviceID, v, "ppm", timestamp, timestamp)
		} else {
			packs[AirQualityURN] = append(packs[AirQualityURN], newRec("17", v, "ppm", timestamp))
		}
	}

	return packs
}

func newPack(baseName, name, id string, v float64, u string, bt, t time.Time) senml.Pack {
	p := senml.Pack{
		senml.Record{
			BaseName:    baseName,
			BaseTime:    float64(bt.Unix()),
			Name:        "0",
			StringValue: id,
		},
		newRec(name, v, u, t),
	}
	return p
}

func newRec(name string, v float64, u string, t time.Time) senml.Record {
	return senml.Record{
		Name:  name,
		Value: &v,
		Time:  float64(t.Unix()),
		Unit:  u,
	}
}

func Send(ctx context.Context, url string, pack senml.Pack) error {
	var err error

	ctx, span := tracer.Start(ctx, "send-object")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var httpClient http.Client

	if tlsSkipVerify {
		customTransport := http.DefaultTransport.(*http.Transport).Clone()
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		httpClient = http.Client{
			Transport: otelhttp.NewTransport(customTransport),
		}
	} else {
		httpClient = http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	b, err := json.Marshal(pack)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(b))
	if err != nil {
		return err
	}

	req.Header.Add("Content-Type", "application/senml+json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		err = fmt.Errorf("unexpected response code %d", resp.StatusCode)
	}

	return err
}
