package datapoint

import (
	"context"
	"math"
	"time"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const DefaultMeasurementName string = "ruuvi_measurements"

// MissingValueSentinel replaces an absent humidity when computing the dew
// point, and an absent temperature when computing the absolute humidity.
// The resulting derived value is defined but has no physical meaning.
// TODO: omit dewPoint and absoluteHumidity instead once no dashboard depends
// on the sentinel based values.
const MissingValueSentinel int64 = 999_999_999

type Resolver interface {
	Resolve(domain.Address) string
}

type Assembler struct {
	MeasurementName string
	KeepColons      bool
	Aliases         Resolver
}

func (a Assembler) DataPoint(ctx context.Context, m domain.Measurement) domain.DataPoint {
	name := a.MeasurementName
	if name == "" {
		name = DefaultMeasurementName
	}

	return domain.DataPoint{
		Measurement: name,
		Tags:        a.Tags(m),
		Fields:      a.Fields(ctx, m),
		Timestamp:   time.Now(),
	}
}

func (a Assembler) Tags(m domain.Measurement) map[string]string {
	mac := m.Address.Normalize(a.KeepColons)

	name := mac
	if a.Aliases != nil {
		name = a.Aliases.Resolve(m.Address)
	}

	return map[string]string{
		"mac":  mac,
		"name": name,
	}
}

func (a Assembler) Fields(ctx context.Context, m domain.Measurement) map[string]any {
	r := m.Readings
	f := fields{}

	if r.Temperature != nil {
		f.float("temperature", float64(*r.Temperature)/1000)
	}

	if r.Temperature != nil {
		humidity := MissingValueSentinel
		if r.Humidity != nil {
			humidity = int64(*r.Humidity)
		}
		f.float("dewPoint", dewPoint(celsius(int64(*r.Temperature)), percent(humidity)))
	}

	if r.Humidity != nil {
		f.float("humidity", float64(*r.Humidity)/10000)

		temperature := MissingValueSentinel
		if r.Temperature != nil {
			temperature = int64(*r.Temperature)
		}
		f.float("absoluteHumidity", absoluteHumidity(celsius(temperature), percent(int64(*r.Humidity))))
	}

	if r.Pressure != nil {
		f.float("pressure", float64(*r.Pressure)/1000)
	}

	if r.Battery != nil {
		f.float("batteryVoltage", float64(*r.Battery)/1000)
	}

	if r.TxPower != nil {
		f.integer("txPower", int64(*r.TxPower))
	} else if m.TxPower != nil {
		f.integer("txPower", int64(*m.TxPower))
	} else {
		logger := logging.GetFromContext(ctx)
		logger.Debug().Str("mac", m.Address.String()).Msg("no tx power found")
	}

	if r.MovementCounter != nil {
		f.integer("movementCounter", int64(*r.MovementCounter))
	}

	if r.SequenceNumber != nil {
		f.integer("measurementSequenceNumber", int64(*r.SequenceNumber))
	}

	if r.PM25 != nil {
		f.float("pm25", float64(*r.PM25))
	}

	if r.CO2 != nil {
		f.float("co2", float64(*r.CO2))
	}

	if r.FormatVersion != nil {
		f.integer("dataFormat", int64(*r.FormatVersion))
	}

	if m.RSSI != nil {
		f.integer("rssi", int64(*m.RSSI))
	}

	if r.Temperature != nil && r.Humidity != nil && r.Pressure != nil {
		f.float("airDensity", airDensity(
			celsius(int64(*r.Temperature)),
			percent(int64(*r.Humidity)),
			float64(*r.Pressure),
		))
	}

	if r.Temperature != nil {
		f.float("equilibriumVaporPressure", saturationVaporPressure(celsius(int64(*r.Temperature)))/100)
	}

	if acc := r.Acceleration; acc != nil {
		f.float("accelerationX", float64(acc.X)/1000)
		f.float("accelerationY", float64(acc.Y)/1000)
		f.float("accelerationZ", float64(acc.Z)/1000)
	}

	return f
}

type fields map[string]any

// float drops values that can not be represented in a time series point
func (f fields) float(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	f[name] = v
}

func (f fields) integer(name string, v int64) {
	f[name] = v
}

func celsius(millicelsius int64) float64 {
	return float64(millicelsius) / 1000
}

func percent(humidity int64) float64 {
	return float64(humidity) / 10000
}
