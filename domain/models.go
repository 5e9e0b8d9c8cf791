package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	client "github.com/influxdata/influxdb/client/v2"
)

// Address is the 48 bit hardware address of a broadcasting device
type Address [6]byte

func ParseAddress(s string) (Address, error) {
	var a Address

	cleaned := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(cleaned) != 12 {
		return a, fmt.Errorf("invalid device address %q", s)
	}

	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return a, fmt.Errorf("invalid device address %q: %s", s, err.Error())
	}

	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Normalize returns the address in the form used for tags and alias lookups
func (a Address) Normalize(keepColons bool) string {
	s := a.String()
	if !keepColons {
		s = strings.ReplaceAll(s, ":", "")
	}
	return s
}

type EventKind int

const (
	DeviceDiscovered EventKind = iota
	DeviceUpdated
	DeviceConnected
	DeviceDisconnected
	StateUpdate
)

func (k EventKind) String() string {
	switch k {
	case DeviceDiscovered:
		return "discovered"
	case DeviceUpdated:
		return "updated"
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	case StateUpdate:
		return "state"
	}
	return "unknown"
}

type Event struct {
	Kind    EventKind
	Address Address
}

// Properties holds the latest advertisement attributes observed for a device
type Properties struct {
	RSSI             *int16
	TxPower          *int16
	ManufacturerData map[uint16][]byte
}

type Acceleration struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// SensorReadings is the decoded content of a manufacturer payload. Every
// quantity is optional.
type SensorReadings struct {
	Temperature     *int32        `json:"temperature,omitempty"` // millicelsius
	Humidity        *uint32       `json:"humidity,omitempty"`    // 1 % == 10000
	Pressure        *uint32       `json:"pressure,omitempty"`    // Pa
	Battery         *uint16       `json:"battery,omitempty"`     // mV
	TxPower         *int8         `json:"txPower,omitempty"`     // dBm
	MovementCounter *uint32       `json:"movementCounter,omitempty"`
	SequenceNumber  *uint32       `json:"sequenceNumber,omitempty"`
	PM25            *uint16       `json:"pm25,omitempty"` // 0.1 µg/m³
	CO2             *uint16       `json:"co2,omitempty"`  // ppm
	Acceleration    *Acceleration `json:"acceleration,omitempty"`
	FormatVersion   *uint8        `json:"dataFormat,omitempty"`
}

type Measurement struct {
	Address  Address
	TxPower  *int16
	RSSI     *int16
	Readings SensorReadings
}

// DataPoint is one row for a time series sink. Field values are either
// float64 or int64.
type DataPoint struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Timestamp   time.Time
}

// Line serializes the data point using the InfluxDB line protocol
func (dp DataPoint) Line() (string, error) {
	pt, err := client.NewPoint(dp.Measurement, dp.Tags, dp.Fields, dp.Timestamp)
	if err != nil {
		return "", fmt.Errorf("failed to create point: %w", err)
	}
	return pt.String(), nil
}
