package ruuvi

import (
	"errors"

	"github.com/diwise/integration-ruuvi/domain"
)

// ManufacturerID is the Bluetooth SIG company identifier of Ruuvi Innovations
const ManufacturerID uint16 = 0x0499

// minPayloadLength is the shortest buffer that can never hold a format marker
// followed by data
const minPayloadLength int = 2

var (
	ErrUnrecognizedSource = errors.New("unrecognized source")
	ErrPayloadTooShort    = errors.New("payload too short")
	ErrUnsupportedFormat  = errors.New("unsupported data format")
	ErrInvalidPayload     = errors.New("invalid payload")
)

type DecoderFunc = func([]byte) (domain.SensorReadings, error)

type Gateway struct {
	decode DecoderFunc
}

func NewGateway(decoder DecoderFunc) Gateway {
	if decoder == nil {
		decoder = Decode
	}
	return Gateway{decode: decoder}
}

func (g Gateway) Decode(payload []byte) (domain.SensorReadings, error) {
	if len(payload) <= minPayloadLength {
		return domain.SensorReadings{}, ErrPayloadTooShort
	}
	return g.decode(payload)
}

// FromProperties picks the Ruuvi payload out of the advertised manufacturer
// data and decodes it
func (g Gateway) FromProperties(props domain.Properties) (domain.SensorReadings, error) {
	payload, ok := props.ManufacturerData[ManufacturerID]
	if !ok {
		return domain.SensorReadings{}, ErrUnrecognizedSource
	}
	return g.Decode(payload)
}
