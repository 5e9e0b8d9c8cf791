package ruuvi

import (
	"encoding/binary"
	"fmt"

	"github.com/diwise/integration-ruuvi/domain"
)

const (
	FormatRAWv1 uint8 = 3
	FormatRAWv2 uint8 = 5
	FormatAir   uint8 = 6
)

const (
	rawV1Length int = 14
	rawV2Length int = 18 // the trailing MAC address is optional
	airLength   int = 17
)

// Decode interprets a Ruuvi manufacturer payload, with the company id already
// stripped, according to its leading format marker.
func Decode(payload []byte) (domain.SensorReadings, error) {
	if len(payload) == 0 {
		return domain.SensorReadings{}, ErrPayloadTooShort
	}

	switch payload[0] {
	case FormatRAWv1:
		return decodeRAWv1(payload)
	case FormatRAWv2:
		return decodeRAWv2(payload)
	case FormatAir:
		return decodeAir(payload)
	}

	return domain.SensorReadings{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, payload[0])
}

func decodeRAWv1(b []byte) (domain.SensorReadings, error) {
	if len(b) < rawV1Length {
		return domain.SensorReadings{}, fmt.Errorf("%w: format %d requires %d bytes, got %d", ErrInvalidPayload, FormatRAWv1, rawV1Length, len(b))
	}
	if b[3] > 99 {
		return domain.SensorReadings{}, fmt.Errorf("%w: temperature fraction %d out of range", ErrInvalidPayload, b[3])
	}

	temperature := int32(b[2]&0x7f)*1000 + int32(b[3])*10
	if b[2]&0x80 != 0 {
		temperature = -temperature
	}

	return domain.SensorReadings{
		Humidity:    ptr(uint32(b[1]) * 5000),
		Temperature: &temperature,
		Pressure:    ptr(uint32(u16(b, 4)) + 50000),
		Acceleration: &domain.Acceleration{
			X: i16(b, 6),
			Y: i16(b, 8),
			Z: i16(b, 10),
		},
		Battery:       ptr(u16(b, 12)),
		FormatVersion: ptr(FormatRAWv1),
	}, nil
}

func decodeRAWv2(b []byte) (domain.SensorReadings, error) {
	if len(b) < rawV2Length {
		return domain.SensorReadings{}, fmt.Errorf("%w: format %d requires %d bytes, got %d", ErrInvalidPayload, FormatRAWv2, rawV2Length, len(b))
	}

	r := domain.SensorReadings{
		FormatVersion: ptr(FormatRAWv2),
	}

	if t := i16(b, 1); t != -32768 {
		r.Temperature = ptr(int32(t) * 5)
	}
	if h := u16(b, 3); h != 0xffff {
		r.Humidity = ptr(uint32(h) * 25)
	}
	if p := u16(b, 5); p != 0xffff {
		r.Pressure = ptr(uint32(p) + 50000)
	}

	x, y, z := i16(b, 7), i16(b, 9), i16(b, 11)
	if x != -32768 && y != -32768 && z != -32768 {
		r.Acceleration = &domain.Acceleration{X: x, Y: y, Z: z}
	}

	power := u16(b, 13)
	if battery := power >> 5; battery != 0x7ff {
		r.Battery = ptr(battery + 1600)
	}
	if tx := power & 0x1f; tx != 0x1f {
		r.TxPower = ptr(int8(tx)*2 - 40)
	}

	if mc := b[15]; mc != 0xff {
		r.MovementCounter = ptr(uint32(mc))
	}
	if seq := u16(b, 16); seq != 0xffff {
		r.SequenceNumber = ptr(uint32(seq))
	}

	return r, nil
}

func decodeAir(b []byte) (domain.SensorReadings, error) {
	if len(b) < airLength {
		return domain.SensorReadings{}, fmt.Errorf("%w: format %d requires %d bytes, got %d", ErrInvalidPayload, FormatAir, airLength, len(b))
	}

	r := domain.SensorReadings{
		FormatVersion:  ptr(FormatAir),
		SequenceNumber: ptr(uint32(b[15])),
	}

	if t := i16(b, 1); t != -32768 {
		r.Temperature = ptr(int32(t) * 5)
	}
	if h := u16(b, 3); h != 0xffff {
		r.Humidity = ptr(uint32(h) * 25)
	}
	if p := u16(b, 5); p != 0xffff {
		r.Pressure = ptr(uint32(p) + 50000)
	}
	if pm := u16(b, 7); pm != 0xffff {
		r.PM25 = ptr(pm)
	}
	if co2 := u16(b, 9); co2 != 0xffff {
		r.CO2 = ptr(co2)
	}

	return r, nil
}

func u16(b []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(b[offset : offset+2])
}

func i16(b []byte, offset int) int16 {
	return int16(u16(b, offset))
}

func ptr[T any](v T) *T {
	return &v
}
