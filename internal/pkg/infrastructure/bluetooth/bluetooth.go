package bluetooth

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/go-ble/ble"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownDevice       = errors.New("unknown device")
	ErrUnsupportedPlatform = errors.New("bluetooth scanning is not supported on this platform")
)

const eventBufferSize int = 256

// HCI reports 127 when the advertised tx power is not available, and go-ble
// reports 0 when the advertisement has no tx power level field at all
const (
	txPowerNotAvailable int = 127
	txPowerMissing      int = 0
)

// Scanner passively scans for advertisements and remembers the latest
// properties seen for every device
type Scanner struct {
	log    zerolog.Logger
	device func() (ble.Device, error)

	mu    sync.RWMutex
	props map[domain.Address]domain.Properties

	events chan domain.Event
}

func New(log zerolog.Logger) *Scanner {
	return &Scanner{
		log:    log,
		device: newDevice,
		props:  map[domain.Address]domain.Properties{},
		events: make(chan domain.Event, eventBufferSize),
	}
}

// Events starts scanning. The returned channel is closed when scanning stops.
func (s *Scanner) Events(ctx context.Context) (<-chan domain.Event, error) {
	d, err := s.device()
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(s.events)
		defer d.Stop()

		err := d.Scan(ctx, true, s.handleAdvertisement)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("scanning stopped")
		}
	}()

	return s.events, nil
}

func (s *Scanner) Properties(ctx context.Context, address domain.Address) (*domain.Properties, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.props[address]
	if !ok {
		return nil, ErrUnknownDevice
	}

	return &p, nil
}

func (s *Scanner) handleAdvertisement(a ble.Advertisement) {
	address, err := domain.ParseAddress(a.Addr().String())
	if err != nil {
		s.log.Debug().Err(err).Msg("ignoring advertisement")
		return
	}

	props := domain.Properties{
		RSSI:             ptr(int16(a.RSSI())),
		ManufacturerData: map[uint16][]byte{},
	}

	if tx := a.TxPowerLevel(); tx != txPowerMissing && tx != txPowerNotAvailable {
		props.TxPower = ptr(int16(tx))
	}

	if md := a.ManufacturerData(); len(md) >= 2 {
		id := binary.LittleEndian.Uint16(md)
		props.ManufacturerData[id] = append([]byte{}, md[2:]...)
	}

	s.mu.Lock()
	_, seen := s.props[address]
	s.props[address] = props
	s.mu.Unlock()

	kind := domain.DeviceUpdated
	if !seen {
		kind = domain.DeviceDiscovered
	}

	select {
	case s.events <- domain.Event{Kind: kind, Address: address}:
	default:
		s.log.Debug().Str("mac", address.String()).Msg("event buffer full, dropping advertisement")
	}
}

func ptr[T any](v T) *T {
	return &v
}
