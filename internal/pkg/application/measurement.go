package application

import (
	"context"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/ruuvi"
)

// Adapter is the boundary towards the wireless stack
type Adapter interface {
	Events(ctx context.Context) (<-chan domain.Event, error)
	Properties(ctx context.Context, address domain.Address) (*domain.Properties, error)
}

// BuildMeasurement queries the current advertisement properties of a device and
// decodes its Ruuvi payload. A nil measurement without error means that the
// device had no properties to offer and should be skipped for this event.
func BuildMeasurement(ctx context.Context, adapter Adapter, gateway ruuvi.Gateway, address domain.Address) (*domain.Measurement, error) {
	props, err := adapter.Properties(ctx, address)
	if err != nil || props == nil {
		return nil, nil
	}

	readings, err := gateway.FromProperties(*props)
	if err != nil {
		return nil, err
	}

	return &domain.Measurement{
		Address:  address,
		TxPower:  props.TxPower,
		RSSI:     props.RSSI,
		Readings: readings,
	}, nil
}
