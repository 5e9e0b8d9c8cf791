//go:build !linux

package bluetooth

import "github.com/go-ble/ble"

func newDevice() (ble.Device, error) {
	return nil, ErrUnsupportedPlatform
}
