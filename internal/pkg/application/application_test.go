package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/alias"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/datapoint"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/ruuvi"
	"github.com/matryer/is"
)

func TestThatDiscoveredDeviceIsDispatched(t *testing.T) {
	is := is.New(t)

	adapter := newFakeAdapter()
	adapter.add(sauna, rawV2(2150, 450000), ptr(int16(-60)))

	sink := &recordingSink{}
	points, err := runWith(t, adapter, newAssembler(t), sink, Options{},
		domain.Event{Kind: domain.DeviceDiscovered, Address: sauna},
	)
	is.True(errors.Is(err, ErrNoEvents))
	is.Equal(len(points), 1)

	dp := points[0]
	is.Equal(dp.Measurement, "ruuvi_measurements")
	is.Equal(dp.Tags, map[string]string{"mac": "AABBCCDDEEFF", "name": "AABBCCDDEEFF"})
	is.Equal(dp.Fields["temperature"], 2.15)
	is.Equal(dp.Fields["humidity"], 45.0)
	is.Equal(dp.Fields["dataFormat"], int64(5))
	is.Equal(dp.Fields["rssi"], int64(-60))
}

func TestThatAliasIsUsedAsName(t *testing.T) {
	is := is.New(t)

	adapter := newFakeAdapter()
	adapter.add(sauna, rawV2(2150, 450000), nil)

	sink := &recordingSink{}
	points, _ := runWith(t, adapter, newAssembler(t, alias.Alias{Address: "AA:BB:CC:DD:EE:FF", Name: "Sauna"}), sink, Options{},
		domain.Event{Kind: domain.DeviceUpdated, Address: sauna},
	)

	is.Equal(len(points), 1)
	is.Equal(points[0].Tags["name"], "Sauna")
	is.Equal(points[0].Tags["mac"], "AABBCCDDEEFF")
}

func TestThatConnectionEventsAreIgnored(t *testing.T) {
	is := is.New(t)

	adapter := newFakeAdapter()
	adapter.add(sauna, rawV2(2150, 450000), nil)

	sink := &recordingSink{}
	points, err := runWith(t, adapter, newAssembler(t), sink, Options{},
		domain.Event{Kind: domain.DeviceConnected, Address: sauna},
		domain.Event{Kind: domain.DeviceDisconnected, Address: sauna},
		domain.Event{Kind: domain.StateUpdate},
	)

	is.True(errors.Is(err, ErrNoEvents))
	is.Equal(len(points), 0)
	is.Equal(adapter.queries.Load(), int32(0)) // properties must not be queried
}

func TestFormatVersionAllowList(t *testing.T) {
	is := is.New(t)

	v3 := domain.Address{1, 1, 1, 1, 1, 3}
	v5 := domain.Address{1, 1, 1, 1, 1, 5}

	adapter := newFakeAdapter()
	adapter.add(v3, rawV1, nil)
	adapter.add(v5, rawV2(2150, 450000), nil)

	events := []domain.Event{
		{Kind: domain.DeviceDiscovered, Address: v3},
		{Kind: domain.DeviceDiscovered, Address: v5},
	}

	points, _ := runWith(t, adapter, newAssembler(t), &recordingSink{}, Options{FormatVersions: []uint8{3}}, events...)
	is.Equal(len(points), 1)
	is.Equal(points[0].Fields["dataFormat"], int64(3))

	points, _ = runWith(t, adapter, newAssembler(t), &recordingSink{}, Options{}, events...)
	is.Equal(len(points), 2)
}

func TestThatBadPayloadsDoNotStopTheLoop(t *testing.T) {
	is := is.New(t)

	short := domain.Address{2, 2, 2, 2, 2, 1}
	unknown := domain.Address{2, 2, 2, 2, 2, 2}
	otherVendor := domain.Address{2, 2, 2, 2, 2, 3}
	missing := domain.Address{2, 2, 2, 2, 2, 4}

	adapter := newFakeAdapter()
	adapter.add(short, []byte{0x05, 0x01}, nil)
	adapter.add(unknown, []byte{0xff, 0x01, 0x02, 0x03}, nil)
	adapter.props[otherVendor] = &domain.Properties{ManufacturerData: map[uint16][]byte{0x004c: rawV2(1, 1)}}
	adapter.add(sauna, rawV2(2150, 450000), nil)

	points, err := runWith(t, adapter, newAssembler(t), &recordingSink{}, Options{Verbose: true},
		domain.Event{Kind: domain.DeviceDiscovered, Address: short},
		domain.Event{Kind: domain.DeviceDiscovered, Address: unknown},
		domain.Event{Kind: domain.DeviceDiscovered, Address: otherVendor},
		domain.Event{Kind: domain.DeviceDiscovered, Address: missing},
		domain.Event{Kind: domain.DeviceDiscovered, Address: sauna},
	)

	is.True(errors.Is(err, ErrNoEvents))
	is.Equal(len(points), 1)
	is.Equal(points[0].Tags["mac"], "AABBCCDDEEFF")
}

func TestThatSlowSinkDoesNotBlockTheLoop(t *testing.T) {
	is := is.New(t)

	adapter := newFakeAdapter()
	adapter.add(sauna, rawV2(2150, 450000), nil)

	release := make(chan struct{})
	var writes atomic.Int32
	slow := SinkFunc(func(ctx context.Context, dp domain.DataPoint) error {
		writes.Add(1)
		<-release
		return nil
	})

	app := New(adapter, newAssembler(t), map[string]Sink{"slow": slow}, Options{})

	for i := 0; i < 5; i++ {
		adapter.events <- domain.Event{Kind: domain.DeviceUpdated, Address: sauna}
	}
	close(adapter.events)

	done := make(chan error)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		is.True(errors.Is(err, ErrNoEvents))
	case <-time.After(2 * time.Second):
		t.Fatal("loop was blocked by a slow sink")
	}

	is.True(errors.Is(app.Wait(10*time.Millisecond), ErrDrainTimeout))

	close(release)
	is.NoErr(app.Wait(2 * time.Second))
	is.Equal(writes.Load(), int32(5))
}

func TestThatFailingSinkDoesNotAffectOtherSinks(t *testing.T) {
	is := is.New(t)

	adapter := newFakeAdapter()
	adapter.add(sauna, rawV2(2150, 450000), nil)

	failing := SinkFunc(func(ctx context.Context, dp domain.DataPoint) error {
		return errors.New("connection refused")
	})
	panicking := SinkFunc(func(ctx context.Context, dp domain.DataPoint) error {
		panic("boom")
	})
	recorder := &recordingSink{}

	app := New(adapter, newAssembler(t), map[string]Sink{"a": failing, "b": recorder, "c": panicking}, Options{})

	adapter.events <- domain.Event{Kind: domain.DeviceDiscovered, Address: sauna}
	adapter.events <- domain.Event{Kind: domain.DeviceUpdated, Address: sauna}
	close(adapter.events)

	is.True(errors.Is(app.Run(context.Background()), ErrNoEvents))
	is.NoErr(app.Wait(2 * time.Second))
	is.Equal(len(recorder.all()), 2)
}

func TestThatRunStopsWhenContextIsCancelled(t *testing.T) {
	is := is.New(t)

	app := New(newFakeAdapter(), newAssembler(t), nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	is.True(errors.Is(app.Run(ctx), context.Canceled))
}

func TestThatAdapterFailureIsFatal(t *testing.T) {
	is := is.New(t)

	adapter := newFakeAdapter()
	adapter.eventsErr = errors.New("permission denied")

	app := New(adapter, newAssembler(t), nil, Options{})
	is.True(errors.Is(app.Run(context.Background()), ErrAdapterUnavailable))
}

func TestBuildMeasurementPrefersNullOutcomeForMissingProperties(t *testing.T) {
	is := is.New(t)

	adapter := newFakeAdapter()
	gw := ruuvi.NewGateway(nil)

	m, err := BuildMeasurement(context.Background(), adapter, gw, sauna)
	is.NoErr(err)
	is.True(m == nil)

	adapter.add(sauna, rawV2(2150, 450000), ptr(int16(-70)))
	adapter.props[sauna].TxPower = ptr(int16(-8))

	m, err = BuildMeasurement(context.Background(), adapter, gw, sauna)
	is.NoErr(err)
	is.Equal(m.Address, sauna)
	is.Equal(*m.RSSI, int16(-70))
	is.Equal(*m.TxPower, int16(-8))
	is.Equal(*m.Readings.Temperature, int32(2150))
}

var sauna = domain.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

// rawV1 is the published example of data format 3
var rawV1 = []byte{0x03, 0x29, 0x1a, 0x1e, 0xce, 0x1e, 0xfc, 0x18, 0xf9, 0x42, 0x02, 0xca, 0x0b, 0x53}

// rawV2 builds a data format 5 payload where everything but temperature and
// humidity is marked as not available
func rawV2(millicelsius int16, humidity uint32) []byte {
	t := uint16(millicelsius / 5)
	h := uint16(humidity / 25)
	return []byte{
		0x05,
		byte(t >> 8), byte(t),
		byte(h >> 8), byte(h),
		0xff, 0xff,
		0x80, 0x00, 0x80, 0x00, 0x80, 0x00,
		0xff, 0xff,
		0xff,
		0xff, 0xff,
		0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
	}
}

type fakeAdapter struct {
	events    chan domain.Event
	eventsErr error
	props     map[domain.Address]*domain.Properties
	queries   atomic.Int32
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		events: make(chan domain.Event, 16),
		props:  map[domain.Address]*domain.Properties{},
	}
}

func (f *fakeAdapter) add(address domain.Address, payload []byte, rssi *int16) {
	f.props[address] = &domain.Properties{
		RSSI:             rssi,
		ManufacturerData: map[uint16][]byte{ruuvi.ManufacturerID: payload},
	}
}

func (f *fakeAdapter) Events(ctx context.Context) (<-chan domain.Event, error) {
	return f.events, f.eventsErr
}

func (f *fakeAdapter) Properties(ctx context.Context, address domain.Address) (*domain.Properties, error) {
	f.queries.Add(1)
	p, ok := f.props[address]
	if !ok {
		return nil, errors.New("device not found")
	}
	return p, nil
}

type recordingSink struct {
	mu     sync.Mutex
	points []domain.DataPoint
}

func (r *recordingSink) Write(ctx context.Context, dp domain.DataPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, dp)
	return nil
}

func (r *recordingSink) all() []domain.DataPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DataPoint{}, r.points...)
}

// runWith feeds the events to a fresh loop, lets it drain the closed stream
// and returns everything the sink received
func runWith(t *testing.T, adapter *fakeAdapter, assembler Assembler, sink *recordingSink, opts Options, events ...domain.Event) ([]domain.DataPoint, error) {
	adapter.events = make(chan domain.Event, len(events))
	for _, e := range events {
		adapter.events <- e
	}
	close(adapter.events)

	app := New(adapter, assembler, map[string]Sink{"test": sink}, opts)
	err := app.Run(context.Background())

	if werr := app.Wait(2 * time.Second); werr != nil {
		t.Fatal(werr.Error())
	}

	return sink.all(), err
}

func newAssembler(t *testing.T, aliases ...alias.Alias) datapoint.Assembler {
	table, err := alias.NewTable(false, aliases...)
	if err != nil {
		t.Fatal(err.Error())
	}
	return datapoint.Assembler{Aliases: table}
}

func ptr[T any](v T) *T {
	return &v
}
