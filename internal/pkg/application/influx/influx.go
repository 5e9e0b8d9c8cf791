package influx

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	client "github.com/influxdata/influxdb/client/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("integration-ruuvi/influx")

type Config struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// Writer writes data points to an InfluxDB 1.x compatible HTTP write endpoint.
// Failed writes are returned to the caller and never retried.
type Writer struct {
	client   client.Client
	database string
}

func New(cfg Config) (*Writer, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influxdb client: %s", err.Error())
	}

	return &Writer{
		client:   c,
		database: cfg.Database,
	}, nil
}

func (w *Writer) Write(ctx context.Context, dp domain.DataPoint) error {
	var err error

	_, span := tracer.Start(ctx, "write-point")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var bp client.BatchPoints
	bp, err = client.NewBatchPoints(client.BatchPointsConfig{
		Database:  w.database,
		Precision: "ns",
	})
	if err != nil {
		err = fmt.Errorf("failed to create batch: %s", err.Error())
		return err
	}

	var pt *client.Point
	pt, err = client.NewPoint(dp.Measurement, dp.Tags, dp.Fields, dp.Timestamp)
	if err != nil {
		err = fmt.Errorf("failed to create point: %s", err.Error())
		return err
	}
	bp.AddPoint(pt)

	err = w.client.Write(bp)
	if err != nil {
		err = fmt.Errorf("failed to write point to influxdb: %s", err.Error())
	}

	return err
}

func (w *Writer) Close() error {
	return w.client.Close()
}

// Printer writes each data point as a line of line protocol, e.g. to stdout
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) Write(ctx context.Context, dp domain.DataPoint) error {
	line, err := dp.Line()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err = fmt.Fprintln(p.out, line)
	return err
}
