package redisstream

import (
	"context"
	"fmt"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("integration-ruuvi/redisstream")

const DefaultStream string = "ruuvi:measurements:stream"

type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Sink appends every data point as an entry to a Redis stream
type Sink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func New(ctx context.Context, cfg Config) (*Sink, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(c, cfg.Stream, cfg.MaxLen), nil
}

func NewWithClient(c *redis.Client, stream string, maxLen int64) *Sink {
	if stream == "" {
		stream = DefaultStream
	}
	return &Sink{client: c, stream: stream, maxLen: maxLen}
}

func (s *Sink) Write(ctx context.Context, dp domain.DataPoint) error {
	var err error

	ctx, span := tracer.Start(ctx, "publish-to-stream")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var line string
	line, err = dp.Line()
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"mac":       dp.Tags["mac"],
			"name":      dp.Tags["name"],
			"line":      line,
			"timestamp": dp.Timestamp.UnixNano(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	err = s.client.XAdd(ctx, args).Err()
	if err != nil {
		err = fmt.Errorf("failed to publish to stream %s: %w", s.stream, err)
	}

	return err
}

func (s *Sink) Close() error {
	return s.client.Close()
}
