package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diwise/integration-ruuvi/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	paho "github.com/eclipse/paho.mqtt.golang"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("integration-ruuvi/mqtt")

const DefaultTopicPrefix string = "ruuvi"

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Sink publishes the line protocol form of each data point to
// <prefix>/<mac>
type Sink struct {
	client  paho.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

func New(cfg Config) (*Sink, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := paho.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return &Sink{
		client:  client,
		prefix:  prefix,
		qos:     cfg.QoS,
		timeout: 10 * time.Second,
	}, nil
}

func (s *Sink) Write(ctx context.Context, dp domain.DataPoint) error {
	var err error

	_, span := tracer.Start(ctx, "publish")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var line string
	line, err = dp.Line()
	if err != nil {
		return err
	}

	topic := Topic(s.prefix, dp)

	token := s.client.Publish(topic, s.qos, false, []byte(line))
	if !token.WaitTimeout(s.timeout) {
		err = fmt.Errorf("timed out publishing to topic %s", topic)
		return err
	}

	if token.Error() != nil {
		err = fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return err
}

func (s *Sink) Close() {
	s.client.Disconnect(250)
}

// Topic returns <prefix>/<mac> with any colons removed from the mac
func Topic(prefix string, dp domain.DataPoint) string {
	mac := strings.ReplaceAll(dp.Tags["mac"], ":", "")
	return strings.TrimSuffix(prefix, "/") + "/" + mac
}
