package main

import (
	"context"
	"os"
	"strconv"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	"github.com/diwise/integration-ruuvi/internal/pkg/application"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/fiware"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/influx"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/lwm2m"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/mqtt"
	"github.com/diwise/integration-ruuvi/internal/pkg/application/redisstream"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/rs/zerolog"
)

// setupSinks creates a sink for every destination that has been configured
// through the environment. The returned func closes the sinks that hold
// connections.
func setupSinks(ctx context.Context, logger zerolog.Logger, flags options) (map[string]application.Sink, func()) {
	sinks := map[string]application.Sink{}
	closers := []func(){}

	if flags.printLines {
		sinks["stdout"] = influx.NewPrinter(os.Stdout)
	}

	if url := env.GetVariableOrDefault(logger, "INFLUXDB_URL", ""); url != "" {
		w, err := influx.New(influx.Config{
			URL:      url,
			Database: env.GetVariableOrDefault(logger, "INFLUXDB_DATABASE", "ruuvi"),
			Username: env.GetVariableOrDefault(logger, "INFLUXDB_USERNAME", ""),
			Password: env.GetVariableOrDefault(logger, "INFLUXDB_PASSWORD", ""),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create influxdb client")
		}
		sinks["influxdb"] = w
		closers = append(closers, func() { w.Close() })
	}

	if url := env.GetVariableOrDefault(logger, "LWM2M_URL", ""); url != "" {
		sinks["lwm2m"] = lwm2m.New(url)
	}

	if url := env.GetVariableOrDefault(logger, "CONTEXT_BROKER_URL", ""); url != "" {
		sinks["fiware"] = fiware.New(client.NewContextBrokerClient(url))
	}

	if addr := env.GetVariableOrDefault(logger, "REDIS_ADDR", ""); addr != "" {
		maxLen, err := strconv.ParseInt(env.GetVariableOrDefault(logger, "REDIS_STREAM_MAXLEN", "10000"), 10, 64)
		if err != nil {
			logger.Fatal().Err(err).Msg("REDIS_STREAM_MAXLEN must be an integer")
		}

		s, err := redisstream.New(ctx, redisstream.Config{
			Addr:     addr,
			Password: env.GetVariableOrDefault(logger, "REDIS_PASSWORD", ""),
			Stream:   env.GetVariableOrDefault(logger, "REDIS_STREAM", "ruuvi"),
			MaxLen:   maxLen,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		sinks["redis"] = s
		closers = append(closers, func() { s.Close() })
	}

	if broker := env.GetVariableOrDefault(logger, "MQTT_BROKER", ""); broker != "" {
		s, err := mqtt.New(mqtt.Config{
			Broker:      broker,
			ClientID:    env.GetVariableOrDefault(logger, "MQTT_CLIENT_ID", serviceName),
			Username:    env.GetVariableOrDefault(logger, "MQTT_USERNAME", ""),
			Password:    env.GetVariableOrDefault(logger, "MQTT_PASSWORD", ""),
			TopicPrefix: env.GetVariableOrDefault(logger, "MQTT_TOPIC_PREFIX", "ruuvi"),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		sinks["mqtt"] = s
		closers = append(closers, s.Close)
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
