// Command sensor-relay reads local sensors and delivers their samples to a
// cloud broker over MQTT, with threshold filtering, publish rate bounds, and
// per-channel backlog recovery across session loss.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/sweeney/sensor-relay/internal/actuator"
	"github.com/sweeney/sensor-relay/internal/channel"
	"github.com/sweeney/sensor-relay/internal/config"
	"github.com/sweeney/sensor-relay/internal/delivery"
	"github.com/sweeney/sensor-relay/internal/logging"
	"github.com/sweeney/sensor-relay/internal/metrics"
	"github.com/sweeney/sensor-relay/internal/pipeline"
	"github.com/sweeney/sensor-relay/internal/sampler"
	"github.com/sweeney/sensor-relay/internal/scheduler"
	"github.com/sweeney/sensor-relay/internal/sensor"
	"github.com/sweeney/sensor-relay/internal/status"
	"github.com/sweeney/sensor-relay/internal/store"
	"github.com/sweeney/sensor-relay/internal/transport"
	"github.com/sweeney/sensor-relay/internal/web"
)

func main() {
	configPath := flag.String("config", "", "config file path (overrides the default search)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensor-relay: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput(cfg.Logging.Output),
	})
	log := logging.Component("main")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	reg := buildRegistry(cfg)
	if reg.Len() == 0 {
		return errors.New("no sensor channels enabled")
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	// LED command handling is optional; without it cloud commands are
	// logged and ignored by the transport.
	var onCommand transport.CommandHandler
	if cfg.LED.Enabled {
		led, err := actuator.NewGPIOLed(cfg.LED.Pin)
		if err != nil {
			return fmt.Errorf("init led: %w", err)
		}
		blinker := actuator.NewBlinker(led, logging.Component("actuator"))
		defer blinker.Close()
		onCommand = blinker.Handle
	}

	pusher, err := transport.NewMQTT(transport.MQTTConfig{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Topic:          cfg.MQTT.Topic,
		CommandTopic:   cfg.MQTT.CommandTopic,
		PublishTimeout: cfg.MQTT.PublishTimeout,
	}, onCommand, logging.Component("mqtt"))
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer pusher.Close()

	var st store.Store
	if cfg.Mode == "buffered" {
		if st, err = buildStore(cfg); err != nil {
			return err
		}
		defer st.Close()
	}

	pipe, err := buildPipeline(cfg, reg, st, pusher, m)
	if err != nil {
		return err
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Mode:         cfg.Mode,
		TickMs:       cfg.TickInterval.Milliseconds(),
		MinPublishMs: cfg.Publish.MinInterval.Milliseconds(),
		MaxPublishMs: cfg.Publish.MaxInterval.Milliseconds(),
		StaleMs:      cfg.Publish.TimeToStale.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.Web.Addr,
	})
	pipe.SetTracker(tracker)

	handler := &sutureslog.Handler{Logger: slog.New(logging.NewSlogHandler())}
	sup := suture.New("sensor-relay", suture.Spec{
		EventHook: handler.MustHook(),
	})
	sup.Add(pipe)

	if cfg.Web.Enabled {
		sup.Add(&webService{
			srv:  web.New(cfg.Web.Addr, tracker, promReg),
			addr: cfg.Web.Addr,
			log:  logging.Component("web"),
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("mode", cfg.Mode).
		Str("broker", cfg.MQTT.Broker).
		Int("channels", reg.Len()).
		Msg("starting")

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shut down")
	return nil
}

// buildPipeline wires the mode-specific delivery core.
func buildPipeline(cfg *config.Config, reg *channel.Registry, st store.Store, pusher transport.Pusher, m *metrics.Metrics) (*pipeline.Pipeline, error) {
	pcfg := pipeline.Config{TickInterval: cfg.TickInterval}

	if cfg.Mode == "polling" {
		sched := scheduler.New(reg, pusher, scheduler.Config{
			MinInterval:      cfg.Publish.MinInterval,
			MaxInterval:      cfg.Publish.MaxInterval,
			TimeToStale:      cfg.Publish.TimeToStale,
			MaxRecordEntries: cfg.Publish.MaxRecordEntries,
		}, m, logging.Component("scheduler"))
		return pipeline.NewPolling(reg, sched, pusher, pcfg, logging.Component("pipeline")), nil
	}

	for _, ch := range reg.All() {
		dropped := m.SamplesDropped.WithLabelValues(ch.Name)
		if err := st.Observe(ch.StorePath, store.Observation{
			Depth:    cfg.Store.Depth,
			ChangeBy: changeBy(cfg, ch.Name),
			OnDrop:   dropped.Inc,
		}); err != nil {
			return nil, fmt.Errorf("observe %s: %w", ch.StorePath, err)
		}
	}

	machine := delivery.NewMachine(reg, st, pusher, m, logging.Component("delivery"))
	smp := sampler.New(reg, st, m, logging.Component("sampler"))
	return pipeline.NewBuffered(reg, st, smp, machine, pusher, pcfg, logging.Component("pipeline"))
}

func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == "badger" {
		return store.NewBadger(cfg.Store.Path, logging.Component("store"))
	}
	return store.NewMemory(logging.Component("store")), nil
}

// changeBy returns the store-level scalar filter for a channel; vector and
// position channels are unfiltered at the store.
func changeBy(cfg *config.Config, name string) float64 {
	switch name {
	case "light":
		return cfg.Sensors.Light.ChangeBy
	case "pressure":
		return cfg.Sensors.Pressure.ChangeBy
	case "temperature":
		return cfg.Sensors.Temperature.ChangeBy
	}
	return 0
}

func buildRegistry(cfg *config.Config) *channel.Registry {
	var channels []*channel.Channel

	if sc := cfg.Sensors.Light; sc.Enabled {
		channels = append(channels, &channel.Channel{
			Name:       "light",
			RecordPath: "Sensors.Light.Level",
			StorePath:  "/obs/light",
			Read:       sensor.ScalarFile(sc.Path, sc.Scale),
			Threshold:  channel.ScalarDelta(sc.Threshold),
		})
	}
	if sc := cfg.Sensors.Pressure; sc.Enabled {
		channels = append(channels, &channel.Channel{
			Name:       "pressure",
			RecordPath: "Sensors.Pressure.Pressure",
			StorePath:  "/obs/pressure",
			Read:       sensor.ScalarFile(sc.Path, sc.Scale),
			Threshold:  channel.ScalarDelta(sc.Threshold),
		})
	}
	if sc := cfg.Sensors.Temperature; sc.Enabled {
		channels = append(channels, &channel.Channel{
			Name:       "temperature",
			RecordPath: "Sensors.Pressure.Temperature",
			StorePath:  "/obs/temperature",
			Read:       sensor.ScalarFile(sc.Path, sc.Scale),
			Threshold:  channel.ScalarDelta(sc.Threshold),
		})
	}
	if sc := cfg.Sensors.Accel; sc.Enabled {
		channels = append(channels, &channel.Channel{
			Name:       "accel",
			RecordPath: "Sensors.Accel.Accel",
			StorePath:  "/obs/accel",
			Read:       sensor.IMUAccel(sc.Path),
			Threshold:  channel.VectorMagnitude(sc.Threshold),
		})
	}
	if sc := cfg.Sensors.Gyro; sc.Enabled {
		channels = append(channels, &channel.Channel{
			Name:       "gyro",
			RecordPath: "Sensors.Gyro.Gyro",
			StorePath:  "/obs/gyro",
			Read:       sensor.IMUGyro(sc.Path),
			Threshold:  channel.VectorMagnitude(sc.Threshold),
		})
	}
	if sc := cfg.Sensors.Position; sc.Enabled {
		channels = append(channels, &channel.Channel{
			Name:       "position",
			RecordPath: "Sensors.Gps",
			StorePath:  "/obs/position",
			Read:       sensor.PositionFile(sc.Path),
			Threshold:  channel.Always(),
		})
	}
	return channel.NewRegistry(channels...)
}

func logOutput(name string) *os.File {
	if name == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}

// webService adapts the HTTP server to suture's Service interface.
type webService struct {
	srv  *web.Server
	addr string
	log  zerolog.Logger
}

func (w *webService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- w.srv.ListenAndServe() }()
	w.log.Info().Str("addr", w.addr).Msg("http status server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
