package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/alarm"
	"github.com/roach88/cellrules/internal/compiler"
	"github.com/roach88/cellrules/internal/config"
	"github.com/roach88/cellrules/internal/engine"
	"github.com/roach88/cellrules/internal/metrics"
	"github.com/roach88/cellrules/internal/mqttbridge"
	"github.com/roach88/cellrules/internal/notify"
	"github.com/roach88/cellrules/internal/persist"
	"github.com/roach88/cellrules/internal/redisstore"
	"github.com/roach88/cellrules/internal/spawn"
	"github.com/roach88/cellrules/internal/store"
)

// notifyQueueSize bounds the pending notifications per recipient.
const notifyQueueSize = 64

// daemon is an engine with everything the run command attaches to it.
type daemon struct {
	engine  *engine.Engine
	metrics *metrics.Metrics
	log     *zap.Logger

	devices int
	alarms  int

	closers []func()
}

// dialMQTT is replaced in tests.
var dialMQTT = func(opts mqttbridge.Options) (mqttbridge.Client, func(), error) {
	c, err := mqttbridge.Dial(opts)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// openBackend returns the persistent storage backend selected by cfg and
// a function releasing it.
func openBackend(ctx context.Context, cfg config.StorageConfig) (persist.Backend, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return persist.NewMemoryBackend(), func() error { return nil }, nil
	case config.BackendSQLite:
		st, err := store.Open(cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.BackendRedis:
		rs, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newDaemon opens storage, connects to the broker when one is configured,
// and loads the definitions. Rules are not run yet.
func newDaemon(ctx context.Context, cfg *config.Config, log *zap.Logger) (*daemon, error) {
	d := &daemon{metrics: metrics.New(), log: log}

	backend, closeBackend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	d.closers = append(d.closers, func() {
		if err := closeBackend(); err != nil {
			log.Error("error closing storage", zap.Error(err))
		}
	})
	log.Info("storage ready", zap.String("backend", cfg.Storage.Backend))

	runner := spawn.NewExecRunner(log)
	d.engine = engine.New(
		engine.WithLogger(log),
		engine.WithBackend(backend),
		engine.WithRecorder(d.metrics),
		engine.WithRunner(runner),
	)

	// The bridge observes the store before devices are defined so their
	// cells get published.
	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Broker != "" {
		client, closeClient, err := dialMQTT(mqttbridge.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			d.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to broker", err)
		}
		d.closers = append(d.closers, closeClient)
		bridge = mqttbridge.New(d.engine, client, mqttbridge.WithLogger(log))
		log.Info("connected to broker", zap.String("broker", cfg.MQTT.Broker))
	}

	if err := d.load(cfg, runner); err != nil {
		d.Close()
		return nil, err
	}

	if bridge != nil {
		if err := bridge.Start(); err != nil {
			d.Close()
			return nil, WrapExitError(ExitCommandError, "failed to subscribe", err)
		}
	}
	return d, nil
}

func (d *daemon) load(cfg *config.Config, runner spawn.Runner) error {
	res, errs := compiler.LoadDir(cfg.Definitions, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return WrapExitError(ExitCommandError, "failed to compile definitions", errs[0])
	}

	for _, entry := range res.Devices {
		if err := d.engine.DefineDevice(entry.Def); err != nil {
			return WrapExitError(ExitCommandError, "failed to define device", err)
		}
		d.devices++
	}

	opts := notify.Options{
		Runner:        runner,
		Sendmail:      cfg.Notify.Sendmail,
		SMSCommand:    cfg.Notify.SMSCommand,
		TelegramURL:   cfg.Notify.TelegramURL,
		TelegramToken: cfg.Notify.TelegramToken,
		Log:           d.log,
	}
	loader := alarm.NewLoader(d.engine, alarm.WithLogger(d.log), alarm.WithRecorder(d.metrics))
	for _, g := range res.Alarms {
		group, err := g.Build(opts, func(n notify.Notifier) notify.Notifier {
			async := notify.NewAsync(n, g.Name, notifyQueueSize, d.log)
			d.closers = append(d.closers, async.Close)
			return async
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build recipients", err)
		}
		loaded, err := loader.Load(group)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load alarms", err)
		}
		d.alarms += len(loaded)
	}

	d.log.Info("definitions loaded",
		zap.String("dir", cfg.Definitions),
		zap.Int("devices", d.devices),
		zap.Int("alarms", d.alarms),
	)
	return nil
}

// serveMetrics serves the Prometheus handler on addr until ctx is done.
func (d *daemon) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	d.log.Info("serving metrics", zap.String("addr", addr))
}

// Close releases resources in reverse order of acquisition.
func (d *daemon) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
