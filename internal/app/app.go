package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/api"
	"stockwatch/internal/clock"
	"stockwatch/internal/config"
	"stockwatch/internal/eventbus"
	"stockwatch/internal/export"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notifier"
	"stockwatch/internal/reader"
	rtsup "stockwatch/internal/runtime/supervisor"
	"stockwatch/internal/storage"
	"stockwatch/internal/task/engine"
	"stockwatch/internal/task/scheduler"
	telegram "stockwatch/internal/transport/telegram/adapter"
	logx "stockwatch/pkg/logx"
)

// Options override values from the config file.
type Options struct {
	ConfigPath string
	// DBPath replaces storage.path when set.
	DBPath string
}

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *rtsup.Supervisor
	// dbPath is the storage.path override kept across reloads.
	dbPath string

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	clock *clock.Source

	engine  *engine.Service
	sched   *scheduler.Service
	monitor *monitor.Service
	api     *api.Server
	export  *export.NATSExporter
}

// New loads the config and wires every component. A storage failure is
// returned as an error wrapping storage.ErrStorage.
func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dbPath := strings.TrimSpace(opts.DBPath)
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	bus := eventbus.New()

	clkCfg, err := mapClockConfig(cfg)
	if err != nil {
		return nil, err
	}
	clk := clock.New(clkCfg, log)

	sc, err := mapStorageConfig(cfg, clk.Now)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	a := &App{
		cfgm:   cfgm,
		cfg:    cfg,
		dbPath: dbPath,
		log:    log.With(logx.String("comp", "app")),
		logs:   logSvc,
		bus:    bus,
		store:  store,
		clock:  clk,
	}
	if err := a.wire(cfg, log); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(cfg *config.Config, log logx.Logger) error {
	rdCfg, err := mapReaderConfig(cfg)
	if err != nil {
		return err
	}
	rd := reader.New(rdCfg, log)

	tgCfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return err
	}
	sender := telegram.New(tgCfg, log)
	notif := notifier.New(notifier.Config{}, a.store, sender, a.clock, a.bus, log)

	monCfg, err := mapMonitorConfig(cfg)
	if err != nil {
		return err
	}

	// One worker: scheduled and manual cycles never interleave.
	a.engine = engine.New(engine.Config{
		Enabled:     true,
		Workers:     1,
		QueueSize:   16,
		HistorySize: cfg.Monitor.HistorySize,
		// a cycle that fails before checking any item (busy database) gets one more try
		RetryMax:    1,
	}, log, a.bus)
	a.sched = scheduler.New(scheduler.Config{
		Enabled:  !cfg.Monitor.Paused,
		Timezone: cfg.Clock.Timezone,
	}, a.engine, log)

	runner := monitor.NewRunner(monCfg, a.store, rd, notif, a.clock, a.bus, log)
	a.monitor = monitor.NewService(monCfg, runner, a.sched, a.store, log)

	if !cfg.HTTP.Disabled {
		apiCfg, err := mapAPIConfig(cfg)
		if err != nil {
			return err
		}
		h := api.NewHandler(api.Deps{
			Store:             a.store,
			Monitor:           a.monitor,
			Reader:            rd,
			Notifier:          notif,
			Clock:             a.clock,
			Bus:               a.bus,
			Engine:            a.engine,
			Scheduler:         a.sched,
			Runtime:           a,
			HistoryLimit:      cfg.Monitor.HistorySize,
			NotificationLimit: 50,
		}, log)
		a.api = api.NewServer(apiCfg, h, log)
	}

	if url := strings.TrimSpace(cfg.Events.NATSURL); url != "" {
		exp, err := export.Dial(export.Config{URL: url, Subject: cfg.Events.Subject}, log)
		if err != nil {
			// Export is optional; the monitor runs without it.
			a.log.Warn("event export disabled", logx.Err(err))
		} else {
			a.export = exp
		}
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Counters reports the app supervisor's goroutines. Zero before Start.
func (a *App) Counters() rtsup.Counters { return a.sup.Counters() }

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.engine.Start(run)
	a.sched.Start(run)
	if err := a.monitor.Start(run); err != nil {
		return err
	}
	if a.api != nil {
		if err := a.api.Start(run); err != nil {
			return err
		}
	}

	if !a.cfg.Clock.Disabled {
		a.sup.Go("clock.sync", func(c context.Context) error {
			return a.clock.Run(c, 30*time.Minute)
		})
	}
	if a.export != nil {
		a.sup.Go("events.export", func(c context.Context) error {
			return a.export.Run(c, a.bus)
		})
	}

	// Log events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, rtsup.WithRestartBackoff(250*time.Millisecond, 5*time.Second))

	a.log.Info("app started",
		logx.Duration("interval", a.monitor.Interval()),
		logx.Bool("paused", a.cfg.Monitor.Paused),
		logx.Bool("api", a.api != nil),
		logx.Bool("export", a.export != nil),
	)
	return nil
}

// applyConfig applies the live parts of a reloaded config and reports the
// rest as restart-required.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	if a.dbPath != "" {
		next.Storage.Path = a.dbPath
	}
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLoggingConfig(next))

	if prev.Monitor.Paused != next.Monitor.Paused {
		a.sched.SetEnabled(ctx, !next.Monitor.Paused)
		a.log.Info("monitor schedule toggled via config", logx.Bool("paused", next.Monitor.Paused))
	}
	pending := config.RestartRequired(sections)
	pm, nm := prev.Monitor, next.Monitor
	pm.Paused, nm.Paused = false, false
	if pm != nm {
		pending = append(pending, "monitor")
	}
	if len(pending) > 0 {
		a.log.Warn("config changes take effect after restart", logx.String("sections", strings.Join(pending, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown step bounded by limit so one component can't
	// stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, max(time.Until(dl), 0))
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Triggers first, then the queue, then the surfaces that read state.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("api", 3*time.Second, func(c context.Context) error {
		if a.api != nil {
			a.api.Stop(c)
		}
		return nil
	})
	step("export", time.Second, func(context.Context) error { return a.export.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
