package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/internal/flightlog"
	"github.com/signalsfoundry/flighttask-auto/internal/logging"
	"github.com/signalsfoundry/flighttask-auto/internal/observability"
	"github.com/signalsfoundry/flighttask-auto/timectrl"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON task config (defaults when empty)")
	missionPath := flag.String("mission", "configs/mission.json", "path to a JSON mission")
	duration := flag.Duration("duration", 120*time.Second, "total simulation duration (0 runs until interrupted)")
	tick := flag.Duration("tick", 50*time.Millisecond, "control cycle period")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	tripletTimeout := flag.Duration("triplet-timeout", time.Second, "deactivate the task when the triplet is older than this")
	flightLogPath := flag.String("flight-log", "", "SQLite file to record every cycle to (empty disables)")
	feedCutoff := flag.Duration("feed-cutoff", 0, "stop the navigator feed after this much simulated time (0 = never)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	cfg := core.DefaultConfig()
	if *configPath != "" {
		if cfg, err = core.LoadConfig(*configPath); err != nil {
			log.Error(ctx, "failed to load task config", logging.String("path", *configPath), logging.Err(err))
			os.Exit(1)
		}
	}

	mission, err := LoadMissionFile(*missionPath)
	if err != nil {
		log.Error(ctx, "failed to load mission", logging.String("path", *missionPath), logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewTaskCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	start := time.Now().UTC()

	var flight *flightlog.Run
	if *flightLogPath != "" {
		db, err := flightlog.Open(*flightLogPath)
		if err != nil {
			log.Error(ctx, "failed to open flight log", logging.String("path", *flightLogPath), logging.Err(err))
			os.Exit(1)
		}
		defer db.Close()
		if flight, err = db.StartRun(ctx, mission.Name, start, cfg); err != nil {
			log.Error(ctx, "failed to start flight log run", logging.Err(err))
			os.Exit(1)
		}
		log = log.With(logging.String("run_id", flight.ID()))
		defer func() {
			if err := flight.Close(context.Background()); err != nil {
				log.Warn(context.Background(), "flight log flush failed", logging.Err(err))
			}
		}()
	}

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(start, *tick, mode)

	sim := newSimulation(simulationParams{
		Log:            log,
		Config:         cfg,
		Mission:        mission,
		Metrics:        collector,
		FlightLog:      flight,
		Start:          start,
		Tick:           *tick,
		TripletTimeout: *tripletTimeout,
		FeedCutoff:     *feedCutoff,
	})
	tc.AddListener(func(cycle uint64, now time.Time) {
		sim.step(ctx, cycle, now)
	})

	log.Info(ctx, "starting simulation",
		logging.String("mission", mission.Name),
		logging.Int("waypoints", len(mission.Waypoints)),
		logging.String("duration", duration.String()),
		logging.String("tick", tick.String()),
		logging.Bool("accelerated", *accelerated),
	)
	if err := tc.Run(ctx, *duration); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "simulation stopped", logging.Err(err))
	}

	log.Info(context.Background(), "simulation finished",
		logging.Uint64("cycles", tc.Cycle()),
		logging.Bool("mission_complete", sim.complete),
		logging.Int("leg", sim.feed.Leg()),
	)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, collector *observability.TaskCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
