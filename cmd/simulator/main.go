package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ezzatron/fake-geolocation-demo/internal/config"
	"github.com/ezzatron/fake-geolocation-demo/internal/db"
	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
	"github.com/ezzatron/fake-geolocation-demo/internal/logging"
	"github.com/ezzatron/fake-geolocation-demo/internal/metrics"
	"github.com/ezzatron/fake-geolocation-demo/internal/player"
	"github.com/ezzatron/fake-geolocation-demo/internal/publisher"
	"github.com/ezzatron/fake-geolocation-demo/internal/route"
	"github.com/ezzatron/fake-geolocation-demo/internal/server"
)

func main() {
	exportPath := flag.String("export", "", "play the journey on a virtual clock, write every position as NDJSON to this file, and exit")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	j, err := loadJourney(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("load journey", zap.Error(err))
	}
	logger.Info("journey loaded",
		zap.String("journey_id", cfg.JourneyID),
		zap.String("format", string(cfg.RouteFormat)),
		zap.Int("positions", len(j.Positions())),
		zap.Int("chapters", len(j.Chapters())),
		zap.Duration("duration", time.Duration(j.Duration())*time.Millisecond),
	)

	if *exportPath != "" {
		n, err := exportFile(j, cfg.TickInterval, *exportPath)
		if err != nil {
			logger.Fatal("export", zap.Error(err))
		}
		logger.Info("export complete", zap.String("path", *exportPath), zap.Int("positions", n))
		return
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(metrics.JourneyInfo{
			Duration:  time.Duration(j.Duration()) * time.Millisecond,
			Positions: len(j.Positions()),
			Chapters:  len(j.Chapters()),
		}, cfg.TickInterval)
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(srv.Shutdown)
	}

	p := player.New(j, player.Options{
		TickDuration: cfg.TickInterval,
		Logger:       logger.Named("player"),
		Metrics:      playerMetrics(mcol),
	})
	defer p.Close()

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, publisher.Options{
			Prefix:      cfg.NATSSubjectPrefix,
			LogSubjects: cfg.LogNATSSubjects,
			Logger:      logger.Named("nats"),
			Metrics:     publisherMetrics(mcol),
		})
		if err != nil {
			logger.Fatal("nats error", zap.Error(err))
		}
		defer pub.Close()
		p.Subscribe(pub.Subscriber(cfg.JourneyID, j))
	}

	if cfg.Loop {
		p.Subscribe(loopAtEnd(p))
	}

	if cfg.HTTPAddr != "" {
		api := server.New(p, logger.Named("http"))
		defer api.Close()
		srv := api.Serve(cfg.HTTPAddr)
		defer shutdown(srv.Shutdown)
	}

	if cfg.Autoplay {
		p.Play()
	}

	// Block until context cancelled
	<-ctx.Done()
	logger.Info("shutting down")
}

func loadJourney(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*journey.Journey, error) {
	j, err := loadRoute(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return trim(j, cfg)
}

// trim cuts the configured lead-in and tail off j.
func trim(j *journey.Journey, cfg *config.Config) (*journey.Journey, error) {
	if cfg.TrimStart <= 0 && cfg.TrimEnd <= 0 {
		return j, nil
	}
	trimmed, err := j.Trim(cfg.TrimStart.Milliseconds(), cfg.TrimEnd.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("trim journey by %s and %s: %w", cfg.TrimStart, cfg.TrimEnd, err)
	}
	return trimmed, nil
}

func loadRoute(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*journey.Journey, error) {
	if cfg.RouteFormat != route.FormatGTFS {
		return route.Load(cfg.RouteFile, cfg.RouteFormat, route.Options{StartTime: cfg.RouteStartTime})
	}

	conn, name, err := db.Connect(ctx, cfg.DatabaseURL, cfg.City)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	logger.Info("using gtfs database", zap.String("db", name), zap.String("city", cfg.City))

	plan, err := db.NewStore(conn).LoadTripPlan(ctx, cfg.GTFSTripID, time.Now().In(cfg.Location))
	if err != nil {
		return nil, err
	}
	logger.Info("replaying gtfs trip",
		zap.String("trip_id", plan.Trip.TripID),
		zap.String("route_id", plan.Trip.RouteID),
		zap.Int("stops", len(plan.StopTimes)),
	)
	return route.FromGTFSTrip(plan)
}

// loopAtEnd restarts playback whenever a tick reaches the end of the journey.
func loopAtEnd(p *player.Player) player.Subscriber {
	end := float64(p.Journey().Duration())
	return func(ev player.Event) {
		if ev.Type == player.EventPosition && ev.OffsetTime >= end && !p.IsPaused() {
			p.Seek(0)
		}
	}
}

func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = fn(ctx)
}

// playerMetrics and publisherMetrics keep a nil collector a nil interface.
func playerMetrics(c *metrics.Collector) player.PlayerMetrics {
	if c == nil {
		return nil
	}
	return c
}

func publisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}
