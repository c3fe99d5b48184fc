package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/culinascan/internal/bus"
	"github.com/loqalabs/culinascan/internal/config"
	"github.com/loqalabs/culinascan/internal/mealplan"
	"github.com/loqalabs/culinascan/internal/narration"
	"github.com/loqalabs/culinascan/internal/natsserver"
	"github.com/loqalabs/culinascan/internal/playback"
	"github.com/loqalabs/culinascan/internal/vision"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	ctx            context.Context
	httpServer     *http.Server
	tracerClose    func(context.Context) error
	metricsHandler http.Handler
	ready          atomic.Bool
	wg             sync.WaitGroup

	nats         *natsserver.EmbeddedServer
	bus          *bus.Client
	analyzer     vision.Analyzer
	player       *playback.Controller
	session      *narration.Session
	spotlight    *narration.Spotlight
	narrationSvc *narration.Service
	mealPlan     *mealplan.Store

	analyses metric.Int64Counter
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		ctx:    context.Background(),
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.ctx = ctx

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	r.metricsHandler = metricsHandler

	if err := r.setup(ctx); err != nil {
		r.teardown()
		_ = shutdownTelemetry(context.Background())
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slogError(err))
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("vision", r.cfg.Vision.Mode),
		slog.String("speech", r.cfg.Speech.Mode),
		slog.String("sink", r.cfg.Playback.Sink))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	r.teardown()
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}

	return nil
}

// setup builds every component in dependency order: bus, model clients, playback,
// narration, meal plan.
func (r *Runtime) setup(ctx context.Context) error {
	if r.cfg.Bus.Enabled {
		ns, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "nats")))
		if err != nil {
			return err
		}
		r.nats = ns
		busCfg := r.cfg.Bus
		if ns != nil {
			busCfg.Servers = []string{ns.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return err
		}
		r.bus = client
	}

	client := newGeminiClient(r.cfg.Gemini)
	analyzer, err := newAnalyzer(r.cfg, client)
	if err != nil {
		return err
	}
	r.analyzer = analyzer

	synth, err := newSynthesizer(r.cfg, client)
	if err != nil {
		return err
	}
	sink, err := newSink(r.cfg.Playback, r.bus, r.logger.With(slog.String("component", "bus-sink")))
	if err != nil {
		return err
	}
	r.player = playback.NewController(sink, r.logger)
	r.session = narration.NewSession(synth, r.player, narration.Options{
		Voice:      r.cfg.Speech.Voice,
		SampleRate: r.cfg.Speech.SampleRate,
		Channels:   r.cfg.Speech.Channels,
		Timeout:    time.Duration(r.cfg.Speech.RequestTimeMS) * time.Millisecond,
	}, r.logger)

	var pub narration.Publisher
	if r.bus != nil {
		pub = r.bus
	}
	r.spotlight = narration.NewSpotlight(pub, r.logger)
	if r.bus != nil {
		r.narrationSvc = narration.NewService(ctx, r.bus, r.session, r.spotlight, r.logger)
		if err := r.narrationSvc.Start(); err != nil {
			return fmt.Errorf("start narration service: %w", err)
		}
	}

	store, err := mealplan.Open(ctx, r.cfg.MealPlan, r.logger)
	if err != nil {
		return err
	}
	r.mealPlan = store

	r.initMetrics()
	return nil
}

func (r *Runtime) teardown() {
	if r.narrationSvc != nil {
		r.narrationSvc.Close()
	}
	if r.session != nil {
		r.session.Stop()
	}
	if r.mealPlan != nil {
		if err := r.mealPlan.Close(); err != nil {
			r.logger.Error("meal plan close error", slogError(err))
		}
	}
	r.bus.Close()
	r.nats.Shutdown()
}

func (r *Runtime) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/culinascan/runtime")
	var err error
	if r.analyses, err = meter.Int64Counter("culinascan.analyses", metric.WithDescription("Ingredient analyses by outcome")); err != nil {
		r.logger.Warn("failed to initialize metrics", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
