package app

import (
	"context"
	"log/slog"

	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/controller"
	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/middleware"
	"github.com/docgen/docgen-sub000/internal/adapters/secondary/sfrest"
	"github.com/docgen/docgen-sub000/internal/core/port"
	"github.com/docgen/docgen-sub000/internal/core/service/concat"
	"github.com/docgen/docgen-sub000/internal/core/service/conversion"
	"github.com/docgen/docgen-sub000/internal/core/service/idempotency"
	"github.com/docgen/docgen-sub000/internal/core/service/merge"
	"github.com/docgen/docgen-sub000/internal/core/service/pipeline"
	"github.com/docgen/docgen-sub000/internal/core/service/publisher"
	"github.com/docgen/docgen-sub000/internal/core/service/templatecache"
	"github.com/docgen/docgen-sub000/internal/core/service/worker"
	"github.com/docgen/docgen-sub000/internal/infra/server"
	"github.com/docgen/docgen-sub000/internal/infra/telemetry"
)

// appComponents holds every initialized long-lived component Run needs
// after initialize returns: the HTTP server it starts, and the worker
// and telemetry providers its OnStart/OnShutdown hooks drive.
type appComponents struct {
	httpServer *server.HTTPServer
	worker     *worker.Worker
	telemetry  *telemetry.Providers
}

// initialize wires every C1-C13 component by hand, bottom-up: the
// outbound REST client first, then the record-store-backed repositories,
// then the core services that depend only on those, then the
// controllers and middleware that sit on top, finally the HTTP server.
// Grounded on the teacher's bootstrap/initializer.go's manual-DI shape.
func (e *Engine) initialize(ctx context.Context) (*appComponents, error) {
	cfg := e.config
	clock := port.SystemClock{}

	// --- Telemetry ---
	providers, err := telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}
	recorder := telemetry.NewRecorder()

	// --- Record store client + admin config ---
	sfClient := sfrest.New(cfg.Salesforce)

	supportedObjects, err := sfrest.FetchSupportedObjects(ctx, sfClient)
	if err != nil {
		return nil, err
	}
	lookupFields := make([]string, 0, len(supportedObjects))
	for _, obj := range supportedObjects {
		if obj.IsActive {
			lookupFields = append(lookupFields, obj.LookupFieldName)
		}
	}
	slog.InfoContext(ctx, "supported objects loaded", slog.Int("count", len(supportedObjects)))

	// --- Repositories ---
	// DataProvider is not wired here: /generate's wire envelope already
	// carries resolved data (see DESIGN.md's C8 wiring note), and the
	// worker's stored envelopes are decoded verbatim rather than rebuilt
	// through a provider. It stays a standalone unit exercised by its own
	// test suite and envelope.Assembler's.
	templateRepo := sfrest.NewTemplateRepository(sfClient)
	trackingRepo := sfrest.NewTrackingRepository(sfClient, lookupFields)

	// --- Core services ---
	cache := templatecache.New(cfg.TemplateCache.MaxBytes)
	mergeEngine := merge.New()
	concatEngine := concat.New()
	convertPool := conversion.New(conversion.Options{
		BinPath:       cfg.Conversion.BinPath,
		Workdir:       cfg.Conversion.Workdir,
		MaxConcurrent: cfg.Conversion.MaxConcurrent,
	})
	filePublisher := publisher.New(sfClient, supportedObjects)

	pipe := pipeline.New(
		sfClient, cache, templateRepo, mergeEngine, concatEngine, convertPool, filePublisher, clock,
		pipeline.Options{
			ConversionTimeoutMs: cfg.Conversion.TimeoutMs,
			ImageAllowlist:      cfg.Images.Allowlist(),
		},
	)
	pipe.SetRecorder(recorder)

	runner := pipeline.NewRunner(pipe)

	w := worker.New(trackingRepo, runner, clock, worker.Options{
		BatchSize:      cfg.Poller.BatchSize,
		ActiveInterval: cfg.Poller.ActiveInterval(),
		IdleInterval:   cfg.Poller.IdleInterval(),
		LockTTL:        cfg.Poller.LockTTL(),
		MaxAttempts:    cfg.Poller.MaxAttempts,
	})
	w.SetRecorder(recorder)

	guard := idempotency.New(sfClient, cfg.Idempotency.Window(), clock)

	// --- HTTP: middleware ---
	bearerAuth, jwks := middleware.BearerAuth(cfg)

	// --- HTTP: controllers ---
	generateCtrl := controller.NewGenerateController(pipe, guard, sfClient, supportedObjects, clock)
	generateCtrl.SetRecorder(recorder)
	workerCtrl := controller.NewWorkerController(w)
	secretsLoaded := cfg.Salesforce.PrivateKeyPEM != ""
	healthCtrl := controller.NewHealthController(jwks, sfClient, secretsLoaded, cfg.EffectiveBypass())

	httpServer := server.New(cfg, bearerAuth, generateCtrl, workerCtrl, healthCtrl)

	return &appComponents{
		httpServer: httpServer,
		worker:     w,
		telemetry:  providers,
	}, nil
}
