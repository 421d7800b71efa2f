package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/dto"
	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/middleware"
	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
	"github.com/docgen/docgen-sub000/internal/core/service/envelope"
	"github.com/docgen/docgen-sub000/internal/core/service/idempotency"
	"github.com/docgen/docgen-sub000/internal/core/service/pipeline"
	"github.com/docgen/docgen-sub000/internal/infra/telemetry"
)

const trackingObjectType = "DocumentGenerationRequest__c"

// GenerateController handles the interactive POST /generate request,
// grounded on the teacher's internal_render_controller.go shape (parse ->
// resolve -> use case -> respond) but generalized to §4.10/§4.12's
// idempotency-lookup-then-synchronous-run behavior, which has no teacher
// analogue.
type GenerateController struct {
	pipe             *pipeline.Pipeline
	guard            *idempotency.Guard
	store            port.RecordStore
	supportedObjects map[string]bool
	clock            port.Clock
	rec              *telemetry.Recorder // nil-safe; set via SetRecorder
}

func NewGenerateController(pipe *pipeline.Pipeline, guard *idempotency.Guard, store port.RecordStore, supportedObjects []entity.SupportedObjectConfig, clock port.Clock) *GenerateController {
	if clock == nil {
		clock = port.SystemClock{}
	}
	known := make(map[string]bool, len(supportedObjects))
	for _, o := range supportedObjects {
		if o.IsActive {
			known[o.ObjectType] = true
		}
	}
	return &GenerateController{pipe: pipe, guard: guard, store: store, supportedObjects: known, clock: clock}
}

// SetRecorder wires the §4.13 instrument registry in. Left unset, every
// Recorder method is a no-op.
func (c *GenerateController) SetRecorder(rec *telemetry.Recorder) {
	c.rec = rec
}

// RegisterRoutes registers the /generate route under the authenticated
// group.
func (c *GenerateController) RegisterRoutes(group gin.IRouter) {
	group.POST("/generate", c.Generate)
}

// Generate merges, converts, and publishes a document synchronously.
// @Summary Generate a document
// @Tags Generate
// @Accept json
// @Produce json
// @Param request body dto.GenerateRequest true "Generation envelope"
// @Success 200 {object} dto.GenerateResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /generate [post]
func (c *GenerateController) Generate(ctx *gin.Context) {
	correlationID := middleware.GetCorrelationID(ctx)

	var req dto.GenerateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		HandleError(ctx, errkind.Wrap(errkind.ValidationError, err, "malformed request body"))
		return
	}

	env, err := c.buildEnvelope(req, correlationID)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	requestCtx := ctx.Request.Context()

	if hit, found, err := c.guard.Lookup(requestCtx, env.RequestHash); err != nil {
		HandleError(ctx, err)
		return
	} else if found {
		c.rec.IncIdempotencyCacheHit(requestCtx)
		ctx.JSON(http.StatusOK, dto.GenerateResponse{
			DownloadURL:      c.store.DownloadURL(hit.OutputFileID),
			ContentVersionID: hit.OutputFileID,
			CorrelationID:    correlationID,
			CacheHit:         true,
		})
		return
	}

	tracking, err := c.claimTracking(requestCtx, req, env)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	start := c.clock.Now()
	result, err := c.pipe.Run(requestCtx, env, tracking)
	c.rec.RecordDuration(requestCtx, env.TemplateID, string(env.OutputFormat), "interactive", float64(c.clock.Now().Sub(start).Milliseconds()))
	if err != nil {
		c.markFailed(requestCtx, tracking, err)
		if kind, ok := errkind.As(err); ok {
			c.rec.IncFailure(requestCtx, string(kind.Kind), "interactive")
		} else {
			c.rec.IncFailure(requestCtx, string(errkind.Internal), "interactive")
		}
		HandleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.GenerateResponse{
		DownloadURL:      c.store.DownloadURL(result.PublishResult.PDFContentVersionID),
		ContentVersionID: result.PublishResult.PDFContentVersionID,
		CorrelationID:    correlationID,
		CacheHit:         false,
	})
}

// buildEnvelope validates req per §6's rules and builds the in-memory
// envelope directly from the already-resolved data tree the caller
// supplied — unlike the provider-driven envelope assembler (C8), the
// interactive request never needs a data provider since the caller has
// already executed one.
func (c *GenerateController) buildEnvelope(req dto.GenerateRequest, correlationID string) (*entity.Envelope, error) {
	hasTemplate := req.TemplateID != ""
	hasComposite := req.CompositeDocumentID != ""
	if hasTemplate == hasComposite {
		return nil, errkind.New(errkind.ValidationError, "exactly one of templateId or compositeDocumentId is required")
	}

	strategy := entity.CompositeStrategy(req.TemplateStrategy)
	if strategy == entity.StrategyOwnTemplate && req.TemplateID == "" {
		return nil, errkind.New(errkind.ValidationError, "templateStrategy=OWN_TEMPLATE requires templateId")
	}
	if strategy == entity.StrategyConcatenateTemplates && len(req.Templates) == 0 {
		return nil, errkind.New(errkind.ValidationError, "templateStrategy=CONCATENATE_TEMPLATES requires a non-empty templates[]")
	}

	// req.Parents is keyed by object type per §6 ("parents keys must be
	// strings matching the configured object types"), the same convention
	// the composite assembler's Parents map uses (see envelope.Assembler),
	// so ComputeHash sees identically-shaped recordIds on both paths.
	parents := make(map[string]*string, len(req.Parents))
	for objType, recordID := range req.Parents {
		if len(c.supportedObjects) > 0 && !c.supportedObjects[objType] {
			slog.Warn("generate: ignoring parent of unsupported object type", slog.String("object_type", objType))
			continue
		}
		parents[objType] = recordID
	}

	templates := make([]entity.TemplateRef, 0, len(req.Templates))
	for _, t := range req.Templates {
		templates = append(templates, entity.TemplateRef{TemplateID: t.TemplateID, Namespace: t.Namespace, Sequence: t.Sequence})
	}

	opts := entity.EnvelopeOptions{}
	if req.Options != nil {
		opts = entity.EnvelopeOptions{
			StoreMergedDocx:    req.Options.StoreMergedDocx,
			ReturnDocxToClient: req.Options.ReturnDocxToClient,
			OutputFileName:     req.Options.OutputFileName,
		}
	}

	env := &entity.Envelope{
		TemplateID:          req.TemplateID,
		CompositeDocumentID: req.CompositeDocumentID,
		Strategy:            strategy,
		Templates:           templates,
		Data:                entity.FromInterface(req.Data),
		Parents:             parents,
		OutputFormat:        entity.OutputFormat(req.OutputFormat),
		Options:             opts,
		Locale:              req.Locale,
		Timezone:            req.Timezone,
		CorrelationID:       correlationID,
		TrackingRecordID:    req.TrackingRecordID,
	}
	env.RequestHash = envelope.ComputeHash(env)
	return env, nil
}

// claimTracking returns the caller-supplied tracking row when
// trackingRecordId was given, otherwise creates a fresh PROCESSING row,
// per §4.12: "if miss, write a tracking record with status=PROCESSING."
func (c *GenerateController) claimTracking(ctx context.Context, req dto.GenerateRequest, env *entity.Envelope) (*entity.TrackingRecord, error) {
	if req.TrackingRecordID != "" {
		return &entity.TrackingRecord{
			ID:                  req.TrackingRecordID,
			Status:              entity.StatusProcessing,
			RequestHash:         env.RequestHash,
			TemplateID:          env.TemplateID,
			CompositeDocumentID: env.CompositeDocumentID,
			CorrelationID:       env.CorrelationID,
			CreatedAt:           c.clock.Now(),
		}, nil
	}

	fields := map[string]any{
		"Status__c":              string(entity.StatusProcessing),
		"RequestHash__c":         env.RequestHash,
		"TemplateId__c":          env.TemplateID,
		"CompositeDocumentId__c": env.CompositeDocumentID,
		"CorrelationId__c":       env.CorrelationID,
	}
	if wire, err := envelope.EncodeJSON(env); err != nil {
		slog.Warn("generate: failed to encode request envelope for storage", slog.String("error", err.Error()))
	} else {
		fields["RequestEnvelopeJson__c"] = entity.TruncateRequestJSON(wire)
	}
	id, err := c.store.CreateRecord(ctx, trackingObjectType, fields)
	if err != nil {
		return nil, err
	}
	return &entity.TrackingRecord{
		ID:                  id,
		Status:              entity.StatusProcessing,
		RequestHash:         env.RequestHash,
		TemplateID:          env.TemplateID,
		CompositeDocumentID: env.CompositeDocumentID,
		CorrelationID:       env.CorrelationID,
		CreatedAt:           c.clock.Now(),
	}, nil
}

// markFailed persists the pipeline failure per §4.10's "on any failure
// past step 1, the tracking record is updated with status=FAILED."
func (c *GenerateController) markFailed(ctx context.Context, tracking *entity.TrackingRecord, cause error) {
	if err := c.store.PatchRecord(ctx, trackingObjectType, tracking.ID, map[string]any{
		"Status__c":       string(entity.StatusFailed),
		"ErrorMessage__c": cause.Error(),
		"LockedUntil__c":  nil,
	}); err != nil {
		slog.Error("generate: failed to persist FAILED status", slog.String("tracking_id", tracking.ID), slog.String("error", err.Error()))
	}
}
