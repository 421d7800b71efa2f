// Package pipeline implements the C10 generation pipeline: it orchestrates
// the template cache (C3), record store (C2), merge engine (C4),
// concatenation engine (C5), conversion pool (C6), and file publisher
// (C7) into the full generate-convert-publish sequence for one envelope.
//
// Orchestration shape grounded on the teacher's internal_render_service.go
// (cache-check -> resolve -> cache-store sequencing, fallback-chain
// structure), generalized from single-template resolution to the three
// branches (single, composite OWN_TEMPLATE, composite
// CONCATENATE_TEMPLATES) §4.10 defines.
package pipeline

import (
	"context"
	"sort"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
	"github.com/docgen/docgen-sub000/internal/infra/telemetry"
)

// Result is the outcome of a successful Run.
type Result struct {
	PublishResult port.PublishResult
	MergedDocx    []byte // non-nil only when options.ReturnDocxToClient
}

// Pipeline is the C10 generation pipeline.
type Pipeline struct {
	store    port.RecordStore
	cache    port.TemplateCache
	templates port.TemplateRepository
	merge    port.MergeEngine
	concat   port.ConcatEngine
	convert  port.ConversionPool
	publish  port.FilePublisher
	clock    port.Clock

	conversionTimeoutMs int
	imageAllowlist      []string

	rec *telemetry.Recorder // nil-safe; set via SetRecorder
}

// SetRecorder wires the §4.13 instrument registry in. Left unset, every
// Recorder method is a no-op — tests and fixtures never need a fake.
func (p *Pipeline) SetRecorder(rec *telemetry.Recorder) {
	p.rec = rec
}

type Options struct {
	ConversionTimeoutMs int
	ImageAllowlist      []string
}

func New(
	store port.RecordStore,
	cache port.TemplateCache,
	templates port.TemplateRepository,
	merge port.MergeEngine,
	concat port.ConcatEngine,
	convert port.ConversionPool,
	publish port.FilePublisher,
	clock port.Clock,
	opts Options,
) *Pipeline {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Pipeline{
		store: store, cache: cache, templates: templates,
		merge: merge, concat: concat, convert: convert, publish: publish, clock: clock,
		conversionTimeoutMs: opts.ConversionTimeoutMs,
		imageAllowlist:      opts.ImageAllowlist,
	}
}

// Run executes the full pipeline for env. On failure it returns the error
// and leaves tracking untouched; the caller is responsible for persisting
// FAILED via PatchRecord (see §4.10).
func (p *Pipeline) Run(ctx context.Context, env *entity.Envelope, tracking *entity.TrackingRecord) (Result, error) {
	mergeOpts := port.MergeOptions{
		ImageAllowlist: p.imageAllowlist,
		Locale:         env.Locale,
		Timezone:       env.Timezone,
		CorrelationID:  env.CorrelationID,
	}

	merged, err := p.resolveMerged(ctx, env, mergeOpts)
	if err != nil {
		return Result{}, err
	}

	var pdfBytes []byte
	if env.OutputFormat == entity.OutputPDF {
		pdfBytes, err = p.convert.Convert(ctx, merged, port.ConversionOptions{
			TimeoutMs:     p.conversionTimeoutMs,
			CorrelationID: env.CorrelationID,
		})
		stats := p.convert.Stats()
		p.rec.ObservePoolGauges(ctx, stats.Active, stats.Queued)
		if err != nil {
			return Result{}, err
		}
	}

	var docxForPublish []byte
	if env.Options.StoreMergedDocx {
		docxForPublish = merged
	}

	publishPDF := pdfBytes
	if env.OutputFormat == entity.OutputDOCX {
		publishPDF = merged
	}

	result, err := p.publish.Publish(ctx, publishPDF, docxForPublish, env, tracking)
	if err != nil {
		return Result{}, err
	}

	out := Result{PublishResult: result}
	if env.Options.ReturnDocxToClient {
		out.MergedDocx = merged
	}
	return out, nil
}

// resolveMerged implements §4.10 steps 1-3.
func (p *Pipeline) resolveMerged(ctx context.Context, env *entity.Envelope, mergeOpts port.MergeOptions) ([]byte, error) {
	switch {
	case !env.IsComposite():
		bytes, err := p.fetchTemplateBytes(ctx, env.TemplateID)
		if err != nil {
			return nil, err
		}
		return p.merge.Merge(ctx, bytes, env.Data, mergeOpts)

	case len(env.Templates) == 0:
		// Composite OWN_TEMPLATE: TemplateID holds the master template.
		bytes, err := p.fetchTemplateBytes(ctx, env.TemplateID)
		if err != nil {
			return nil, err
		}
		return p.merge.Merge(ctx, bytes, env.Data, mergeOpts)

	default:
		// Composite CONCATENATE_TEMPLATES.
		refs := append([]entity.TemplateRef(nil), env.Templates...)
		sort.Slice(refs, func(i, j int) bool { return refs[i].Sequence < refs[j].Sequence })

		sections := make([]port.ConcatSection, 0, len(refs))
		for _, ref := range refs {
			bytes, err := p.fetchTemplateBytes(ctx, ref.TemplateID)
			if err != nil {
				return nil, err
			}
			nsData, ok := env.DataForNamespace(ref.Namespace)
			if !ok {
				nsData = entity.Null()
			}
			mergedSection, err := p.merge.Merge(ctx, bytes, nsData, mergeOpts)
			if err != nil {
				return nil, err
			}
			sections = append(sections, port.ConcatSection{Bytes: mergedSection, Sequence: ref.Sequence})
		}
		return p.concat.Concatenate(ctx, sections)
	}
}

// fetchTemplateBytes implements the cache.get-or-download-and-cache idiom.
func (p *Pipeline) fetchTemplateBytes(ctx context.Context, templateID string) ([]byte, error) {
	if bytes, ok := p.cache.Get(ctx, templateID); ok {
		p.rec.IncTemplateCacheHit(ctx)
		return bytes, nil
	}
	p.rec.IncTemplateCacheMiss(ctx)

	tmpl, err := p.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.TemplateBinaryID == "" {
		return nil, errkind.New(errkind.TemplateNotFound, "template has no binary: "+templateID)
	}

	bytes, err := p.store.DownloadBinary(ctx, tmpl.TemplateBinaryID)
	if err != nil {
		return nil, err
	}
	p.cache.Put(ctx, templateID, bytes)
	return bytes, nil
}
