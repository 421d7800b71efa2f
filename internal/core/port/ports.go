// Package port declares the interfaces services and adapters are built
// against, following the teacher's ports-and-adapters layout
// (internal/core/port).
package port

import (
	"context"
	"time"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

// RecordStore is the C2 REST client contract: all access to the
// Salesforce-like record store goes through this interface so services
// depend on the contract, not the HTTP implementation.
type RecordStore interface {
	// Query retrieves records with a templated parameter bound to the
	// caller's record id.
	Query(ctx context.Context, soql string, binds map[string]string) ([]entity.Value, error)
	ReadRecord(ctx context.Context, objectType, id string, fields []string) (entity.Value, error)
	WriteRecord(ctx context.Context, objectType, id string, fields map[string]any) error
	DownloadBinary(ctx context.Context, contentVersionID string) ([]byte, error)
	UploadContentVersion(ctx context.Context, filename string, bytes []byte) (contentVersionID, contentDocumentID string, err error)
	CreateLink(ctx context.Context, contentDocumentID, parentID string) (linkID string, err error)
	PatchRecord(ctx context.Context, objectType, id string, fields map[string]any) error
	CreateRecord(ctx context.Context, objectType string, fields map[string]any) (id string, err error)
	// DownloadURL builds the record store's public download link for an
	// already-uploaded content version, for the /generate response.
	DownloadURL(contentVersionID string) string
}

// TemplateCache is the C3 contract: content-addressed, strict-LRU.
type TemplateCache interface {
	Get(ctx context.Context, id string) ([]byte, bool)
	Put(ctx context.Context, id string, bytes []byte)
	Stats() CacheStats
}

// CacheStats mirrors §4.3's exported statistics.
type CacheStats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	SizeBytes  int64
	EntryCount int64
}

// MergeOptions carries per-call context into the merge engine (C4).
type MergeOptions struct {
	ImageAllowlist []string
	Locale         string
	Timezone       string
	CorrelationID  string
}

// MergeEngine is the C4 contract.
type MergeEngine interface {
	Merge(ctx context.Context, templateBytes []byte, data entity.Value, opts MergeOptions) ([]byte, error)
}

// ConcatSection is one input to the C5 concatenation engine.
type ConcatSection struct {
	Bytes    []byte
	Sequence int
}

// ConcatEngine is the C5 contract.
type ConcatEngine interface {
	Concatenate(ctx context.Context, sections []ConcatSection) ([]byte, error)
}

// ConversionOptions carries per-call context into the conversion pool (C6).
type ConversionOptions struct {
	TimeoutMs     int
	CorrelationID string
}

// ConversionPool is the C6 contract.
type ConversionPool interface {
	Convert(ctx context.Context, docxBytes []byte, opts ConversionOptions) ([]byte, error)
	Stats() ConversionStats
}

// ConversionStats mirrors §4.6's exported statistics.
type ConversionStats struct {
	Active         int64
	Queued         int64
	TotalCompleted int64
	TotalFailed    int64
}

// PublishResult is C7's return contract.
type PublishResult struct {
	PDFContentVersionID  string
	DocxContentVersionID string
	LinkCount            int
	LinkErrors           []string
}

// FilePublisher is the C7 contract.
type FilePublisher interface {
	Publish(ctx context.Context, pdfBytes, docxBytes []byte, env *entity.Envelope, tracking *entity.TrackingRecord) (PublishResult, error)
}

// RecordStoreAuthChecker is implemented by the REST client so /readyz can
// probe outbound auth without importing the adapter package directly.
type RecordStoreAuthChecker interface {
	CheckAuth(ctx context.Context) error
}

// Clock abstracts time.Now so the poller and cache can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TemplateRepository resolves Template and CompositeDocument admin
// records. Backed by RecordStore.Query/ReadRecord in production; faked in
// tests.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, id string) (entity.Template, error)
	GetComposite(ctx context.Context, id string) (entity.CompositeDocument, error)
}

// DataProvider executes a template's configured data source (a SOQL
// query or a named custom provider) against a driving record id and
// returns the resulting data tree.
type DataProvider interface {
	Execute(ctx context.Context, tmpl entity.Template, recordID string) (entity.Value, error)
}

// TrackingRepository is the C11 worker's view of the tracking-record
// table: fetching claimable batches and the conditional claim patch that
// gives the record store's optimistic concurrency single-writer
// semantics.
type TrackingRepository interface {
	FetchQueuedBatch(ctx context.Context, batchSize int) ([]entity.TrackingRecord, error)
	// Claim attempts the conditional patch {status=PROCESSING,
	// lockedUntil=lockedUntil}. Returns errkind.RecordStoreConflict if
	// another replica already claimed the row.
	Claim(ctx context.Context, id string, lockedUntil time.Time) error
	// Requeue patches a failed-but-retryable row back to {status=QUEUED,
	// attempts, lockedUntil=null, scheduledRetryTime}.
	Requeue(ctx context.Context, id string, attempts int, scheduledRetryTime time.Time, errorMessage string) error
	// MarkTerminal patches a row to its final FAILED state.
	MarkTerminal(ctx context.Context, id string, errorMessage string) error
	DecodeEnvelope(ctx context.Context, rec entity.TrackingRecord) (*entity.Envelope, error)
}
