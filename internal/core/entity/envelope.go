package entity

// OutputFormat is the artifact format the pipeline produces.
type OutputFormat string

const (
	OutputPDF  OutputFormat = "PDF"
	OutputDOCX OutputFormat = "DOCX"
)

// TemplateRef is one entry of Envelope.Templates, used by the
// CONCATENATE_TEMPLATES strategy.
type TemplateRef struct {
	TemplateID string
	Namespace  string
	Sequence   int
}

// EnvelopeOptions carries the caller-controlled output options.
type EnvelopeOptions struct {
	StoreMergedDocx    bool
	ReturnDocxToClient bool
	OutputFileName     string
}

// Envelope is the in-memory request payload the generation pipeline (C10)
// consumes. Exactly one of TemplateID / CompositeDocumentID is set.
type Envelope struct {
	TemplateID          string
	CompositeDocumentID string
	Strategy            CompositeStrategy
	Templates           []TemplateRef // composite + CONCATENATE_TEMPLATES only

	// Data is either a flat tree (single-template path) or a namespaced
	// tree keyed by slot namespace (composite path).
	Data Value

	// Parents maps objectTypeId -> recordId (nil recordId is permitted
	// and simply contributes no link).
	Parents map[string]*string

	OutputFormat  OutputFormat
	Options       EnvelopeOptions
	Locale        string
	Timezone      string
	CorrelationID string

	// TrackingRecordID is set when the caller pre-created the tracking
	// row itself.
	TrackingRecordID string

	// RequestHash is the deterministic idempotency hash computed by the
	// envelope assembler (C8); see §4.8.
	RequestHash string
}

// IsComposite reports whether the envelope addresses a CompositeDocument
// rather than a single Template.
func (e Envelope) IsComposite() bool {
	return e.CompositeDocumentID != ""
}

// DataForNamespace resolves e.Data[namespace] for the composite path,
// returning (Null, false) if absent.
func (e Envelope) DataForNamespace(namespace string) (Value, bool) {
	obj, ok := e.Data.AsObject()
	if !ok {
		return Null(), false
	}
	v, ok := obj[namespace]
	return v, ok
}

// CacheEntry is a content-addressed, immutable template binary resident
// in the process-local template cache (C3).
type CacheEntry struct {
	ContentVersionID string
	Bytes            []byte
	SizeBytes        int64
	LastAccessTick   int64
}
