package entity

import "time"

// TrackingStatus is the lifecycle state of a TrackingRecord.
type TrackingStatus string

const (
	StatusQueued     TrackingStatus = "QUEUED"
	StatusProcessing TrackingStatus = "PROCESSING"
	StatusSucceeded  TrackingStatus = "SUCCEEDED"
	StatusFailed     TrackingStatus = "FAILED"
	StatusCanceled   TrackingStatus = "CANCELED"
)

// IsTerminal reports whether s is a terminal lifecycle state, in which
// case LockedUntil must be nil.
func (s TrackingStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// TrackingRecord is the per-request row owned by the record store.
// Exactly one of TemplateID or CompositeDocumentID is set.
type TrackingRecord struct {
	ID                  string
	Status              TrackingStatus
	RequestHash         string
	RequestEnvelopeJSON string // may be truncated for display, see TruncateRequestJSON
	Attempts            int
	LockedUntil         *time.Time
	ScheduledRetryTime  *time.Time
	Priority            int
	TemplateID          string
	CompositeDocumentID string
	OutputFileID        string
	MergedDocxFileID    string
	ErrorMessage        string
	CorrelationID       string
	CreatedAt           time.Time

	// Lookups holds one entry per configured object type, e.g.
	// Lookups["AccountId"] = "001XXXXXXXXXXXXXXX". Field names are data,
	// resolved from SupportedObjectConfig — never switched on in code.
	Lookups map[string]string
}

// requestJSONTruncateLimit mirrors the record store's column limit noted
// in spec §6 ("truncated at ~131 KiB").
const requestJSONTruncateLimit = 131 * 1024

// TruncateRequestJSON truncates raw to the record store's display limit,
// appending a marker when truncation occurred.
func TruncateRequestJSON(raw string) string {
	if len(raw) <= requestJSONTruncateLimit {
		return raw
	}
	return raw[:requestJSONTruncateLimit] + "...[TRUNCATED]"
}

// Template is an immutable binary keyed by an opaque record-store token.
type Template struct {
	ID                string
	DataSource        DataSource
	Query             string
	ProviderClassName string
	PrimaryParentType string
	TemplateBinaryID  string
}

// DataSource selects how a Template resolves its data tree.
type DataSource string

const (
	DataSourceSOQL   DataSource = "SOQL"
	DataSourceCustom DataSource = "Custom"
)

// CompositeStrategy selects how a CompositeDocument's slots are combined.
type CompositeStrategy string

const (
	StrategyOwnTemplate          CompositeStrategy = "OWN_TEMPLATE"
	StrategyConcatenateTemplates CompositeStrategy = "CONCATENATE_TEMPLATES"
)

// CompositeDocument is an admin-configured multi-source assembly.
type CompositeDocument struct {
	ID                 string
	Strategy           CompositeStrategy
	TemplateBinaryID   string // required iff Strategy == StrategyOwnTemplate
	IsActive           bool
	PrimaryParentType  string
	StoreMergedDocx    bool
	ReturnDocxToClient bool
	Slots              []CompositeSlot // ordered by Sequence ascending
}

// ActiveSlots returns the slots with IsActive=true, in Sequence order.
// The caller is responsible for having sorted Slots by Sequence first.
func (c CompositeDocument) ActiveSlots() []CompositeSlot {
	out := make([]CompositeSlot, 0, len(c.Slots))
	for _, s := range c.Slots {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// CompositeSlot is one (template, namespace, sequence) entry of a
// CompositeDocument's template list.
type CompositeSlot struct {
	Namespace   string
	Sequence    int
	TemplateRef string // template ID this slot merges against
	IsActive    bool
}

// SupportedObjectConfig maps an object type to the lookup field name used
// when linking an artifact to a parent record of that type.
type SupportedObjectConfig struct {
	ObjectType      string
	LookupFieldName string
	IsActive        bool
	DisplayOrder    int
}
