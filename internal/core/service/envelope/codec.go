package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

// wireEnvelope is the JSON shape an Envelope round-trips through when
// persisted into a tracking record's RequestEnvelopeJSON column (§6's
// "truncated at ~131 KiB" field) — the worker's DecodeEnvelope reads it
// back on the batch path. entity.Value has no json.Marshaler of its own
// (MarshalCanonicalJSON is a distinct, deterministic-ordering encoding
// used only for hashing), so Data is carried through Value.Interface()
// and entity.FromInterface/UnmarshalJSONValue.
type wireEnvelope struct {
	TemplateID          string                  `json:"templateId"`
	CompositeDocumentID string                  `json:"compositeDocumentId"`
	Strategy            entity.CompositeStrategy `json:"strategy"`
	Templates           []entity.TemplateRef    `json:"templates"`
	Data                json.RawMessage         `json:"data"`
	Parents             map[string]*string      `json:"parents"`
	OutputFormat        entity.OutputFormat     `json:"outputFormat"`
	Options             entity.EnvelopeOptions  `json:"options"`
	Locale              string                  `json:"locale"`
	Timezone            string                  `json:"timezone"`
}

// EncodeJSON serializes env for storage in a tracking record's
// RequestEnvelopeJSON column. CorrelationID, TrackingRecordID, and
// RequestHash are not part of the wire shape: the tracking row already
// carries CorrelationID and RequestHash as its own columns, and
// TrackingRecordID is the row's own id.
func EncodeJSON(env *entity.Envelope) (string, error) {
	dataJSON, err := json.Marshal(env.Data.Interface())
	if err != nil {
		return "", fmt.Errorf("encode envelope data: %w", err)
	}
	wire := wireEnvelope{
		TemplateID:          env.TemplateID,
		CompositeDocumentID: env.CompositeDocumentID,
		Strategy:            env.Strategy,
		Templates:           env.Templates,
		Data:                dataJSON,
		Parents:             env.Parents,
		OutputFormat:        env.OutputFormat,
		Options:             env.Options,
		Locale:              env.Locale,
		Timezone:            env.Timezone,
	}
	out, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(out), nil
}

// DecodeJSON reconstructs an Envelope from its stored wire form. The
// caller (TrackingRepository.DecodeEnvelope) fills in CorrelationID,
// TrackingRecordID, and RequestHash from the owning tracking row.
func DecodeJSON(raw string) (*entity.Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	data, err := entity.UnmarshalJSONValue(wire.Data)
	if err != nil {
		return nil, fmt.Errorf("decode envelope data: %w", err)
	}
	return &entity.Envelope{
		TemplateID:          wire.TemplateID,
		CompositeDocumentID: wire.CompositeDocumentID,
		Strategy:            wire.Strategy,
		Templates:           wire.Templates,
		Data:                data,
		Parents:             wire.Parents,
		OutputFormat:        wire.OutputFormat,
		Options:             wire.Options,
		Locale:              wire.Locale,
		Timezone:            wire.Timezone,
	}, nil
}
