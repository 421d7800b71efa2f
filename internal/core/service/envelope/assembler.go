// Package envelope implements the C8 envelope assembler: it resolves a
// template or composite-document request into a fully populated
// entity.Envelope, including the shared variable pool used across
// composite slots and the deterministic idempotency hash.
//
// New component; the shared variable pool's "seed, then grow by
// harvesting" shape and the hash-then-combine idiom are built fresh
// against the data-tree and canonical-JSON primitives in the entity
// package, since no teacher file assembles a per-request envelope this
// way — the teacher's closest analogue (injector_context resolution) was
// deleted as out of scope; see DESIGN.md.
package envelope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

// standardForeignKeys is the closed set of well-known foreign-key field
// names harvested from returned data to grow the variable pool and seed
// envelope.Parents. Custom-object (__c) lookup fields are deliberately
// never guessed at — the set is fixed, matching the Open Question's
// explicit "do not guess" resolution.
var standardForeignKeys = []string{"AccountId", "ContactId", "OpportunityId", "CaseId"}

// foreignKeyToObjectType maps a harvested field name to the parent object
// type it identifies.
var foreignKeyToObjectType = map[string]string{
	"AccountId":     "Account",
	"ContactId":     "Contact",
	"OpportunityId": "Opportunity",
	"CaseId":        "Case",
}

// Request is the caller-supplied input to Assemble.
type Request struct {
	TemplateID          string
	CompositeDocumentID string
	PrimaryRecordID     string            // single-template path
	RecordIDs           map[string]string // composite path: objectType -> recordId, seeds the variable pool
	OutputFormat        entity.OutputFormat
	Options             entity.EnvelopeOptions
	Locale              string
	Timezone            string
	CorrelationID       string
}

// Assembler is the C8 envelope assembler.
type Assembler struct {
	templates port.TemplateRepository
	soql      port.DataProvider
	custom    map[string]port.DataProvider
}

func New(templates port.TemplateRepository, soqlProvider port.DataProvider, customProviders map[string]port.DataProvider) *Assembler {
	return &Assembler{templates: templates, soql: soqlProvider, custom: customProviders}
}

func (a *Assembler) providerFor(tmpl entity.Template) port.DataProvider {
	if tmpl.DataSource == entity.DataSourceCustom {
		return a.custom[tmpl.ProviderClassName]
	}
	return a.soql
}

// Assemble resolves req into a populated Envelope, including its
// deterministic idempotency hash (Envelope.RequestHash).
func (a *Assembler) Assemble(ctx context.Context, req Request) (*entity.Envelope, error) {
	if req.CompositeDocumentID != "" {
		return a.assembleComposite(ctx, req)
	}
	return a.assembleSingle(ctx, req)
}

func (a *Assembler) assembleSingle(ctx context.Context, req Request) (*entity.Envelope, error) {
	tmpl, err := a.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	provider := a.providerFor(tmpl)
	if provider == nil {
		return nil, errkind.New(errkind.TemplateInvalid, "no data provider for template "+req.TemplateID)
	}

	data, err := provider.Execute(ctx, tmpl, req.PrimaryRecordID)
	if err != nil {
		return nil, err
	}

	parents := map[string]*string{}
	if tmpl.PrimaryParentType != "" {
		id := req.PrimaryRecordID
		parents[tmpl.PrimaryParentType] = &id
	}
	harvestForeignKeys(data, parents)

	env := &entity.Envelope{
		TemplateID:    req.TemplateID,
		Data:          data,
		Parents:       parents,
		OutputFormat:  req.OutputFormat,
		Options:       req.Options,
		Locale:        req.Locale,
		Timezone:      req.Timezone,
		CorrelationID: req.CorrelationID,
	}
	env.RequestHash = ComputeHash(env)
	return env, nil
}

func (a *Assembler) assembleComposite(ctx context.Context, req Request) (*entity.Envelope, error) {
	comp, err := a.templates.GetComposite(ctx, req.CompositeDocumentID)
	if err != nil {
		return nil, err
	}
	if !comp.IsActive {
		return nil, errkind.New(errkind.CompositeInactive, "composite document is not active")
	}

	slots := comp.ActiveSlots()
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if seen[s.Namespace] {
			return nil, errkind.New(errkind.CompositeDuplicateNamespace, "duplicate namespace: "+s.Namespace)
		}
		seen[s.Namespace] = true
	}

	pool := make(map[string]string, len(req.RecordIDs))
	for k, v := range req.RecordIDs {
		pool[k] = v
	}

	namespaceKeys := make([]string, 0, len(slots))
	namespaceVals := make(map[string]entity.Value, len(slots))
	var templateRefs []entity.TemplateRef
	parents := map[string]*string{}

	for _, slot := range slots {
		tmpl, err := a.templates.GetTemplate(ctx, slot.TemplateRef)
		if err != nil {
			return nil, err
		}
		provider := a.providerFor(tmpl)
		if provider == nil {
			return nil, errkind.New(errkind.TemplateInvalid, "no data provider for template "+slot.TemplateRef)
		}

		drivingID := pool[tmpl.PrimaryParentType]
		data, err := provider.Execute(ctx, tmpl, drivingID)
		if err != nil {
			return nil, err
		}

		namespaceKeys = append(namespaceKeys, slot.Namespace)
		namespaceVals[slot.Namespace] = data
		templateRefs = append(templateRefs, entity.TemplateRef{
			TemplateID: slot.TemplateRef,
			Namespace:  slot.Namespace,
			Sequence:   slot.Sequence,
		})

		if tmpl.PrimaryParentType != "" && drivingID != "" {
			id := drivingID
			parents[tmpl.PrimaryParentType] = &id
		}
		growPool(pool, data)
	}

	envData := entity.NewObject(namespaceKeys, namespaceVals)

	env := &entity.Envelope{
		CompositeDocumentID: req.CompositeDocumentID,
		Strategy:            comp.Strategy,
		Data:                envData,
		Parents:             parents,
		OutputFormat:        req.OutputFormat,
		Options:             req.Options,
		Locale:              req.Locale,
		Timezone:            req.Timezone,
		CorrelationID:       req.CorrelationID,
	}
	if comp.Strategy == entity.StrategyOwnTemplate {
		env.TemplateID = comp.TemplateBinaryID
	} else {
		env.Templates = templateRefs
	}

	env.RequestHash = ComputeHash(env)
	return env, nil
}

// harvestForeignKeys scans data's top level for the standard foreign-key
// fields and adds any found to parents (only when not already present).
func harvestForeignKeys(data entity.Value, parents map[string]*string) {
	obj, ok := data.AsObject()
	if !ok {
		return
	}
	for _, fk := range standardForeignKeys {
		v, ok := obj[fk]
		if !ok {
			continue
		}
		s, ok := v.AsString()
		if !ok || s == "" {
			continue
		}
		objType := foreignKeyToObjectType[fk]
		if _, exists := parents[objType]; exists {
			continue
		}
		val := s
		parents[objType] = &val
	}
}

// growPool harvests the standard foreign-key fields from data into pool,
// keyed by the object type they identify, so later slots can pick them up
// as their driving record id.
func growPool(pool map[string]string, data entity.Value) {
	obj, ok := data.AsObject()
	if !ok {
		return
	}
	for _, fk := range standardForeignKeys {
		v, ok := obj[fk]
		if !ok {
			continue
		}
		s, ok := v.AsString()
		if !ok || s == "" {
			continue
		}
		objType := foreignKeyToObjectType[fk]
		if _, exists := pool[objType]; !exists {
			pool[objType] = s
		}
	}
}

// ComputeHash derives env's deterministic idempotency hash from its own
// fields, so both writers — the assembler (driven by a SOQL/custom
// provider) and the interactive HTTP surface (given an already-resolved
// data tree directly in the request body) — compute the same value for
// equivalent requests, per §4.8. This relies on env.Parents being keyed
// by object type (e.g. "Account") on both paths: the assembler keys it
// that way via foreignKeyToObjectType, and the interactive controller's
// wire contract requires the same shape directly (§6: "parents keys must
// be strings matching the configured object types") and validates it
// against the same object-type set. Neither writer keys Parents by raw
// lookup-field name (e.g. "AccountId").
func ComputeHash(env *entity.Envelope) string {
	if !env.IsComposite() {
		return hashSingle(env.TemplateID, env.OutputFormat, env.Data)
	}
	recordIDs := make(map[string]string, len(env.Parents))
	for objType, id := range env.Parents {
		if id != nil && *id != "" {
			recordIDs[objType] = *id
		}
	}
	return hashComposite(env.CompositeDocumentID, env.OutputFormat, recordIDs, env.Data)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hashSingle(templateID string, format entity.OutputFormat, data entity.Value) string {
	inner := sha256Hex(data.MarshalCanonicalJSON())
	return sha256Hex(templateID + "|" + string(format) + "|" + inner)
}

func hashComposite(compositeID string, format entity.OutputFormat, recordIDs map[string]string, data entity.Value) string {
	keys := make([]string, 0, len(recordIDs))
	for k := range recordIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(`"` + k + `":"` + recordIDs[k] + `"`)
	}
	sb.WriteByte('}')

	inner := sha256Hex(data.MarshalCanonicalJSON())
	return sha256Hex(compositeID + "|" + string(format) + "|" + sb.String() + "|" + inner)
}
