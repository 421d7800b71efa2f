package sfrest

import (
	"context"
	"fmt"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

const (
	templateObjectType = "Template__c"
	compositeObjectType = "CompositeDocument__c"
	compositeSlotObjectType = "CompositeSlot__c"
)

var templateFields = []string{
	"DataSource__c", "Query__c", "ProviderClassName__c", "PrimaryParentType__c", "TemplateBinaryId__c",
}

var compositeFields = []string{
	"Strategy__c", "TemplateBinaryId__c", "IsActive__c", "PrimaryParentType__c",
	"StoreMergedDocx__c", "ReturnDocxToClient__c",
}

const compositeSlotSOQL = "SELECT Namespace__c, Sequence__c, TemplateRef__c, IsActive__c " +
	"FROM CompositeSlot__c WHERE CompositeDocumentId__c = ':id' ORDER BY Sequence__c ASC"

// TemplateRepository implements port.TemplateRepository against the C2
// REST client, resolving Template__c and CompositeDocument__c admin
// records plus the composite's child CompositeSlot__c rows.
//
// Grounded on the teacher's internal_object_repository read-then-map
// shape; generalized from a single hard-coded object type to the two
// admin record shapes §4.1/§4.10 define.
type TemplateRepository struct {
	store port.RecordStore
}

func NewTemplateRepository(store port.RecordStore) *TemplateRepository {
	return &TemplateRepository{store: store}
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (entity.Template, error) {
	v, err := r.store.ReadRecord(ctx, templateObjectType, id, templateFields)
	if err != nil {
		return entity.Template{}, err
	}
	obj, ok := v.AsObject()
	if !ok {
		return entity.Template{}, errkind.New(errkind.TemplateNotFound, "template not found: "+id)
	}
	return entity.Template{
		ID:                id,
		DataSource:        entity.DataSource(fieldString(obj, "DataSource__c")),
		Query:             fieldString(obj, "Query__c"),
		ProviderClassName: fieldString(obj, "ProviderClassName__c"),
		PrimaryParentType: fieldString(obj, "PrimaryParentType__c"),
		TemplateBinaryID:  fieldString(obj, "TemplateBinaryId__c"),
	}, nil
}

func (r *TemplateRepository) GetComposite(ctx context.Context, id string) (entity.CompositeDocument, error) {
	v, err := r.store.ReadRecord(ctx, compositeObjectType, id, compositeFields)
	if err != nil {
		return entity.CompositeDocument{}, err
	}
	obj, ok := v.AsObject()
	if !ok {
		return entity.CompositeDocument{}, errkind.New(errkind.TemplateNotFound, "composite document not found: "+id)
	}

	slots, err := r.getSlots(ctx, id)
	if err != nil {
		return entity.CompositeDocument{}, err
	}

	return entity.CompositeDocument{
		ID:                 id,
		Strategy:           entity.CompositeStrategy(fieldString(obj, "Strategy__c")),
		TemplateBinaryID:   fieldString(obj, "TemplateBinaryId__c"),
		IsActive:           fieldBool(obj, "IsActive__c"),
		PrimaryParentType:  fieldString(obj, "PrimaryParentType__c"),
		StoreMergedDocx:    fieldBool(obj, "StoreMergedDocx__c"),
		ReturnDocxToClient: fieldBool(obj, "ReturnDocxToClient__c"),
		Slots:              slots,
	}, nil
}

func (r *TemplateRepository) getSlots(ctx context.Context, compositeID string) ([]entity.CompositeSlot, error) {
	rows, err := r.store.Query(ctx, compositeSlotSOQL, map[string]string{"id": soqlQuote(compositeID)})
	if err != nil {
		return nil, fmt.Errorf("query composite slots: %w", err)
	}
	slots := make([]entity.CompositeSlot, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.AsObject()
		if !ok {
			continue
		}
		slots = append(slots, entity.CompositeSlot{
			Namespace:   fieldString(obj, "Namespace__c"),
			Sequence:    fieldInt(obj, "Sequence__c"),
			TemplateRef: fieldString(obj, "TemplateRef__c"),
			IsActive:    fieldBool(obj, "IsActive__c"),
		})
	}
	return slots, nil
}

var _ port.TemplateRepository = (*TemplateRepository)(nil)
