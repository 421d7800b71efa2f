package envelope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
)

type fakeRepo struct {
	templates  map[string]entity.Template
	composites map[string]entity.CompositeDocument
}

func (r *fakeRepo) GetTemplate(ctx context.Context, id string) (entity.Template, error) {
	t, ok := r.templates[id]
	if !ok {
		return entity.Template{}, errkind.New(errkind.TemplateNotFound, "not found: "+id)
	}
	return t, nil
}

func (r *fakeRepo) GetComposite(ctx context.Context, id string) (entity.CompositeDocument, error) {
	c, ok := r.composites[id]
	if !ok {
		return entity.CompositeDocument{}, errkind.New(errkind.TemplateNotFound, "not found: "+id)
	}
	return c, nil
}

type fakeProvider struct {
	byRecordID map[string]entity.Value
}

func (p *fakeProvider) Execute(ctx context.Context, tmpl entity.Template, recordID string) (entity.Value, error) {
	if v, ok := p.byRecordID[recordID]; ok {
		return v, nil
	}
	return entity.NewObject(nil, map[string]entity.Value{}), nil
}

func TestAssemble_SingleTemplateHarvestsForeignKeys(t *testing.T) {
	repo := &fakeRepo{templates: map[string]entity.Template{
		"tmpl-1": {ID: "tmpl-1", DataSource: entity.DataSourceSOQL, PrimaryParentType: "Opportunity"},
	}}
	provider := &fakeProvider{byRecordID: map[string]entity.Value{
		"006XXX": entity.FromInterface(map[string]any{
			"Name":      "Acme Deal",
			"AccountId": "001YYY",
		}),
	}}

	a := New(repo, provider, nil)
	env, err := a.Assemble(context.Background(), Request{
		TemplateID:      "tmpl-1",
		PrimaryRecordID: "006XXX",
		OutputFormat:    entity.OutputPDF,
	})
	require.NoError(t, err)
	require.NotNil(t, env.Parents["Opportunity"])
	assert.Equal(t, "006XXX", *env.Parents["Opportunity"])
	require.NotNil(t, env.Parents["Account"])
	assert.Equal(t, "001YYY", *env.Parents["Account"])
	assert.NotEmpty(t, env.RequestHash)
}

func TestAssemble_SameInputsProduceSameHash(t *testing.T) {
	repo := &fakeRepo{templates: map[string]entity.Template{
		"tmpl-1": {ID: "tmpl-1", DataSource: entity.DataSourceSOQL},
	}}
	provider := &fakeProvider{byRecordID: map[string]entity.Value{
		"006XXX": entity.FromInterface(map[string]any{"Name": "Acme Deal"}),
	}}

	a := New(repo, provider, nil)
	env1, err := a.Assemble(context.Background(), Request{TemplateID: "tmpl-1", PrimaryRecordID: "006XXX", OutputFormat: entity.OutputPDF})
	require.NoError(t, err)
	env2, err := a.Assemble(context.Background(), Request{TemplateID: "tmpl-1", PrimaryRecordID: "006XXX", OutputFormat: entity.OutputPDF})
	require.NoError(t, err)
	assert.Equal(t, env1.RequestHash, env2.RequestHash)
}

func TestAssemble_DifferentOutputFormatProducesDifferentHash(t *testing.T) {
	repo := &fakeRepo{templates: map[string]entity.Template{
		"tmpl-1": {ID: "tmpl-1", DataSource: entity.DataSourceSOQL},
	}}
	provider := &fakeProvider{byRecordID: map[string]entity.Value{
		"006XXX": entity.FromInterface(map[string]any{"Name": "Acme Deal"}),
	}}

	a := New(repo, provider, nil)
	pdfEnv, err := a.Assemble(context.Background(), Request{TemplateID: "tmpl-1", PrimaryRecordID: "006XXX", OutputFormat: entity.OutputPDF})
	require.NoError(t, err)
	docxEnv, err := a.Assemble(context.Background(), Request{TemplateID: "tmpl-1", PrimaryRecordID: "006XXX", OutputFormat: entity.OutputDOCX})
	require.NoError(t, err)
	assert.NotEqual(t, pdfEnv.RequestHash, docxEnv.RequestHash)
}

func TestAssemble_CompositeDuplicateNamespaceFails(t *testing.T) {
	repo := &fakeRepo{
		composites: map[string]entity.CompositeDocument{
			"comp-1": {
				ID:       "comp-1",
				IsActive: true,
				Strategy: entity.StrategyConcatenateTemplates,
				Slots: []entity.CompositeSlot{
					{Namespace: "cover", Sequence: 1, TemplateRef: "tmpl-a", IsActive: true},
					{Namespace: "cover", Sequence: 2, TemplateRef: "tmpl-b", IsActive: true},
				},
			},
		},
	}
	a := New(repo, &fakeProvider{}, nil)
	_, err := a.Assemble(context.Background(), Request{CompositeDocumentID: "comp-1"})
	require.Error(t, err)
	e, ok := err.(*errkind.Error)
	require.True(t, ok)
	assert.Equal(t, errkind.CompositeDuplicateNamespace, e.Kind)
}

func TestAssemble_CompositeInactiveFails(t *testing.T) {
	repo := &fakeRepo{composites: map[string]entity.CompositeDocument{
		"comp-2": {ID: "comp-2", IsActive: false},
	}}
	a := New(repo, &fakeProvider{}, nil)
	_, err := a.Assemble(context.Background(), Request{CompositeDocumentID: "comp-2"})
	require.Error(t, err)
	e, ok := err.(*errkind.Error)
	require.True(t, ok)
	assert.Equal(t, errkind.CompositeInactive, e.Kind)
}

func TestAssemble_CompositeGrowsPoolAcrossSlots(t *testing.T) {
	repo := &fakeRepo{
		templates: map[string]entity.Template{
			"tmpl-a": {ID: "tmpl-a", DataSource: entity.DataSourceSOQL, PrimaryParentType: "Opportunity"},
			"tmpl-b": {ID: "tmpl-b", DataSource: entity.DataSourceSOQL, PrimaryParentType: "Account"},
		},
		composites: map[string]entity.CompositeDocument{
			"comp-3": {
				ID:       "comp-3",
				IsActive: true,
				Strategy: entity.StrategyConcatenateTemplates,
				Slots: []entity.CompositeSlot{
					{Namespace: "cover", Sequence: 1, TemplateRef: "tmpl-a", IsActive: true},
					{Namespace: "detail", Sequence: 2, TemplateRef: "tmpl-b", IsActive: true},
				},
			},
		},
	}
	provider := &fakeProvider{byRecordID: map[string]entity.Value{
		"006XXX": entity.FromInterface(map[string]any{"AccountId": "001YYY"}),
	}}

	a := New(repo, provider, nil)
	env, err := a.Assemble(context.Background(), Request{
		CompositeDocumentID: "comp-3",
		RecordIDs:           map[string]string{"Opportunity": "006XXX"},
		OutputFormat:        entity.OutputPDF,
	})
	require.NoError(t, err)
	require.NotNil(t, env.Parents["Account"])
	assert.Equal(t, "001YYY", *env.Parents["Account"])
	obj, ok := env.Data.AsObject()
	require.True(t, ok)
	assert.Contains(t, obj, "cover")
	assert.Contains(t, obj, "detail")
}
