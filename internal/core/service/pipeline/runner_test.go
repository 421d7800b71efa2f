package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

func TestRunner_Run_DiscardsResultOnSuccess(t *testing.T) {
	store := &fakeStore{binaries: map[string][]byte{"bin-1": []byte("docx-bytes")}}
	repo := &fakeRepo{templates: map[string]entity.Template{
		"tmpl-1": {ID: "tmpl-1", TemplateBinaryID: "bin-1"},
	}}
	p := New(store, &fakeCache{}, repo, &fakeMerge{}, &fakeConcat{}, &fakeConvert{}, &fakePublish{}, nil, Options{ConversionTimeoutMs: 5000})
	runner := NewRunner(p)

	env := &entity.Envelope{TemplateID: "tmpl-1", OutputFormat: entity.OutputPDF, Data: entity.Null()}
	tracking := &entity.TrackingRecord{ID: "req-1"}

	err := runner.Run(context.Background(), env, tracking)
	require.NoError(t, err)
}

func TestRunner_Run_PropagatesFailure(t *testing.T) {
	repo := &fakeRepo{} // no templates registered -> a zero Template with no binary id, rejected as templateNotFound
	p := New(&fakeStore{}, &fakeCache{}, repo, &fakeMerge{}, &fakeConcat{}, &fakeConvert{}, &fakePublish{}, nil, Options{})
	runner := NewRunner(p)

	env := &entity.Envelope{TemplateID: "missing", OutputFormat: entity.OutputPDF, Data: entity.Null()}
	tracking := &entity.TrackingRecord{ID: "req-2"}

	err := runner.Run(context.Background(), env, tracking)
	assert.Error(t, err)
}
