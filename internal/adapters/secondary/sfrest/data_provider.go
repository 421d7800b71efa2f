package sfrest

import (
	"context"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

// DataProvider implements port.DataProvider for Template.DataSource ==
// SOQL: it binds the driving record id into the template's configured
// query and returns the first row. Named (Custom) providers are a
// separate concern the app wiring layer maps by ProviderClassName into
// its own port.DataProvider implementations — this one only ever speaks
// for the SOQL branch §4.10 names "the SOQL driver".
type DataProvider struct {
	store port.RecordStore
}

func NewDataProvider(store port.RecordStore) *DataProvider {
	return &DataProvider{store: store}
}

func (p *DataProvider) Execute(ctx context.Context, tmpl entity.Template, recordID string) (entity.Value, error) {
	if tmpl.DataSource != entity.DataSourceSOQL {
		return entity.Null(), errkind.New(errkind.TemplateInvalid, "sfrest data provider only serves DataSource=SOQL templates, got "+string(tmpl.DataSource))
	}
	if tmpl.Query == "" {
		return entity.Null(), errkind.New(errkind.TemplateInvalid, "template has no query configured: "+tmpl.ID)
	}

	rows, err := p.store.Query(ctx, tmpl.Query, map[string]string{"recordId": soqlQuote(recordID)})
	if err != nil {
		return entity.Null(), err
	}
	if len(rows) == 0 {
		return entity.Null(), nil
	}
	return rows[0], nil
}

var _ port.DataProvider = (*DataProvider)(nil)
