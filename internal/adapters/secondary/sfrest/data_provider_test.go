package sfrest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

func TestDataProvider_Execute_SOQL(t *testing.T) {
	store := newFakeRecordStore()
	query := "SELECT Name, AccountId FROM Contact WHERE Id = '003YYY'"
	store.queries[query] = []entity.Value{
		entity.NewObject([]string{"Name", "AccountId"}, map[string]entity.Value{
			"Name":      entity.NewString("Jane Doe"),
			"AccountId": entity.NewString("001XXX"),
		}),
	}

	provider := NewDataProvider(store)
	tmpl := entity.Template{ID: "tmpl-1", DataSource: entity.DataSourceSOQL, Query: "SELECT Name, AccountId FROM Contact WHERE Id = ':recordId'"}

	data, err := provider.Execute(context.Background(), tmpl, "003YYY")
	require.NoError(t, err)
	name, ok := data.Get("Name")
	require.True(t, ok)
	s, _ := name.AsString()
	assert.Equal(t, "Jane Doe", s)
}

func TestDataProvider_Execute_NoRows(t *testing.T) {
	store := newFakeRecordStore()
	provider := NewDataProvider(store)
	tmpl := entity.Template{ID: "tmpl-1", DataSource: entity.DataSourceSOQL, Query: "SELECT Name FROM Contact WHERE Id = ':recordId'"}

	data, err := provider.Execute(context.Background(), tmpl, "003ZZZ")
	require.NoError(t, err)
	assert.True(t, data.IsNull())
}

func TestDataProvider_Execute_RejectsCustomDataSource(t *testing.T) {
	store := newFakeRecordStore()
	provider := NewDataProvider(store)
	tmpl := entity.Template{ID: "tmpl-1", DataSource: entity.DataSourceCustom, ProviderClassName: "AcmeCustomProvider"}

	_, err := provider.Execute(context.Background(), tmpl, "003YYY")
	assert.Error(t, err)
}
