package sfrest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

func TestFetchSupportedObjects(t *testing.T) {
	store := newFakeRecordStore()
	store.queries[supportedObjectsSOQL] = []entity.Value{
		entity.NewObject([]string{"ObjectType__c", "LookupFieldName__c", "IsActive__c", "DisplayOrder__c"}, map[string]entity.Value{
			"ObjectType__c":      entity.NewString("Account"),
			"LookupFieldName__c": entity.NewString("AccountLookup__c"),
			"IsActive__c":        entity.NewBool(true),
			"DisplayOrder__c":    entity.NewNumber(1),
		}),
		entity.NewObject([]string{"ObjectType__c", "LookupFieldName__c", "IsActive__c", "DisplayOrder__c"}, map[string]entity.Value{
			"ObjectType__c":      entity.NewString("Opportunity"),
			"LookupFieldName__c": entity.NewString("OpportunityLookup__c"),
			"IsActive__c":        entity.NewBool(false),
			"DisplayOrder__c":    entity.NewNumber(2),
		}),
	}

	got, err := FetchSupportedObjects(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Account", got[0].ObjectType)
	assert.Equal(t, "AccountLookup__c", got[0].LookupFieldName)
	assert.True(t, got[0].IsActive)
	assert.False(t, got[1].IsActive)
}
