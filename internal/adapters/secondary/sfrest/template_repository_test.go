package sfrest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

type fakeRecordStore struct {
	records map[string]map[string]entity.Value // objectType/id -> fields
	queries map[string][]entity.Value           // soql (post-bind) -> rows
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		records: map[string]map[string]entity.Value{},
		queries: map[string][]entity.Value{},
	}
}

func (f *fakeRecordStore) put(objectType, id string, fields map[string]entity.Value) {
	f.records[objectType+"/"+id] = fields
}

func (f *fakeRecordStore) Query(ctx context.Context, soql string, binds map[string]string) ([]entity.Value, error) {
	for k, v := range binds {
		soql = replaceBind(soql, k, v)
	}
	return f.queries[soql], nil
}

func (f *fakeRecordStore) ReadRecord(ctx context.Context, objectType, id string, fields []string) (entity.Value, error) {
	rec, ok := f.records[objectType+"/"+id]
	if !ok {
		return entity.Null(), nil
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	return entity.NewObject(keys, rec), nil
}

func (f *fakeRecordStore) WriteRecord(ctx context.Context, objectType, id string, fields map[string]any) error {
	return nil
}
func (f *fakeRecordStore) DownloadBinary(ctx context.Context, contentVersionID string) ([]byte, error) {
	return nil, nil
}
func (f *fakeRecordStore) UploadContentVersion(ctx context.Context, filename string, bytes []byte) (string, string, error) {
	return "", "", nil
}
func (f *fakeRecordStore) CreateLink(ctx context.Context, contentDocumentID, parentID string) (string, error) {
	return "", nil
}
func (f *fakeRecordStore) PatchRecord(ctx context.Context, objectType, id string, fields map[string]any) error {
	return nil
}
func (f *fakeRecordStore) CreateRecord(ctx context.Context, objectType string, fields map[string]any) (string, error) {
	return "", nil
}
func (f *fakeRecordStore) DownloadURL(contentVersionID string) string { return "" }

func replaceBind(soql, key, val string) string {
	return strReplaceAll(soql, ":"+key, val)
}

func strReplaceAll(s, old, new string) string {
	out := ""
	for {
		i := indexOf(s, old)
		if i < 0 {
			return out + s
		}
		out += s[:i] + new
		s = s[i+len(old):]
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestTemplateRepository_GetTemplate(t *testing.T) {
	store := newFakeRecordStore()
	store.put(templateObjectType, "tmpl-1", map[string]entity.Value{
		"DataSource__c":        entity.NewString("SOQL"),
		"Query__c":             entity.NewString("SELECT Name FROM Account WHERE Id = :recordId"),
		"ProviderClassName__c": entity.NewString(""),
		"PrimaryParentType__c": entity.NewString("Account"),
		"TemplateBinaryId__c":  entity.NewString("068XXX"),
	})

	repo := NewTemplateRepository(store)
	tmpl, err := repo.GetTemplate(context.Background(), "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, entity.DataSourceSOQL, tmpl.DataSource)
	assert.Equal(t, "Account", tmpl.PrimaryParentType)
	assert.Equal(t, "068XXX", tmpl.TemplateBinaryID)
}

func TestTemplateRepository_GetComposite(t *testing.T) {
	store := newFakeRecordStore()
	store.put(compositeObjectType, "comp-1", map[string]entity.Value{
		"Strategy__c":            entity.NewString("CONCATENATE_TEMPLATES"),
		"TemplateBinaryId__c":    entity.NewString(""),
		"IsActive__c":            entity.NewBool(true),
		"PrimaryParentType__c":   entity.NewString("Opportunity"),
		"StoreMergedDocx__c":     entity.NewBool(false),
		"ReturnDocxToClient__c":  entity.NewBool(false),
	})
	slotSOQL := "SELECT Namespace__c, Sequence__c, TemplateRef__c, IsActive__c " +
		"FROM CompositeSlot__c WHERE CompositeDocumentId__c = 'comp-1' ORDER BY Sequence__c ASC"
	store.queries[slotSOQL] = []entity.Value{
		entity.NewObject([]string{"Namespace__c", "Sequence__c", "TemplateRef__c", "IsActive__c"}, map[string]entity.Value{
			"Namespace__c":   entity.NewString("cover"),
			"Sequence__c":    entity.NewNumber(1),
			"TemplateRef__c": entity.NewString("tmpl-cover"),
			"IsActive__c":    entity.NewBool(true),
		}),
	}

	repo := NewTemplateRepository(store)
	comp, err := repo.GetComposite(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.True(t, comp.IsActive)
	assert.Equal(t, entity.StrategyConcatenateTemplates, comp.Strategy)
	require.Len(t, comp.Slots, 1)
	assert.Equal(t, "cover", comp.Slots[0].Namespace)
	assert.Equal(t, "tmpl-cover", comp.Slots[0].TemplateRef)
}
