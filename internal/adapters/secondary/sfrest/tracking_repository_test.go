package sfrest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/service/envelope"
)

// recordingRecordStore wraps fakeRecordStore but returns a fixed row set
// from Query regardless of the resolved SOQL text, capturing the last
// call's text and binds for assertions on FetchQueuedBatch's shape.
type recordingRecordStore struct {
	*fakeRecordStore
	lastSOQL  string
	lastBinds map[string]string
	rows      []entity.Value
}

func (r *recordingRecordStore) Query(ctx context.Context, soql string, binds map[string]string) ([]entity.Value, error) {
	r.lastSOQL = soql
	r.lastBinds = binds
	return r.rows, nil
}

func newRecordingRecordStore() *recordingRecordStore {
	return &recordingRecordStore{fakeRecordStore: newFakeRecordStore()}
}

func TestTrackingRepository_FetchQueuedBatch(t *testing.T) {
	store := newRecordingRecordStore()
	store.rows = []entity.Value{
		entity.NewObject([]string{"Id", "Status__c", "Attempts__c", "AccountId__c"}, map[string]entity.Value{
			"Id":            entity.NewString("a0X1"),
			"Status__c":     entity.NewString("QUEUED"),
			"Attempts__c":   entity.NewNumber(0),
			"AccountId__c":  entity.NewString("001XXX"),
		}),
	}

	repo := NewTrackingRepository(store, []string{"AccountId__c"})
	rows, err := repo.FetchQueuedBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a0X1", rows[0].ID)
	assert.Equal(t, entity.StatusQueued, rows[0].Status)
	assert.Equal(t, "001XXX", rows[0].Lookups["AccountId__c"])

	assert.Contains(t, store.lastSOQL, "Status__c = 'QUEUED'")
	assert.Contains(t, store.lastSOQL, "ORDER BY Priority__c DESC NULLS LAST, CreatedDate ASC")
	assert.Contains(t, store.lastSOQL, "AccountId__c")
	assert.Equal(t, "10", store.lastBinds["limit"])
}

func TestTrackingRepository_Claim_Succeeds(t *testing.T) {
	store := newFakeRecordStore()
	store.put(trackingObjectType, "a0X1", map[string]entity.Value{
		"Status__c":      entity.NewString("QUEUED"),
		"LockedUntil__c": entity.Null(),
	})
	// PatchRecord on fakeRecordStore is a no-op that doesn't mutate
	// store.records, so make the readback in Claim see the patched value
	// by wiring a recording store whose ReadRecord always reflects the
	// most recent PatchRecord call.
	rec := &claimableStore{fakeRecordStore: store}

	repo := NewTrackingRepository(rec, nil)
	err := repo.Claim(context.Background(), "a0X1", time.Now().Add(5*time.Minute))
	require.NoError(t, err)
}

func TestTrackingRepository_Claim_ConflictWhenNotQueued(t *testing.T) {
	store := newFakeRecordStore()
	store.put(trackingObjectType, "a0X1", map[string]entity.Value{
		"Status__c":      entity.NewString("PROCESSING"),
		"LockedUntil__c": entity.Null(),
	})

	repo := NewTrackingRepository(store, nil)
	err := repo.Claim(context.Background(), "a0X1", time.Now().Add(5*time.Minute))
	require.Error(t, err)
	e, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.RecordStoreConflict, e.Kind)
}

// claimableStore makes PatchRecord mutate the underlying record so
// Claim's readback verification observes its own write.
type claimableStore struct {
	*fakeRecordStore
}

func (c *claimableStore) PatchRecord(ctx context.Context, objectType, id string, fields map[string]any) error {
	key := objectType + "/" + id
	rec, ok := c.records[key]
	if !ok {
		rec = map[string]entity.Value{}
	}
	for k, v := range fields {
		if v == nil {
			rec[k] = entity.Null()
			continue
		}
		if s, ok := v.(string); ok {
			rec[k] = entity.NewString(s)
		}
	}
	c.records[key] = rec
	return nil
}

func TestTrackingRepository_Requeue(t *testing.T) {
	store := newFakeRecordStore()
	repo := NewTrackingRepository(store, nil)
	err := repo.Requeue(context.Background(), "a0X1", 2, time.Now().Add(5*time.Minute), "conversion timed out")
	assert.NoError(t, err)
}

func TestTrackingRepository_MarkTerminal(t *testing.T) {
	store := newFakeRecordStore()
	repo := NewTrackingRepository(store, nil)
	err := repo.MarkTerminal(context.Background(), "a0X1", "validation failed")
	assert.NoError(t, err)
}

func TestTrackingRepository_DecodeEnvelope(t *testing.T) {
	store := newFakeRecordStore()
	repo := NewTrackingRepository(store, nil)

	env := &entity.Envelope{
		TemplateID:   "tmpl-1",
		Data:         entity.FromInterface(map[string]any{"Name": "Acme"}),
		OutputFormat: entity.OutputPDF,
	}
	wire, err := envelope.EncodeJSON(env)
	require.NoError(t, err)

	rec := entity.TrackingRecord{
		ID:                  "a0X1",
		RequestEnvelopeJSON: wire,
		CorrelationID:       "corr-1",
		RequestHash:         "hash-1",
	}
	decoded, err := repo.DecodeEnvelope(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "tmpl-1", decoded.TemplateID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "a0X1", decoded.TrackingRecordID)
	assert.Equal(t, "hash-1", decoded.RequestHash)
	name, ok := decoded.Data.Get("Name")
	require.True(t, ok)
	s, _ := name.AsString()
	assert.Equal(t, "Acme", s)
}

func TestTrackingRepository_SelectClauseIncludesLookupFields(t *testing.T) {
	store := newRecordingRecordStore()
	repo := NewTrackingRepository(store, []string{"AccountId__c", "ContactId__c"})
	_, _ = repo.FetchQueuedBatch(context.Background(), 5)
	assert.True(t, strings.Contains(store.lastSOQL, "AccountId__c, ContactId__c") ||
		strings.Contains(store.lastSOQL, "AccountId__c,ContactId__c"))
}
