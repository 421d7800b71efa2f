package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

type fakeStore struct {
	uploadCalls    int
	linkErrs       map[string]error
	patched        map[string]any
	patchedObject  string
	uploadErr      error
	createLinkErrs []string
}

func (f *fakeStore) Query(ctx context.Context, soql string, binds map[string]string) ([]entity.Value, error) {
	return nil, nil
}
func (f *fakeStore) ReadRecord(ctx context.Context, objectType, id string, fields []string) (entity.Value, error) {
	return entity.Null(), nil
}
func (f *fakeStore) WriteRecord(ctx context.Context, objectType, id string, fields map[string]any) error {
	return nil
}
func (f *fakeStore) DownloadBinary(ctx context.Context, contentVersionID string) ([]byte, error) {
	return nil, nil
}
func (f *fakeStore) UploadContentVersion(ctx context.Context, filename string, bytes []byte) (string, string, error) {
	f.uploadCalls++
	if f.uploadErr != nil {
		return "", "", f.uploadErr
	}
	return "cv-" + filename, "cd-" + filename, nil
}
func (f *fakeStore) CreateLink(ctx context.Context, contentDocumentID, parentID string) (string, error) {
	if err, ok := f.linkErrs[parentID]; ok {
		return "", err
	}
	return "link-" + parentID, nil
}
func (f *fakeStore) PatchRecord(ctx context.Context, objectType, id string, fields map[string]any) error {
	f.patchedObject = objectType
	f.patched = fields
	return nil
}

func (f *fakeStore) CreateRecord(ctx context.Context, objectType string, fields map[string]any) (string, error) {
	return "new-id", nil
}

func (f *fakeStore) DownloadURL(contentVersionID string) string {
	return "https://example.my.salesforce.com/" + contentVersionID
}

func strPtr(s string) *string { return &s }

func TestPublish_SuccessLinksAndPatches(t *testing.T) {
	store := &fakeStore{linkErrs: map[string]error{}}
	p := New(store, []entity.SupportedObjectConfig{
		{ObjectType: "Account", LookupFieldName: "AccountLookup__c", IsActive: true},
	})

	env := &entity.Envelope{
		Parents: map[string]*string{"Account": strPtr("001XXX")},
	}
	tracking := &entity.TrackingRecord{ID: "req-1"}

	result, err := p.Publish(context.Background(), []byte("pdf"), nil, env, tracking)
	require.NoError(t, err)
	assert.Equal(t, 1, result.LinkCount)
	assert.Empty(t, result.LinkErrors)
	assert.Equal(t, "SUCCEEDED", store.patched["Status__c"])
	assert.Equal(t, "001XXX", store.patched["AccountLookup__c"])
}

func TestPublish_UnsupportedObjectTypeSkipped(t *testing.T) {
	store := &fakeStore{linkErrs: map[string]error{}}
	p := New(store, nil) // no supported objects configured

	env := &entity.Envelope{Parents: map[string]*string{"Account": strPtr("001XXX")}}
	tracking := &entity.TrackingRecord{ID: "req-2"}

	result, err := p.Publish(context.Background(), []byte("pdf"), nil, env, tracking)
	require.NoError(t, err)
	assert.Equal(t, 0, result.LinkCount)
	assert.Empty(t, result.LinkErrors)
}

func TestPublish_AllLinksFailIsCompensatingFailure(t *testing.T) {
	store := &fakeStore{linkErrs: map[string]error{"001XXX": errors.New("link rejected")}}
	p := New(store, []entity.SupportedObjectConfig{
		{ObjectType: "Account", LookupFieldName: "AccountLookup__c", IsActive: true},
	})

	env := &entity.Envelope{Parents: map[string]*string{"Account": strPtr("001XXX")}}
	tracking := &entity.TrackingRecord{ID: "req-3"}

	result, err := p.Publish(context.Background(), []byte("pdf"), nil, env, tracking)
	require.NoError(t, err)
	assert.Equal(t, 0, result.LinkCount)
	assert.Len(t, result.LinkErrors, 1)
	assert.Equal(t, "FAILED", store.patched["Status__c"])
	assert.Contains(t, store.patched["ErrorMessage__c"].(string), "cv-req-3.pdf")
}

func TestPublish_PartialLinkFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{linkErrs: map[string]error{"003YYY": errors.New("link rejected")}}
	p := New(store, []entity.SupportedObjectConfig{
		{ObjectType: "Account", LookupFieldName: "AccountLookup__c", IsActive: true},
		{ObjectType: "Contact", LookupFieldName: "ContactLookup__c", IsActive: true},
	})

	env := &entity.Envelope{Parents: map[string]*string{
		"Account": strPtr("001XXX"),
		"Contact": strPtr("003YYY"),
	}}
	tracking := &entity.TrackingRecord{ID: "req-4"}

	result, err := p.Publish(context.Background(), []byte("pdf"), nil, env, tracking)
	require.NoError(t, err)
	assert.Equal(t, 1, result.LinkCount)
	assert.Len(t, result.LinkErrors, 1)
	assert.Equal(t, "SUCCEEDED", store.patched["Status__c"])
}

func TestPublish_DocxUploadedWhenProvided(t *testing.T) {
	store := &fakeStore{linkErrs: map[string]error{}}
	p := New(store, nil)

	env := &entity.Envelope{Parents: map[string]*string{}}
	tracking := &entity.TrackingRecord{ID: "req-5"}

	result, err := p.Publish(context.Background(), []byte("pdf"), []byte("docx"), env, tracking)
	require.NoError(t, err)
	assert.NotEmpty(t, result.DocxContentVersionID)
	assert.Equal(t, 2, store.uploadCalls)
	assert.Equal(t, result.DocxContentVersionID, store.patched["MergedDocxFileId__c"])
}
