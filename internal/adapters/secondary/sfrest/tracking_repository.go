package sfrest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
	"github.com/docgen/docgen-sub000/internal/core/service/envelope"
)

const trackingObjectType = "DocumentGenerationRequest__c"

var trackingBaseFields = []string{
	"Status__c", "RequestHash__c", "RequestEnvelopeJson__c", "Attempts__c",
	"LockedUntil__c", "ScheduledRetryTime__c", "Priority__c", "TemplateId__c",
	"CompositeDocumentId__c", "OutputFileId__c", "MergedDocxFileId__c",
	"ErrorMessage__c", "CorrelationId__c", "CreatedDate",
}

// TrackingRepository implements port.TrackingRepository against the C2
// REST client. lookupFields is the configured set of per-object-type
// lookup column names (SupportedObjectConfig.LookupFieldName) included
// in every SELECT; their non-empty values populate TrackingRecord.Lookups.
//
// Grounded on the teacher's internal_job_repository polling query, with
// §4.11's exact WHERE/ORDER BY/LIMIT clause substituted in and the
// teacher's single-statement UPDATE generalized to the claim/requeue/
// mark-terminal trio the worker's three outcomes need.
type TrackingRepository struct {
	store        port.RecordStore
	lookupFields []string
	selectSOQL   string
}

func NewTrackingRepository(store port.RecordStore, lookupFields []string) *TrackingRepository {
	fields := append(append([]string(nil), trackingBaseFields...), lookupFields...)
	selectSOQL := fmt.Sprintf(
		"SELECT Id, %s FROM %s "+
			"WHERE Status__c = 'QUEUED' "+
			"AND (LockedUntil__c = null OR LockedUntil__c < :now) "+
			"AND (ScheduledRetryTime__c = null OR ScheduledRetryTime__c <= :now) "+
			"ORDER BY Priority__c DESC NULLS LAST, CreatedDate ASC "+
			"LIMIT :limit",
		strings.Join(fields, ", "), trackingObjectType,
	)
	return &TrackingRepository{store: store, lookupFields: lookupFields, selectSOQL: selectSOQL}
}

// FetchQueuedBatch implements §4.11 step 1's exact predicate and ordering.
func (r *TrackingRepository) FetchQueuedBatch(ctx context.Context, batchSize int) ([]entity.TrackingRecord, error) {
	binds := map[string]string{
		"now":   formatTimeBind(time.Now()),
		"limit": formatIntBind(batchSize),
	}
	rows, err := r.store.Query(ctx, r.selectSOQL, binds)
	if err != nil {
		return nil, err
	}

	out := make([]entity.TrackingRecord, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.AsObject()
		if !ok {
			continue
		}
		out = append(out, r.recordFromObject(obj))
	}
	return out, nil
}

func (r *TrackingRepository) recordFromObject(obj map[string]entity.Value) entity.TrackingRecord {
	lookups := make(map[string]string, len(r.lookupFields))
	for _, f := range r.lookupFields {
		if v := fieldString(obj, f); v != "" {
			lookups[f] = v
		}
	}
	return entity.TrackingRecord{
		ID:                  fieldString(obj, "Id"),
		Status:              entity.TrackingStatus(fieldString(obj, "Status__c")),
		RequestHash:         fieldString(obj, "RequestHash__c"),
		RequestEnvelopeJSON: fieldString(obj, "RequestEnvelopeJson__c"),
		Attempts:            fieldInt(obj, "Attempts__c"),
		LockedUntil:         fieldTimePtr(obj, "LockedUntil__c"),
		ScheduledRetryTime:  fieldTimePtr(obj, "ScheduledRetryTime__c"),
		Priority:            fieldInt(obj, "Priority__c"),
		TemplateID:          fieldString(obj, "TemplateId__c"),
		CompositeDocumentID: fieldString(obj, "CompositeDocumentId__c"),
		OutputFileID:        fieldString(obj, "OutputFileId__c"),
		MergedDocxFileID:    fieldString(obj, "MergedDocxFileId__c"),
		ErrorMessage:        fieldString(obj, "ErrorMessage__c"),
		CorrelationID:       fieldString(obj, "CorrelationId__c"),
		CreatedAt:           fieldTime(obj, "CreatedDate"),
		Lookups:             lookups,
	}
}

// Claim performs the conditional patch {status=PROCESSING,
// lockedUntil=lockedUntil}. The record store this client speaks to has
// no native conditional-PATCH/CAS primitive (no ETag/If-Match support on
// the sobjects PATCH endpoint), so this is a best-effort
// read-verify-patch-verify sequence rather than a true atomic
// compare-and-swap: two replicas racing on the same row can both pass the
// pre-check and both issue the PATCH, with the later write winning
// silently. A real deployment would close this gap with a declarative
// validation rule rejecting any PATCH that doesn't observe
// Status__c='QUEUED', which is out of scope for this client. The window
// is narrow (two HTTP round trips) and a lost race here only costs a
// duplicate generation of the same row. The idempotency guard is not
// consulted on the worker path, so it does not bound this race.
func (r *TrackingRepository) Claim(ctx context.Context, id string, lockedUntil time.Time) error {
	cur, err := r.store.ReadRecord(ctx, trackingObjectType, id, []string{"Status__c", "LockedUntil__c"})
	if err != nil {
		return err
	}
	obj, ok := cur.AsObject()
	if !ok {
		return errkind.New(errkind.RecordStoreConflict, "tracking record vanished before claim: "+id)
	}
	if entity.TrackingStatus(fieldString(obj, "Status__c")) != entity.StatusQueued {
		return errkind.New(errkind.RecordStoreConflict, "row no longer QUEUED: "+id)
	}
	if locked := fieldTimePtr(obj, "LockedUntil__c"); locked != nil && locked.After(time.Now()) {
		return errkind.New(errkind.RecordStoreConflict, "row locked by another replica: "+id)
	}

	if err := r.store.PatchRecord(ctx, trackingObjectType, id, map[string]any{
		"Status__c":      string(entity.StatusProcessing),
		"LockedUntil__c": lockedUntil.UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	after, err := r.store.ReadRecord(ctx, trackingObjectType, id, []string{"Status__c", "LockedUntil__c"})
	if err != nil {
		return err
	}
	afterObj, ok := after.AsObject()
	if !ok || fieldTimePtr(afterObj, "LockedUntil__c") == nil {
		return errkind.New(errkind.RecordStoreConflict, "claim readback mismatch: "+id)
	}
	return nil
}

// Requeue implements §4.11 step 4's retryable-failure transition.
func (r *TrackingRepository) Requeue(ctx context.Context, id string, attempts int, scheduledRetryTime time.Time, errorMessage string) error {
	return r.store.PatchRecord(ctx, trackingObjectType, id, map[string]any{
		"Status__c":             string(entity.StatusQueued),
		"Attempts__c":           attempts,
		"LockedUntil__c":        nil,
		"ScheduledRetryTime__c": scheduledRetryTime.UTC().Format(time.RFC3339),
		"ErrorMessage__c":       errorMessage,
	})
}

// MarkTerminal implements §4.11 step 4's non-retryable/exhausted-retry
// transition; lockedUntil is cleared per the TrackingRecord invariant
// that terminal states carry no lock.
func (r *TrackingRepository) MarkTerminal(ctx context.Context, id string, errorMessage string) error {
	return r.store.PatchRecord(ctx, trackingObjectType, id, map[string]any{
		"Status__c":       string(entity.StatusFailed),
		"LockedUntil__c":  nil,
		"ErrorMessage__c": errorMessage,
	})
}

// DecodeEnvelope rebuilds the in-memory Envelope the pipeline consumes
// from the row's stored RequestEnvelopeJson__c column, restoring the
// fields that live on the tracking row itself rather than in the wire
// payload (see envelope.EncodeJSON's doc comment).
func (r *TrackingRepository) DecodeEnvelope(ctx context.Context, rec entity.TrackingRecord) (*entity.Envelope, error) {
	env, err := envelope.DecodeJSON(rec.RequestEnvelopeJSON)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "decode stored request envelope")
	}
	env.CorrelationID = rec.CorrelationID
	env.TrackingRecordID = rec.ID
	env.RequestHash = rec.RequestHash
	return env, nil
}

var _ port.TrackingRepository = (*TrackingRepository)(nil)
