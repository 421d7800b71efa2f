// Package publisher implements the C7 file publisher: it uploads a
// generated artifact to the record store, links it to its parent
// records, and patches the owning tracking record.
//
// New component; no direct teacher file does per-parent-link
// accumulation, so the "accumulate non-fatal errors, return a partial
// result" shape is built fresh following the general idiom seen across
// the teacher's fallback-chain resolution code (collect what fails,
// never abort a whole operation on one sub-step's failure).
package publisher

import (
	"context"
	"fmt"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

// Publisher is the C7 file publisher.
type Publisher struct {
	store  port.RecordStore
	lookup []entity.SupportedObjectConfig
}

// New constructs a Publisher. supportedObjects is the admin-configured
// object-type -> lookup-field mapping (§4's SupportedObjectConfig); only
// active entries participate in linking.
func New(store port.RecordStore, supportedObjects []entity.SupportedObjectConfig) *Publisher {
	return &Publisher{store: store, lookup: supportedObjects}
}

func (p *Publisher) lookupField(objectType string) (string, bool) {
	for _, c := range p.lookup {
		if c.IsActive && c.ObjectType == objectType {
			return c.LookupFieldName, true
		}
	}
	return "", false
}

// Publish uploads pdfBytes (and docxBytes when present), links the PDF to
// every eligible parent in env.Parents, and patches tracking to its
// terminal state.
func (p *Publisher) Publish(ctx context.Context, pdfBytes, docxBytes []byte, env *entity.Envelope, tracking *entity.TrackingRecord) (port.PublishResult, error) {
	filename := env.Options.OutputFileName
	if filename == "" {
		filename = tracking.ID + ".pdf"
	}

	pdfContentVersionID, pdfContentDocumentID, err := p.store.UploadContentVersion(ctx, filename, pdfBytes)
	if err != nil {
		return port.PublishResult{}, err
	}

	var docxContentVersionID string
	if docxBytes != nil {
		docxContentVersionID, _, err = p.store.UploadContentVersion(ctx, filename+".docx", docxBytes)
		if err != nil {
			return port.PublishResult{}, err
		}
	}

	var linkErrors []string
	linkCount := 0
	for objectType, recordID := range env.Parents {
		if recordID == nil || *recordID == "" {
			continue
		}
		if _, ok := p.lookupField(objectType); !ok {
			continue
		}
		if _, err := p.store.CreateLink(ctx, pdfContentDocumentID, *recordID); err != nil {
			linkErrors = append(linkErrors, fmt.Sprintf("%s/%s: %v", objectType, *recordID, err))
			continue
		}
		linkCount++
	}

	result := port.PublishResult{
		PDFContentVersionID:  pdfContentVersionID,
		DocxContentVersionID: docxContentVersionID,
		LinkCount:            linkCount,
		LinkErrors:           linkErrors,
	}

	if len(env.Parents) > 0 && linkCount == 0 && len(linkErrors) > 0 {
		patch := map[string]any{
			"Status__c":       string(entity.StatusFailed),
			"ErrorMessage__c": fmt.Sprintf("file uploaded (contentVersionId=%s) but every parent link failed: %v", pdfContentVersionID, linkErrors),
			"LockedUntil__c":  nil,
		}
		if err := p.store.PatchRecord(ctx, trackingObjectType(tracking), tracking.ID, patch); err != nil {
			return result, err
		}
		return result, nil
	}

	patch := map[string]any{
		"Status__c":       string(entity.StatusSucceeded),
		"OutputFileId__c": pdfContentVersionID,
		"ErrorMessage__c": nil,
		"LockedUntil__c":  nil,
	}
	if docxContentVersionID != "" {
		patch["MergedDocxFileId__c"] = docxContentVersionID
	}
	// The dynamic lookup column for each linked parent type is data, not
	// code: resolved once from the supported-object map and written as a
	// plain map key, never switched on in an if/else over object types.
	// The column stores the parent record's own id, not the artifact id —
	// that's what lets a later query join tracking rows back to the
	// record they were generated for.
	for objectType, recordID := range env.Parents {
		if recordID == nil || *recordID == "" {
			continue
		}
		if field, ok := p.lookupField(objectType); ok {
			patch[field] = *recordID
		}
	}

	if err := p.store.PatchRecord(ctx, trackingObjectType(tracking), tracking.ID, patch); err != nil {
		return result, err
	}
	return result, nil
}

// trackingObjectType is the record-store object name backing
// TrackingRecord. It is a fixed constant in this system, distinct from
// the objectType keys used for parent linking.
func trackingObjectType(_ *entity.TrackingRecord) string {
	return "DocumentGenerationRequest__c"
}

var _ port.FilePublisher = (*Publisher)(nil)
