// Package idempotency implements the C9 idempotency guard: a lookup for
// a prior successful artifact sharing the caller's request hash within a
// configured time window.
//
// No dedicated teacher file does this; built fresh as a thin wrapper over
// the C2 REST client's Query operation.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

const lookupSOQL = "SELECT Id, Status__c, OutputFileId__c, MergedDocxFileId__c, CreatedDate " +
	"FROM DocumentGenerationRequest__c " +
	"WHERE RequestHash__c = ':hash' AND Status__c = 'SUCCEEDED' AND CreatedDate > :cutoff " +
	"ORDER BY CreatedDate DESC LIMIT 1"

// soqlQuote escapes a value destined for a quoted SOQL string literal, the
// same way sfrest's own soqlQuote does for its bound ids — Client.Query's
// substitution is a raw textual ReplaceAll with no quoting of its own.
func soqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

// Guard is the C9 idempotency guard.
type Guard struct {
	store  port.RecordStore
	window time.Duration
	clock  port.Clock
}

func New(store port.RecordStore, window time.Duration, clock port.Clock) *Guard {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Guard{store: store, window: window, clock: clock}
}

// Lookup returns the most recent SUCCEEDED tracking record sharing hash
// within the idempotency window, or (nil, false) if none exists.
//
// This path is only used on the interactive entry; the worker trusts that
// the row it picked up has already been deduplicated at insert time by
// the record store's uniqueness constraint on requestHash.
func (g *Guard) Lookup(ctx context.Context, hash string) (*entity.TrackingRecord, bool, error) {
	cutoff := g.clock.Now().Add(-g.window)
	binds := map[string]string{
		"hash":   soqlQuote(hash),
		"cutoff": cutoff.UTC().Format(time.RFC3339),
	}

	rows, err := g.store.Query(ctx, lookupSOQL, binds)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	row := rows[0]
	obj, ok := row.AsObject()
	if !ok {
		return nil, false, fmt.Errorf("idempotency lookup: unexpected row shape")
	}

	rec := &entity.TrackingRecord{RequestHash: hash, Status: entity.StatusSucceeded}
	if v, ok := obj["Id"]; ok {
		rec.ID, _ = v.AsString()
	}
	if v, ok := obj["OutputFileId__c"]; ok {
		rec.OutputFileID, _ = v.AsString()
	}
	if v, ok := obj["MergedDocxFileId__c"]; ok {
		rec.MergedDocxFileID, _ = v.AsString()
	}
	return rec, true, nil
}
