package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Annany2002/odkx-manager/internal/cache"
	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/domain"
)

// UpdateResult is the outcome of an alter-rows batch. Non-SUCCESS outcomes are data, not
// errors.
type UpdateResult struct {
	DataETag string
	Outcomes []domain.RowOutcomeEntry
}

func newUpdateResult(res *domain.AlterRowsResult) *UpdateResult {
	out := &UpdateResult{DataETag: res.DataETag, Outcomes: res.Rows}
	if out.Outcomes == nil {
		out.Outcomes = []domain.RowOutcomeEntry{}
	}
	return out
}

// Count returns how many rows ended with outcome.
func (r *UpdateResult) Count(outcome domain.RowOutcome) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome == outcome {
			n++
		}
	}
	return n
}

// Counts returns the number of rows per outcome, including zero counts.
func (r *UpdateResult) Counts() map[domain.RowOutcome]int {
	counts := make(map[domain.RowOutcome]int, len(domain.Outcomes))
	for _, o := range domain.Outcomes {
		counts[o] = 0
	}
	for _, o := range r.Outcomes {
		counts[o.Outcome]++
	}
	return counts
}

// UpdateRows submits edited display rows of the active table in one batch.
//
// The schema is fetched again so that the upload follows the current column list. Rows the
// server accepted are republished as submitted with their new _row_etag and
// _data_etag_at_modification; all other rows are left as they were. The active table's
// dataETag advances to the server's value whatever the row outcomes. When the request itself
// fails nothing is changed.
func (m *Manager) UpdateRows(ctx context.Context, rows []*codec.DisplayRow) (*UpdateResult, error) {
	table := m.ActiveTable.Get()
	if table == nil {
		return nil, m.report(ErrNoActiveTable)
	}
	appID := m.AppID.Get()
	identity := table.Identity()

	schema, err := m.api.Definition(ctx, appID, table.TableID, table.SchemaETag)
	if err != nil {
		return nil, m.report(err)
	}

	uploads := make([]domain.UploadRow, 0, len(rows))
	for _, r := range rows {
		uploads = append(uploads, codec.ToUploadRow(r, schema.OrderedColumns))
	}

	res, err := m.api.AlterRows(ctx, appID, table.TableID, table.SchemaETag, domain.RowList{
		Rows:     uploads,
		DataETag: table.DataETag,
	})
	if err != nil {
		return nil, m.report(err)
	}
	result := newUpdateResult(res)

	accepted := make(map[string]domain.RowOutcomeEntry)
	for _, o := range result.Outcomes {
		if o.Outcome == domain.OutcomeSuccess {
			accepted[o.ID] = o
		}
	}
	m.cache.PatchRows(identity, func(e *cache.Entry) {
		e.DataETag = result.DataETag
		e.DisplayRows = applyAccepted(e.DisplayRows, rows, accepted, result.DataETag)
		e.WireRows = nil
	})

	m.publish.Lock()
	defer m.publish.Unlock()
	if current := m.ActiveTable.Get(); current != nil && current.Identity() == identity {
		advanced := *current
		advanced.DataETag = result.DataETag
		m.ActiveTable.Set(&advanced)
		m.Rows.Set(applyAccepted(m.Rows.Get(), rows, accepted, result.DataETag))
		m.patchTableList(identity, result.DataETag)
	}

	m.log.WithFields(logrus.Fields{
		"table":       identity.TableID,
		"submitted":   len(rows),
		"success":     result.Count(domain.OutcomeSuccess),
		"in_conflict": result.Count(domain.OutcomeInConflict),
		"denied":      result.Count(domain.OutcomeDenied),
		"failed":      result.Count(domain.OutcomeFailed),
	}).Info("Session: rows updated")
	return result, nil
}

// applyAccepted returns a new row slice in which every accepted row is replaced by the
// submitted copy carrying the server's new etags. Accepted deletions are dropped and
// accepted rows that were not listed before are appended in submission order. Other rows
// are kept as they are.
func applyAccepted(current, submitted []*codec.DisplayRow, accepted map[string]domain.RowOutcomeEntry, dataETag string) []*codec.DisplayRow {
	byID := make(map[string]*codec.DisplayRow, len(submitted))
	for _, r := range submitted {
		byID[r.ID()] = r
	}

	out := make([]*codec.DisplayRow, 0, len(current))
	seen := make(map[string]bool, len(current))
	for _, row := range current {
		id := row.ID()
		seen[id] = true
		entry, ok := accepted[id]
		sub, wasSubmitted := byID[id]
		if !ok || !wasSubmitted {
			out = append(out, row)
			continue
		}
		if !codec.IsDeleted(sub) {
			out = append(out, patchRow(sub, entry, dataETag))
		}
	}
	for _, sub := range submitted {
		entry, ok := accepted[sub.ID()]
		if !ok || seen[sub.ID()] || codec.IsDeleted(sub) {
			continue
		}
		seen[sub.ID()] = true
		out = append(out, patchRow(sub, entry, dataETag))
	}
	return out
}

func patchRow(row *codec.DisplayRow, entry domain.RowOutcomeEntry, dataETag string) *codec.DisplayRow {
	patched := row.Clone()
	patched.Set(codec.KeyRowETag, entry.RowETag)
	modified := entry.DataETagAtModification
	if modified == "" {
		modified = dataETag
	}
	patched.Set(codec.KeyDataETagAtModification, modified)
	return patched
}

func (m *Manager) patchTableList(identity domain.TableIdentity, dataETag string) {
	tables := m.Tables.Get()
	patched := make([]domain.TableMeta, len(tables))
	copy(patched, tables)
	for i := range patched {
		if patched[i].Identity() == identity {
			patched[i].DataETag = dataETag
		}
	}
	m.Tables.Set(patched)
}
