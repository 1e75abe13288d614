package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

func editedRows(rows []*codec.DisplayRow, name string) []*codec.DisplayRow {
	out := make([]*codec.DisplayRow, 0, len(rows))
	for _, r := range rows {
		edited := r.Clone()
		edited.Set("name", name)
		out = append(out, edited)
	}
	return out
}

func TestUpdateRowsOutcomeIsolation(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	h.selectTable(t, "census")
	h.srv.SetOutcomes(func(row domain.UploadRow) domain.RowOutcome {
		switch row.ID {
		case "B":
			return domain.OutcomeInConflict
		case "C":
			return domain.OutcomeFailed
		}
		return domain.OutcomeSuccess
	})

	before := h.m.Rows.Get()
	beforeB, err := before[1].MarshalJSON()
	require.NoError(t, err)
	oldDataETag := h.m.ActiveTable.Get().DataETag

	result, err := h.m.UpdateRows(context.Background(), editedRows(before, "Zed"))
	require.NoError(t, err, "row level failures are data, not errors")

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, map[domain.RowOutcome]int{
		domain.OutcomeSuccess:    1,
		domain.OutcomeInConflict: 1,
		domain.OutcomeFailed:     1,
		domain.OutcomeDenied:     0,
		domain.OutcomeUnknown:    0,
	}, result.Counts())

	after := h.m.Rows.Get()
	require.Len(t, after, 3)
	assert.Equal(t, []string{"A", "B", "C"}, rowIDs(after))

	assert.Equal(t, "Zed", after[0].String("name"))
	assert.Equal(t, result.Outcomes[0].RowETag, after[0].String(codec.KeyRowETag))
	assert.NotEqual(t, before[0].String(codec.KeyRowETag), after[0].String(codec.KeyRowETag))
	assert.Equal(t, result.DataETag, after[0].String(codec.KeyDataETagAtModification))

	assert.Same(t, before[1], after[1])
	assert.Same(t, before[2], after[2])
	afterB, err := after[1].MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(beforeB), string(afterB))
	assert.Equal(t, "Bob", after[1].String("name"))

	assert.NotEqual(t, oldDataETag, result.DataETag)
	assert.Equal(t, result.DataETag, h.m.ActiveTable.Get().DataETag, "dataETag advances whatever the outcomes")
	for _, tbl := range h.m.Tables.Get() {
		if tbl.TableID == "census" {
			assert.Equal(t, result.DataETag, tbl.DataETag)
		}
	}
	assert.Empty(t, h.reported())
}

func TestUpdateRowsSendsFreshSchemaAndLastDataETag(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	h.selectTable(t, "census")
	dataETag := h.m.ActiveTable.Get().DataETag
	h.srv.ResetRequests()

	_, err := h.m.UpdateRows(context.Background(), editedRows(h.m.Rows.Get()[:1], "Ann"))
	require.NoError(t, err)

	reqs := h.srv.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodGet, reqs[0].Method, "the definition is fetched before the write")
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, transport.ProtocolVersion, reqs[1].Header.Get(transport.VersionHeader))

	stored := h.srv.Table("default", "census")
	assert.Equal(t, "Ann", stored.Rows[0].OrderedColumns[0].Value)
	assert.NotEqual(t, dataETag, stored.Meta.DataETag)

	// the cached copy is patched as well
	h.selectTable(t, "visits")
	h.selectTable(t, "census")
	assert.Equal(t, "Ann", h.m.Rows.Get()[0].String("name"))
	assert.Equal(t, stored.Meta.DataETag, h.m.ActiveTable.Get().DataETag)
	assert.Equal(t, 0, h.srv.Count(http.MethodGet, "/census/ref/uuid:s1/rows"), "served from the patched cache")
}

func TestUpdateRowsTransportFailureChangesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	h.selectTable(t, "census")

	before := h.m.Rows.Get()
	beforeTable := h.m.ActiveTable.Get()
	h.srv.FailNext(http.MethodPut, "/rows", 0, 1)

	result, err := h.m.UpdateRows(context.Background(), editedRows(before, "Zed"))
	assert.Nil(t, result)
	var te *transport.TransportError
	require.True(t, errors.As(err, &te))

	assert.Equal(t, before, h.m.Rows.Get())
	for i := range before {
		assert.Same(t, before[i], h.m.Rows.Get()[i])
	}
	assert.Same(t, beforeTable, h.m.ActiveTable.Get())
	assert.Equal(t, beforeTable.DataETag, h.m.ActiveTable.Get().DataETag)
	require.Len(t, h.reported(), 1)

	entry, err := h.m.GetTableMeta(context.Background(), beforeTable.Identity(), false)
	require.NoError(t, err)
	assert.Equal(t, beforeTable.DataETag, entry.DataETag)
	assert.Equal(t, "Ada", entry.DisplayRows[0].String("name"))
}

func TestUpdateRowsDeletionAndInsert(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	h.selectTable(t, "census")

	deleted := h.m.Rows.Get()[2].Clone()
	deleted.Set(codec.KeyDeleted, true)

	inserted := codec.NewDisplayRow()
	inserted.Set(codec.KeyID, "D")
	inserted.Set("name", "Dee")
	inserted.Set("age", "3")

	result, err := h.m.UpdateRows(context.Background(), []*codec.DisplayRow{deleted, inserted})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count(domain.OutcomeSuccess))
	assert.Equal(t, []string{"A", "B", "D"}, rowIDs(h.m.Rows.Get()))
}

func TestUpdateRowsWithoutActiveTable(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	_, err := h.m.UpdateRows(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoActiveTable)
}
