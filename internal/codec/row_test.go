package codec

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/odkx-manager/internal/domain"
)

func sampleWireRow() domain.WireRow {
	return domain.WireRow{
		UploadRow: domain.UploadRow{
			ID:                 "uuid:row-1",
			RowETag:            domain.StringPtr("uuid:etag-1"),
			FormID:             domain.StringPtr("census"),
			Locale:             domain.StringPtr("en"),
			SavepointType:      domain.StringPtr("COMPLETE"),
			SavepointTimestamp: domain.StringPtr("2024-03-01T10:00:00.000000000"),
			SavepointCreator:   domain.StringPtr("mailto:a@example.org"),
			FilterScope: domain.FilterScope{
				DefaultAccess:   domain.StringPtr("FULL"),
				RowOwner:        domain.StringPtr("mailto:a@example.org"),
				GroupReadOnly:   domain.StringPtr("FALSE"),
				GroupModify:     domain.StringPtr("GROUP_DATA_COLLECTORS"),
				GroupPrivileged: nil,
			},
			// deliberately not in schema order
			OrderedColumns: []domain.ColumnValue{
				{Column: "name", Value: "Ada"},
				{Column: "age", Value: "36"},
				{Column: "village", Value: nil},
			},
		},
		CreateUser:             domain.StringPtr("mailto:a@example.org"),
		LastUpdateUser:         domain.StringPtr("mailto:b@example.org"),
		DataETagAtModification: domain.StringPtr("uuid:data-7"),
		SelfURI:                domain.StringPtr("https://odk.example.org/rows/1"),
	}
}

func schemaColumns(keys ...string) []domain.SchemaColumn {
	cols := make([]domain.SchemaColumn, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, domain.SchemaColumn{ElementKey: k, ElementName: k, ElementType: "string", ListChildElementKeys: "[]"})
	}
	return cols
}

func TestToDisplayRowOrdering(t *testing.T) {
	row := ToDisplayRow(sampleWireRow())

	want := append(append(append([]string{}, FrontMetadataKeys...), "name", "age", "village"), BackMetadataKeys...)
	assert.Equal(t, want, row.Keys())
	assert.Equal(t, 17, row.Len())

	for _, k := range row.Keys() {
		if strings.HasPrefix(k, "_") {
			assert.True(t, IsMetadataKey(k), "unexpected metadata key %s", k)
		}
	}

	assert.Equal(t, "uuid:row-1", row.ID())
	assert.Equal(t, "uuid:etag-1", row.String(KeyRowETag))
	assert.Equal(t, "uuid:data-7", row.String(KeyDataETagAtModification))
	assert.Equal(t, false, mustGet(t, row, KeyDeleted))
	assert.Nil(t, mustGet(t, row, KeyGroupPrivileged))
	assert.Nil(t, mustGet(t, row, "village"))

	_, hasCreateUser := row.Get("_create_user")
	assert.False(t, hasCreateUser, "server-only fields are not displayed")
}

func TestToDisplayRowMarshalsInOrder(t *testing.T) {
	encoded, err := json.Marshal(ToDisplayRow(sampleWireRow()))
	require.NoError(t, err)

	s := string(encoded)
	assert.True(t, strings.HasPrefix(s, `{"_id":"uuid:row-1","_form_id":"census"`))
	assert.Less(t, strings.Index(s, `"_data_etag_at_modification"`), strings.Index(s, `"name"`))
	assert.Less(t, strings.Index(s, `"village"`), strings.Index(s, `"_default_access"`))
	assert.True(t, strings.HasSuffix(s, `"_row_owner":"mailto:a@example.org"}`))

	var decoded DisplayRow
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, ToDisplayRow(sampleWireRow()).Keys(), decoded.Keys())
	assert.Equal(t, "Ada", decoded.String("name"))
}

func TestToDisplayRowMissingOptionalFields(t *testing.T) {
	row := ToDisplayRow(domain.WireRow{UploadRow: domain.UploadRow{ID: "bare"}})

	assert.Equal(t, len(FrontMetadataKeys)+len(BackMetadataKeys), row.Len())
	assert.Equal(t, "bare", row.ID())
	assert.Nil(t, mustGet(t, row, KeyRowETag))
	assert.Nil(t, mustGet(t, row, KeyDefaultAccess))
}

func TestRoundTrip(t *testing.T) {
	w := sampleWireRow()
	schema := schemaColumns("age", "name", "village")

	up := ToUploadRow(ToDisplayRow(w), schema)

	assert.Equal(t, w.ID, up.ID)
	assert.Equal(t, w.RowETag, up.RowETag)
	assert.Equal(t, w.FormID, up.FormID)
	assert.Equal(t, w.Locale, up.Locale)
	assert.Equal(t, w.SavepointType, up.SavepointType)
	assert.Equal(t, w.SavepointTimestamp, up.SavepointTimestamp)
	assert.Equal(t, w.SavepointCreator, up.SavepointCreator)
	assert.Equal(t, w.FilterScope, up.FilterScope)
	assert.False(t, up.Deleted)

	got := map[string]any{}
	for _, cv := range up.OrderedColumns {
		got[cv.Column] = cv.Value
	}
	for _, cv := range w.OrderedColumns {
		assert.Equal(t, cv.Value, got[cv.Column], "column %s", cv.Column)
	}
	assert.Equal(t, "age", up.OrderedColumns[0].Column, "upload follows the schema order")
}

func TestToUploadRowSkipsUnknownAndMissingColumns(t *testing.T) {
	row := NewDisplayRow()
	row.Set(KeyID, "r1")
	row.Set(KeyDeleted, "TRUE")
	row.Set("name", "x")
	row.Set("scratch", "not a column")
	row.Set(KeyRowETag, "uuid:e")

	up := ToUploadRow(row, schemaColumns("name", "location"))
	assert.True(t, up.Deleted)
	assert.Equal(t, []domain.ColumnValue{{Column: "name", Value: "x"}}, up.OrderedColumns)
	require.NotNil(t, up.RowETag)
	assert.Equal(t, "uuid:e", *up.RowETag)
	assert.Nil(t, up.FormID)
}

func TestDisplayRowSetKeepsPosition(t *testing.T) {
	row := NewDisplayRow()
	row.Set("a", 1)
	row.Set("b", 2)
	row.Set("a", 3)

	assert.Equal(t, []string{"a", "b"}, row.Keys())
	clone := row.Clone()
	clone.Set("c", 4)
	assert.Equal(t, 2, row.Len())
	assert.Equal(t, 3, clone.Len())
}

func TestCamelToSnake(t *testing.T) {
	testCases := map[string]string{
		"rowETag":                "row_etag",
		"dataETagAtModification": "data_etag_at_modification",
		"savepointTimestamp":     "savepoint_timestamp",
		"groupReadOnly":          "group_read_only",
		"id":                     "id",
	}
	for in, want := range testCases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, CamelToSnake(in))
		})
	}
}

func TestMetadataKeysAreSnakeCaseOfWireFields(t *testing.T) {
	fields := []string{"id", "formId", "locale", "savepointType", "savepointTimestamp", "savepointCreator",
		"deleted", "dataETagAtModification", "defaultAccess", "groupModify", "groupPrivileged",
		"groupReadOnly", "rowETag", "rowOwner"}
	all := append(append([]string{}, FrontMetadataKeys...), BackMetadataKeys...)
	require.Len(t, all, len(fields))
	for i, f := range fields {
		assert.Equal(t, all[i], "_"+CamelToSnake(f))
	}
}

func mustGet(t *testing.T, row *DisplayRow, key string) any {
	t.Helper()
	v, ok := row.Get(key)
	require.True(t, ok, "missing key %s", key)
	return v
}
