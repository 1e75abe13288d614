// Package codec converts rows between the sync protocol shape and the flat display shape.
package codec

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Annany2002/odkx-manager/internal/domain"
)

// Metadata keys of a display row.
const (
	KeyID                     = "_id"
	KeyFormID                 = "_form_id"
	KeyLocale                 = "_locale"
	KeySavepointType          = "_savepoint_type"
	KeySavepointTimestamp     = "_savepoint_timestamp"
	KeySavepointCreator       = "_savepoint_creator"
	KeyDeleted                = "_deleted"
	KeyDataETagAtModification = "_data_etag_at_modification"
	KeyDefaultAccess          = "_default_access"
	KeyGroupModify            = "_group_modify"
	KeyGroupPrivileged        = "_group_privileged"
	KeyGroupReadOnly          = "_group_read_only"
	KeyRowETag                = "_row_etag"
	KeyRowOwner               = "_row_owner"
)

// FrontMetadataKeys precede the data columns.
var FrontMetadataKeys = []string{
	KeyID,
	KeyFormID,
	KeyLocale,
	KeySavepointType,
	KeySavepointTimestamp,
	KeySavepointCreator,
	KeyDeleted,
	KeyDataETagAtModification,
}

// BackMetadataKeys follow the data columns.
var BackMetadataKeys = []string{
	KeyDefaultAccess,
	KeyGroupModify,
	KeyGroupPrivileged,
	KeyGroupReadOnly,
	KeyRowETag,
	KeyRowOwner,
}

// IsMetadataKey reports whether key is one of the fixed metadata keys.
func IsMetadataKey(key string) bool {
	for _, k := range FrontMetadataKeys {
		if k == key {
			return true
		}
	}
	for _, k := range BackMetadataKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ToDisplayRow flattens a wire row. Absent optional fields become nil values.
func ToDisplayRow(w domain.WireRow) *DisplayRow {
	meta := map[string]any{
		KeyID:                     w.ID,
		KeyFormID:                 deref(w.FormID),
		KeyLocale:                 deref(w.Locale),
		KeySavepointType:          deref(w.SavepointType),
		KeySavepointTimestamp:     deref(w.SavepointTimestamp),
		KeySavepointCreator:       deref(w.SavepointCreator),
		KeyDeleted:                w.Deleted,
		KeyDataETagAtModification: deref(w.DataETagAtModification),
		KeyDefaultAccess:          deref(w.FilterScope.DefaultAccess),
		KeyGroupModify:            deref(w.FilterScope.GroupModify),
		KeyGroupPrivileged:        deref(w.FilterScope.GroupPrivileged),
		KeyGroupReadOnly:          deref(w.FilterScope.GroupReadOnly),
		KeyRowETag:                deref(w.RowETag),
		KeyRowOwner:               deref(w.FilterScope.RowOwner),
	}

	row := &DisplayRow{
		keys:   make([]string, 0, len(FrontMetadataKeys)+len(w.OrderedColumns)+len(BackMetadataKeys)),
		values: make(map[string]any, len(FrontMetadataKeys)+len(w.OrderedColumns)+len(BackMetadataKeys)),
	}
	for _, k := range FrontMetadataKeys {
		row.Set(k, meta[k])
	}
	for _, col := range w.OrderedColumns {
		if strings.HasPrefix(col.Column, "_") {
			continue
		}
		row.Set(col.Column, col.Value)
	}
	for _, k := range BackMetadataKeys {
		row.Set(k, meta[k])
	}
	return row
}

// ToDisplayRows converts a batch of wire rows, keeping their order.
func ToDisplayRows(rows []domain.WireRow) []*DisplayRow {
	out := make([]*DisplayRow, 0, len(rows))
	for _, w := range rows {
		out = append(out, ToDisplayRow(w))
	}
	return out
}

// ToUploadRow rebuilds an upload row from a display row and the table's current columns.
// Columns the row does not carry (group or object parents) are skipped; keys that are not
// schema columns are dropped.
func ToUploadRow(row *DisplayRow, columns []domain.SchemaColumn) domain.UploadRow {
	up := domain.UploadRow{
		ID:                 row.String(KeyID),
		RowETag:            stringPtr(row, KeyRowETag),
		Deleted:            IsDeleted(row),
		FormID:             stringPtr(row, KeyFormID),
		Locale:             stringPtr(row, KeyLocale),
		SavepointType:      stringPtr(row, KeySavepointType),
		SavepointTimestamp: stringPtr(row, KeySavepointTimestamp),
		SavepointCreator:   stringPtr(row, KeySavepointCreator),
		FilterScope: domain.FilterScope{
			DefaultAccess:   stringPtr(row, KeyDefaultAccess),
			RowOwner:        stringPtr(row, KeyRowOwner),
			GroupReadOnly:   stringPtr(row, KeyGroupReadOnly),
			GroupModify:     stringPtr(row, KeyGroupModify),
			GroupPrivileged: stringPtr(row, KeyGroupPrivileged),
		},
		OrderedColumns: make([]domain.ColumnValue, 0, len(columns)),
	}
	for _, col := range columns {
		value, ok := row.Get(col.ElementKey)
		if !ok {
			continue
		}
		up.OrderedColumns = append(up.OrderedColumns, domain.ColumnValue{Column: col.ElementKey, Value: value})
	}
	return up
}

// IsDeleted reports whether the row is marked for deletion.
func IsDeleted(row *DisplayRow) bool {
	return isTrue(row, KeyDeleted)
}

// CamelToSnake converts a camelCase name to snake_case, e.g. "rowETag" to "row_etag".
// Runs of capitals stay in one word.
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(row *DisplayRow, key string) *string {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return &s
	}
	s := fmt.Sprint(v)
	return &s
}

func isTrue(row *DisplayRow, key string) bool {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}
