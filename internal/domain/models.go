// internal/domain/models.go
package domain

import (
	"encoding/json"
	"strings"
)

// TableIdentity names one schema version of a table. A schema change produces a new
// SchemaETag and therefore a different identity.
type TableIdentity struct {
	TableID    string
	SchemaETag string
}

// TableMeta is the server-side descriptor of a table as listed by GET /{appId}/tables.
// DataETag changes whenever row contents change.
type TableMeta struct {
	ACLURI                 string `json:"aclUri,omitempty"`
	DataETag               string `json:"dataETag"`
	DataURI                string `json:"dataUri,omitempty"`
	DefinitionURI          string `json:"definitionUri,omitempty"`
	DiffURI                string `json:"diffUri,omitempty"`
	InstanceFilesURI       string `json:"instanceFilesUri,omitempty"`
	SchemaETag             string `json:"schemaETag"`
	SelfURI                string `json:"selfUri,omitempty"`
	TableID                string `json:"tableId"`
	TableLevelManifestETag string `json:"tableLevelManifestETag,omitempty"`
}

// Identity returns the (tableId, schemaETag) pair of the table.
func (t TableMeta) Identity() TableIdentity {
	return TableIdentity{TableID: t.TableID, SchemaETag: t.SchemaETag}
}

// SchemaColumn is one entry of a table definition. The ordered list of columns defines the
// create-table payload and the display order of data columns.
type SchemaColumn struct {
	ElementKey           string `json:"elementKey" validate:"required"`
	ElementName          string `json:"elementName" validate:"required"`
	ElementType          string `json:"elementType" validate:"required"`
	ListChildElementKeys string `json:"listChildElementKeys"`
}

// TableSchema is the table definition (GET .../ref/{schemaETag}, PUT /tables/{tableId}).
type TableSchema struct {
	TableID        string         `json:"tableId" validate:"required"`
	SchemaETag     string         `json:"schemaETag,omitempty"`
	OrderedColumns []SchemaColumn `json:"orderedColumns" validate:"required,min=1,dive"`
	SelfURI        string         `json:"selfUri,omitempty"`
	TableURI       string         `json:"tableUri,omitempty"`
}

// FilterScope holds the access-control fields of a row. Values may be null on the wire.
type FilterScope struct {
	DefaultAccess   *string `json:"defaultAccess"`
	RowOwner        *string `json:"rowOwner"`
	GroupReadOnly   *string `json:"groupReadOnly"`
	GroupModify     *string `json:"groupModify"`
	GroupPrivileged *string `json:"groupPrivileged"`
}

// ColumnValue is one form-field value of a row.
type ColumnValue struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// UploadRow is the row shape accepted by the alter-rows endpoint.
type UploadRow struct {
	ID                 string        `json:"id"`
	RowETag            *string       `json:"rowETag"`
	Deleted            bool          `json:"deleted"`
	FormID             *string       `json:"formId"`
	Locale             *string       `json:"locale"`
	SavepointType      *string       `json:"savepointType"`
	SavepointTimestamp *string       `json:"savepointTimestamp"`
	SavepointCreator   *string       `json:"savepointCreator"`
	FilterScope        FilterScope   `json:"filterScope"`
	OrderedColumns     []ColumnValue `json:"orderedColumns"`
}

// WireRow is a row as returned by the sync server. The server-only fields are omitted when
// nil so that a fetched row can be re-uploaded as-is (table backups).
type WireRow struct {
	UploadRow
	CreateUser             *string `json:"createUser,omitempty"`
	LastUpdateUser         *string `json:"lastUpdateUser,omitempty"`
	DataETagAtModification *string `json:"dataETagAtModification,omitempty"`
	SelfURI                *string `json:"selfUri,omitempty"`
}

// RowOutcome is the per-row result code of an alter-rows call.
type RowOutcome string

const (
	OutcomeUnknown    RowOutcome = "UNKNOWN"
	OutcomeSuccess    RowOutcome = "SUCCESS"
	OutcomeDenied     RowOutcome = "DENIED"
	OutcomeInConflict RowOutcome = "IN_CONFLICT"
	OutcomeFailed     RowOutcome = "FAILED"
)

// Outcomes lists every outcome in a stable order.
var Outcomes = []RowOutcome{OutcomeSuccess, OutcomeInConflict, OutcomeDenied, OutcomeFailed, OutcomeUnknown}

// UnmarshalJSON maps unrecognised or null outcomes to UNKNOWN.
func (o *RowOutcome) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*o = OutcomeUnknown
		return nil
	}
	switch candidate := RowOutcome(strings.ToUpper(*raw)); candidate {
	case OutcomeSuccess, OutcomeDenied, OutcomeInConflict, OutcomeFailed, OutcomeUnknown:
		*o = candidate
	default:
		*o = OutcomeUnknown
	}
	return nil
}

// RowOutcomeEntry is one element of the alter-rows response. The server echoes more fields
// (mostly null); only those the client reconciles are kept.
type RowOutcomeEntry struct {
	ID                     string     `json:"id"`
	RowETag                string     `json:"rowETag"`
	DataETagAtModification string     `json:"dataETagAtModification,omitempty"`
	Outcome                RowOutcome `json:"outcome"`
}

// RowList is the alter-rows request body.
type RowList struct {
	Rows     any    `json:"rows"`
	DataETag string `json:"dataETag"`
}

// AlterRowsResult is the alter-rows response.
type AlterRowsResult struct {
	DataETag string            `json:"dataETag"`
	TableURI string            `json:"tableUri,omitempty"`
	Rows     []RowOutcomeEntry `json:"rows"`
}

// Page carries the pagination fields shared by list responses.
type Page struct {
	HasMoreResults        bool    `json:"hasMoreResults"`
	HasPriorResults       bool    `json:"hasPriorResults"`
	WebSafeResumeCursor   string  `json:"webSafeResumeCursor,omitempty"`
	WebSafeBackwardCursor string  `json:"webSafeBackwardCursor,omitempty"`
	WebSafeRefetchCursor  *string `json:"webSafeRefetchCursor,omitempty"`
}

// TableList is the response of GET /{appId}/tables.
type TableList struct {
	Page
	AppLevelManifestETag string      `json:"appLevelManifestETag"`
	Tables               []TableMeta `json:"tables"`
}

// RowPage is one page of GET .../rows.
type RowPage struct {
	Page
	DataETag string    `json:"dataETag"`
	TableURI string    `json:"tableUri,omitempty"`
	Rows     []WireRow `json:"rows"`
}

// TableCreated is the response of the create-table call.
type TableCreated struct {
	TableID                string  `json:"tableId"`
	DataETag               string  `json:"dataETag"`
	SchemaETag             string  `json:"schemaETag"`
	SelfURI                string  `json:"selfUri"`
	DefinitionURI          string  `json:"definitionUri"`
	DataURI                string  `json:"dataUri"`
	InstanceFilesURI       string  `json:"instanceFilesUri"`
	DiffURI                string  `json:"diffUri"`
	ACLURI                 string  `json:"aclUri"`
	TableLevelManifestETag *string `json:"tableLevelManifestETag"`
}

// Meta converts a create response into the TableMeta used for selection.
func (c TableCreated) Meta() TableMeta {
	meta := TableMeta{
		ACLURI:           c.ACLURI,
		DataETag:         c.DataETag,
		DataURI:          c.DataURI,
		DefinitionURI:    c.DefinitionURI,
		DiffURI:          c.DiffURI,
		InstanceFilesURI: c.InstanceFilesURI,
		SchemaETag:       c.SchemaETag,
		SelfURI:          c.SelfURI,
		TableID:          c.TableID,
	}
	if c.TableLevelManifestETag != nil {
		meta.TableLevelManifestETag = *c.TableLevelManifestETag
	}
	return meta
}

// UserPrivileges is the response of GET /{appId}/privilegesInfo.
type UserPrivileges struct {
	DefaultGroup string   `json:"defaultGroup"`
	FullName     string   `json:"full_name"`
	Roles        []string `json:"roles"`
	UserID       string   `json:"user_id"`
}

// HasRole reports whether the user holds role (e.g. ROLE_ADMINISTER_TABLES).
func (p *UserPrivileges) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ManifestItem describes one file in an app or table manifest.
type ManifestItem struct {
	Filename      string `json:"filename"`
	ContentLength int64  `json:"contentLength"`
	ContentType   string `json:"contentType"`
	MD5Hash       string `json:"md5hash"`
	DownloadURL   string `json:"downloadUrl"`
}

// Manifest is the response of the manifest endpoints.
type Manifest struct {
	Files []ManifestItem `json:"files"`
}

// StringPtr is a helper for building nullable wire fields.
func StringPtr(s string) *string {
	return &s
}
