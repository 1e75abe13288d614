// Package odktest provides an in-memory ODK-X sync server for tests.
package odktest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Annany2002/odkx-manager/internal/domain"
)

// Request is a recorded call.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
}

// Table is one table held by the fake server.
type Table struct {
	Meta   domain.TableMeta
	Schema domain.TableSchema
	Rows   []domain.WireRow
}

type failure struct {
	method   string
	contains string
	status   int // 0 drops the connection
	times    int
}

// Server is a fake sync server.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	apps       []string
	privileges map[string]*domain.UserPrivileges
	tables     map[string][]*Table // appID -> tables in listing order
	requests   []Request
	failures   []*failure
	counter    int
	outcomeFor func(row domain.UploadRow) domain.RowOutcome
}

// NewServer starts a fake server serving the given app ids. It is closed on test cleanup.
func NewServer(t testing.TB, apps ...string) *Server {
	t.Helper()
	s := &Server{
		apps:       apps,
		privileges: map[string]*domain.UserPrivileges{},
		tables:     map[string][]*Table{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetOutcomes decides the outcome of every uploaded row. Rows are accepted when fn is nil.
func (s *Server) SetOutcomes(fn func(row domain.UploadRow) domain.RowOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomeFor = fn
}

// SetPrivileges sets the privilegesInfo response for appID.
func (s *Server) SetPrivileges(appID string, p *domain.UserPrivileges) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privileges[appID] = p
}

// AddTable registers a table with the given data columns and rows.
func (s *Server) AddTable(appID, tableID, schemaETag string, columns []string, rows ...domain.WireRow) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	schema := domain.TableSchema{TableID: tableID, SchemaETag: schemaETag}
	for _, col := range columns {
		schema.OrderedColumns = append(schema.OrderedColumns, domain.SchemaColumn{
			ElementKey: col, ElementName: col, ElementType: "string", ListChildElementKeys: "[]",
		})
	}
	tbl := &Table{
		Meta: domain.TableMeta{
			TableID:    tableID,
			SchemaETag: schemaETag,
			DataETag:   s.nextETag("data"),
			SelfURI:    s.URL + "/odktables/" + appID + "/tables/" + tableID,
		},
		Schema: schema,
		Rows:   rows,
	}
	s.tables[appID] = append(s.tables[appID], tbl)
	return tbl
}

// Table returns a registered table.
func (s *Server) Table(appID, tableID string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(appID, tableID)
}

// SetSchemaColumns replaces a table's schema with a new version, as a schema change would.
func (s *Server) SetSchemaColumns(appID, tableID, schemaETag string, columns []domain.SchemaColumn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.find(appID, tableID)
	tbl.Meta.SchemaETag = schemaETag
	tbl.Schema.SchemaETag = schemaETag
	tbl.Schema.OrderedColumns = columns
}

// FailNext makes the next `times` requests whose method matches and whose path contains
// `contains` fail with status. Status 0 drops the connection without a response.
func (s *Server) FailNext(method, contains string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, contains: contains, status: status, times: times})
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many recorded requests match method and contain pathPart.
func (s *Server) Count(method, pathPart string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.Contains(r.Path, pathPart) {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) nextETag(kind string) string {
	s.counter++
	return fmt.Sprintf("uuid:%s-%d", kind, s.counter)
}

func (s *Server) find(appID, tableID string) *Table {
	for _, t := range s.tables[appID] {
		if t.Meta.TableID == tableID {
			return t
		}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := map[string]string{}
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: query, Header: r.Header.Clone()})

	for _, f := range s.failures {
		if f.times > 0 && f.method == r.Method && strings.Contains(r.URL.Path, f.contains) {
			f.times--
			if f.status == 0 {
				if hj, ok := w.(http.Hijacker); ok {
					conn, _, err := hj.Hijack()
					if err == nil {
						_ = conn.Close()
						return
					}
				}
			}
			writeJSON(w, f.status, map[string]any{"message": "injected failure"})
			return
		}
	}

	path := strings.TrimPrefix(r.URL.Path, "/odktables")
	path = strings.TrimPrefix(path, "/")
	var seg []string
	if path != "" {
		seg = strings.Split(path, "/")
	}

	switch {
	case len(seg) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.apps)
	case len(seg) == 2 && seg[1] == "privilegesInfo":
		p, ok := s.privileges[seg[0]]
		if !ok {
			writeJSON(w, http.StatusForbidden, map[string]any{"message": "no privileges"})
			return
		}
		writeJSON(w, http.StatusOK, p)
	case len(seg) == 2 && seg[1] == "tables":
		list := domain.TableList{AppLevelManifestETag: "uuid:manifest", Tables: []domain.TableMeta{}}
		for _, t := range s.tables[seg[0]] {
			list.Tables = append(list.Tables, t.Meta)
		}
		writeJSON(w, http.StatusOK, list)
	case len(seg) == 3 && seg[1] == "tables" && r.Method == http.MethodPut:
		s.createTable(w, r, seg[0], seg[2])
	case len(seg) == 5 && seg[1] == "tables" && seg[3] == "ref":
		tbl := s.find(seg[0], seg[2])
		if tbl == nil || tbl.Meta.SchemaETag != seg[4] {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "table not found"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, tbl.Schema)
		case http.MethodDelete:
			s.deleteTable(seg[0], seg[2])
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(seg) == 6 && seg[1] == "tables" && seg[3] == "ref" && seg[5] == "rows":
		tbl := s.find(seg[0], seg[2])
		if tbl == nil || tbl.Meta.SchemaETag != seg[4] {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "table not found"})
			return
		}
		if r.Method == http.MethodPut {
			s.alterRows(w, r, tbl)
			return
		}
		s.listRows(w, query, tbl)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "unknown endpoint " + r.URL.Path})
	}
}

func (s *Server) listRows(w http.ResponseWriter, query map[string]string, tbl *Table) {
	limit, err := strconv.Atoi(query["fetchLimit"])
	if err != nil || limit <= 0 {
		limit = 2000
	}
	offset := 0
	if c := query["cursor"]; c != "" {
		offset, _ = strconv.Atoi(strings.TrimPrefix(c, "cursor-"))
	}
	end := offset + limit
	if end > len(tbl.Rows) {
		end = len(tbl.Rows)
	}
	page := domain.RowPage{
		DataETag: tbl.Meta.DataETag,
		TableURI: tbl.Meta.SelfURI,
		Rows:     append([]domain.WireRow{}, tbl.Rows[offset:end]...),
	}
	page.HasPriorResults = offset > 0
	if end < len(tbl.Rows) {
		page.HasMoreResults = true
		page.WebSafeResumeCursor = fmt.Sprintf("cursor-%d", end)
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createTable(w http.ResponseWriter, r *http.Request, appID, tableID string) {
	var schema domain.TableSchema
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &schema); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	if s.find(appID, tableID) != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "table exists"})
		return
	}
	schema.TableID = tableID
	tbl := &Table{
		Meta: domain.TableMeta{
			TableID:    tableID,
			SchemaETag: schema.SchemaETag,
			DataETag:   s.nextETag("data"),
			SelfURI:    s.URL + "/odktables/" + appID + "/tables/" + tableID,
		},
		Schema: schema,
	}
	s.tables[appID] = append(s.tables[appID], tbl)
	writeJSON(w, http.StatusOK, domain.TableCreated{
		TableID:    tableID,
		DataETag:   tbl.Meta.DataETag,
		SchemaETag: tbl.Meta.SchemaETag,
		SelfURI:    tbl.Meta.SelfURI,
	})
}

func (s *Server) deleteTable(appID, tableID string) {
	kept := s.tables[appID][:0]
	for _, t := range s.tables[appID] {
		if t.Meta.TableID != tableID {
			kept = append(kept, t)
		}
	}
	s.tables[appID] = kept
}

func (s *Server) alterRows(w http.ResponseWriter, r *http.Request, tbl *Table) {
	var req struct {
		Rows     []domain.WireRow `json:"rows"`
		DataETag string           `json:"dataETag"`
	}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	newData := s.nextETag("data")
	res := domain.AlterRowsResult{DataETag: newData, TableURI: tbl.Meta.SelfURI}
	for _, row := range req.Rows {
		outcome := domain.OutcomeSuccess
		if s.outcomeFor != nil {
			outcome = s.outcomeFor(row.UploadRow)
		}
		entry := domain.RowOutcomeEntry{ID: row.ID, Outcome: outcome}
		if row.RowETag != nil {
			entry.RowETag = *row.RowETag
		}
		if outcome == domain.OutcomeSuccess {
			entry.RowETag = s.nextETag("row")
			entry.DataETagAtModification = newData
			stored := row
			stored.RowETag = domain.StringPtr(entry.RowETag)
			stored.DataETagAtModification = domain.StringPtr(newData)
			s.upsert(tbl, stored)
		}
		res.Rows = append(res.Rows, entry)
	}
	tbl.Meta.DataETag = newData
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) upsert(tbl *Table, row domain.WireRow) {
	for i := range tbl.Rows {
		if tbl.Rows[i].ID == row.ID {
			tbl.Rows[i] = row
			return
		}
	}
	tbl.Rows = append(tbl.Rows, row)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Row builds a wire row with the given id and data columns (column, value pairs).
func Row(id string, columns ...string) domain.WireRow {
	row := domain.WireRow{
		UploadRow: domain.UploadRow{
			ID:                 id,
			RowETag:            domain.StringPtr("uuid:etag-" + id),
			FormID:             domain.StringPtr("form"),
			Locale:             domain.StringPtr("default"),
			SavepointType:      domain.StringPtr("COMPLETE"),
			SavepointTimestamp: domain.StringPtr("2024-01-01T00:00:00.000000000"),
			SavepointCreator:   domain.StringPtr("mailto:collector@example.org"),
			FilterScope: domain.FilterScope{
				DefaultAccess:   domain.StringPtr("FULL"),
				RowOwner:        domain.StringPtr("mailto:collector@example.org"),
				GroupReadOnly:   domain.StringPtr("FALSE"),
				GroupModify:     nil,
				GroupPrivileged: nil,
			},
		},
		CreateUser:             domain.StringPtr("mailto:collector@example.org"),
		LastUpdateUser:         domain.StringPtr("mailto:collector@example.org"),
		DataETagAtModification: domain.StringPtr("uuid:data-0"),
		SelfURI:                domain.StringPtr("https://odk.example.org/rows/" + id),
	}
	for i := 0; i+1 < len(columns); i += 2 {
		row.OrderedColumns = append(row.OrderedColumns, domain.ColumnValue{Column: columns[i], Value: columns[i+1]})
	}
	return row
}
