package odk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/odktest"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

func newTestClient(t *testing.T) (*Client, *odktest.Server) {
	t.Helper()
	srv := odktest.NewServer(t, "default", "survey")
	tr := transport.NewClient(transport.StaticCredentials{ServerURL: srv.URL, Token: "dG9rOnRvaw=="}, transport.Options{})
	return NewClient(tr), srv
}

func TestAppNamesAndTables(t *testing.T) {
	client, srv := newTestClient(t)
	srv.AddTable("default", "census", "uuid:s1", []string{"name"})

	apps, err := client.AppNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "survey"}, apps)

	list, err := client.Tables(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, list.Tables, 1)
	assert.Equal(t, domain.TableIdentity{TableID: "census", SchemaETag: "uuid:s1"}, list.Tables[0].Identity())

	schema, err := client.Definition(context.Background(), "default", "census", "uuid:s1")
	require.NoError(t, err)
	require.Len(t, schema.OrderedColumns, 1)
	assert.Equal(t, "name", schema.OrderedColumns[0].ElementKey)

	assert.Equal(t, 1, srv.Count(http.MethodGet, "/odktables/default/tables/census/ref/uuid:s1"))
}

func TestRowsPagination(t *testing.T) {
	client, srv := newTestClient(t)
	srv.AddTable("default", "census", "uuid:s1", []string{"name"},
		odktest.Row("r1", "name", "a"), odktest.Row("r2", "name", "b"), odktest.Row("r3", "name", "c"))

	first, err := client.Rows(context.Background(), "default", "census", "uuid:s1", 2, "")
	require.NoError(t, err)
	assert.Len(t, first.Rows, 2)
	assert.True(t, first.HasMoreResults)
	require.NotEmpty(t, first.WebSafeResumeCursor)

	second, err := client.Rows(context.Background(), "default", "census", "uuid:s1", 2, first.WebSafeResumeCursor)
	require.NoError(t, err)
	require.Len(t, second.Rows, 1)
	assert.Equal(t, "r3", second.Rows[0].ID)
	assert.False(t, second.HasMoreResults)

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "2", reqs[0].Query["fetchLimit"])
	_, hasCursor := reqs[0].Query["cursor"]
	assert.False(t, hasCursor, "first page sends no cursor")
	assert.Equal(t, first.WebSafeResumeCursor, reqs[1].Query["cursor"])
}

func TestCreateTableValidatesID(t *testing.T) {
	client, srv := newTestClient(t)

	_, err := client.CreateTable(context.Background(), "default", domain.TableSchema{TableID: "1bad"})
	require.Error(t, err)
	assert.Empty(t, srv.Requests(), "invalid ids never reach the server")

	created, err := client.CreateTable(context.Background(), "default", domain.TableSchema{
		TableID:    "census_backup",
		SchemaETag: "uuid:new",
		OrderedColumns: []domain.SchemaColumn{
			{ElementKey: "name", ElementName: "name", ElementType: "string", ListChildElementKeys: "[]"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "census_backup", created.Meta().TableID)
	assert.Equal(t, "uuid:new", created.SchemaETag)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/odktables/default/tables/census_backup", reqs[0].Path)
	assert.Equal(t, transport.ProtocolVersion, reqs[0].Header.Get(transport.VersionHeader))
}

func TestAlterRowsAndDeleteTable(t *testing.T) {
	client, srv := newTestClient(t)
	tbl := srv.AddTable("default", "census", "uuid:s1", []string{"name"}, odktest.Row("r1", "name", "a"))
	srv.SetOutcomes(func(row domain.UploadRow) domain.RowOutcome {
		if row.ID == "r2" {
			return domain.OutcomeDenied
		}
		return domain.OutcomeSuccess
	})

	res, err := client.AlterRows(context.Background(), "default", "census", "uuid:s1", domain.RowList{
		DataETag: tbl.Meta.DataETag,
		Rows: []domain.UploadRow{
			{ID: "r1", RowETag: domain.StringPtr("uuid:etag-r1"), OrderedColumns: []domain.ColumnValue{{Column: "name", Value: "z"}}},
			{ID: "r2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.OutcomeSuccess, res.Rows[0].Outcome)
	assert.Equal(t, domain.OutcomeDenied, res.Rows[1].Outcome)
	assert.NotEmpty(t, res.DataETag)

	require.NoError(t, client.DeleteTable(context.Background(), "default", "census", "uuid:s1"))
	assert.Nil(t, srv.Table("default", "census"))

	err = client.DeleteTable(context.Background(), "default", "census", "uuid:s1")
	assert.ErrorIs(t, err, transport.ErrNotFound)
}

func TestPrivilegesForbidden(t *testing.T) {
	client, srv := newTestClient(t)
	srv.SetPrivileges("default", &domain.UserPrivileges{UserID: "mailto:a@b.c", Roles: []string{"ROLE_USER"}})

	priv, err := client.PrivilegesInfo(context.Background(), "default")
	require.NoError(t, err)
	assert.True(t, priv.HasRole("ROLE_USER"))

	_, err = client.PrivilegesInfo(context.Background(), "survey")
	assert.ErrorIs(t, err, transport.ErrForbidden)
}

func TestFileEndpointPaths(t *testing.T) {
	var paths []string
	var rawQueries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		rawQueries = append(rawQueries, r.URL.RawQuery)
		if r.Method == http.MethodGet && r.URL.Query().Get("as_attachment") != "" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("file body"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[{"filename":"tables/census/definition.csv","contentLength":12}]}`))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(transport.NewClient(transport.StaticCredentials{ServerURL: srv.URL, Token: "tok"}, transport.Options{}))
	ctx := context.Background()

	manifest, err := client.AppManifest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, manifest.Files, 1)
	assert.Equal(t, int64(12), manifest.Files[0].ContentLength)

	_, err = client.TableManifest(ctx, "census", 2)
	require.NoError(t, err)

	body, err := client.GetFile(ctx, "/tables/census/my form.json", 2)
	require.NoError(t, err)
	assert.Equal(t, "file body", string(body))

	require.NoError(t, client.PutFile(ctx, "default", "assets/app.css", []byte("body{}"), "text/css", 2))
	require.NoError(t, client.DeleteFile(ctx, "default", "assets/app.css", 2))

	assert.Equal(t, []string{
		"GET /odktables/default/manifest/2",
		"GET /odktables/default/manifest/2/census",
		"GET /odktables/default/files/2/tables/census/my%20form.json",
		"POST /odktables/default/files/2/assets/app.css",
		"DELETE /odktables/default/files/2/assets/app.css",
	}, paths)
	assert.Equal(t, "as_attachment=false", rawQueries[2])
}
