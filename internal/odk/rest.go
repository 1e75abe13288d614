// Package odk implements the ODK-X sync protocol endpoints used by the dashboard.
// See https://docs.odk-x.org/odk-2-sync-protocol/
package odk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Annany2002/odkx-manager/internal/core"
	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

// DefaultClientVersion is the ODK client version used by the manifest and file endpoints.
const DefaultClientVersion = 2

// Requester is the subset of the transport adapter the protocol client needs.
type Requester interface {
	Do(ctx context.Context, req transport.Request, out any) error
	Send(ctx context.Context, req transport.Request) ([]byte, error)
}

// Client wraps the sync protocol endpoints. The app id is passed to every call so that no
// mutable "current app" is shared between goroutines.
type Client struct {
	http Requester
}

// NewClient creates a protocol client on top of a transport.
func NewClient(r Requester) *Client {
	return &Client{http: r}
}

// AppNames returns the app ids served by the remote server (GET /).
func (c *Client) AppNames(ctx context.Context) ([]string, error) {
	var appIDs []string
	if err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: ""}, &appIDs); err != nil {
		return nil, err
	}
	return appIDs, nil
}

// PrivilegesInfo returns the current user's groups and roles for an app.
func (c *Client) PrivilegesInfo(ctx context.Context, appID string) (*domain.UserPrivileges, error) {
	var priv domain.UserPrivileges
	if err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: join(appID, "privilegesInfo")}, &priv); err != nil {
		return nil, err
	}
	return &priv, nil
}

// Tables lists the tables of an app.
func (c *Client) Tables(ctx context.Context, appID string) (*domain.TableList, error) {
	var list domain.TableList
	if err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: join(appID, "tables")}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Definition returns the schema of one table version.
func (c *Client) Definition(ctx context.Context, appID, tableID, schemaETag string) (*domain.TableSchema, error) {
	var schema domain.TableSchema
	path := join(appID, "tables", tableID, "ref", schemaETag)
	if err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: path}, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// Rows returns one page of rows. An empty cursor requests the first page.
func (c *Client) Rows(ctx context.Context, appID, tableID, schemaETag string, fetchLimit int, cursor string) (*domain.RowPage, error) {
	var page domain.RowPage
	req := transport.Request{
		Method: http.MethodGet,
		Path:   join(appID, "tables", tableID, "ref", schemaETag, "rows"),
		Query:  core.RowQuery(fetchLimit, cursor),
	}
	if err := c.http.Do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateTable creates a table from a schema (PUT /{appId}/tables/{tableId}).
func (c *Client) CreateTable(ctx context.Context, appID string, schema domain.TableSchema) (*domain.TableCreated, error) {
	if !core.IsValidTableID(schema.TableID) {
		return nil, fmt.Errorf("invalid table id '%s'", schema.TableID)
	}
	var created domain.TableCreated
	req := transport.Request{Method: http.MethodPut, Path: join(appID, "tables", schema.TableID), Body: schema}
	if err := c.http.Do(ctx, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AlterRows submits a batch of inserts/updates/deletes guarded by the table's dataETag.
func (c *Client) AlterRows(ctx context.Context, appID, tableID, schemaETag string, rows domain.RowList) (*domain.AlterRowsResult, error) {
	var res domain.AlterRowsResult
	req := transport.Request{
		Method: http.MethodPut,
		Path:   join(appID, "tables", tableID, "ref", schemaETag, "rows"),
		Body:   rows,
	}
	if err := c.http.Do(ctx, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteTable deletes a table version and all of its rows.
func (c *Client) DeleteTable(ctx context.Context, appID, tableID, schemaETag string) error {
	req := transport.Request{Method: http.MethodDelete, Path: join(appID, "tables", tableID, "ref", schemaETag)}
	return c.http.Do(ctx, req, nil)
}

// AppManifest lists the app-level files (forms, framework) for a client version.
func (c *Client) AppManifest(ctx context.Context, clientVersion int) (*domain.Manifest, error) {
	var manifest domain.Manifest
	path := join("default", "manifest", versionSegment(clientVersion))
	if err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: path}, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// TableManifest lists the table-level files of tableID.
func (c *Client) TableManifest(ctx context.Context, tableID string, clientVersion int) (*domain.Manifest, error) {
	var manifest domain.Manifest
	path := join("default", "manifest", versionSegment(clientVersion), tableID)
	if err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: path}, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// GetFile downloads a file by its relative path, e.g. "tables/census/forms/census/formDef.json".
func (c *Client) GetFile(ctx context.Context, filePath string, clientVersion int) ([]byte, error) {
	req := transport.Request{
		Method: http.MethodGet,
		Path:   join("default", "files", versionSegment(clientVersion)) + "/" + escapePath(filePath),
		Query:  url.Values{"as_attachment": {"false"}},
	}
	return c.http.Send(ctx, req)
}

// PutFile uploads an app-level or table-level file.
func (c *Client) PutFile(ctx context.Context, appID, filePath string, data []byte, contentType string, clientVersion int) error {
	req := transport.Request{
		Method:      http.MethodPost,
		Path:        join(appID, "files", versionSegment(clientVersion)) + "/" + escapePath(filePath),
		Body:        data,
		ContentType: contentType + "; charset=utf-8",
		Header: map[string]string{
			"Accept":         contentType,
			"Accept-Charset": "utf-8",
		},
	}
	_, err := c.http.Send(ctx, req)
	return err
}

// DeleteFile removes a file.
func (c *Client) DeleteFile(ctx context.Context, appID, filePath string, clientVersion int) error {
	req := transport.Request{
		Method: http.MethodDelete,
		Path:   join(appID, "files", versionSegment(clientVersion)) + "/" + escapePath(filePath),
	}
	_, err := c.http.Send(ctx, req)
	return err
}

func versionSegment(v int) string {
	if v <= 0 {
		v = DefaultClientVersion
	}
	return fmt.Sprint(v)
}

// join escapes each path segment and joins them with "/".
func join(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

// escapePath escapes a slash separated relative file path segment by segment.
func escapePath(p string) string {
	return join(strings.Split(strings.Trim(p, "/"), "/")...)
}
