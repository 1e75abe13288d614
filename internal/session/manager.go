package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Annany2002/odkx-manager/internal/auth"
	"github.com/Annany2002/odkx-manager/internal/cache"
	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/core"
	"github.com/Annany2002/odkx-manager/internal/credentials"
	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/fetch"
	"github.com/Annany2002/odkx-manager/internal/logger"
	"github.com/Annany2002/odkx-manager/internal/odk"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

var customLog = logger.NewLogger()

var (
	// ErrNoApps is returned by Connect when the server lists no app ids.
	ErrNoApps = errors.New("server returned no app ids")
	// ErrNotConnected is returned when an operation needs stored credentials.
	ErrNotConnected = errors.New("not connected to a server")
	// ErrNoActiveTable is returned by table operations when no table is selected.
	ErrNoActiveTable = errors.New("no active table")
	// ErrSuperseded is returned when a newer selection replaced the one an operation was
	// started for. Nothing is published for the stale operation.
	ErrSuperseded = errors.New("selection changed before the response arrived")
	// ErrTableExists is returned when a backup would overwrite an existing table.
	ErrTableExists = errors.New("table already exists")
	// ErrInvalidTableID is returned for table ids the server would reject.
	ErrInvalidTableID = errors.New("invalid table id")
)

// Login is what a user types into the connect form.
type Login struct {
	ServerURL string `validate:"required,url"`
	Username  string `validate:"required"`
	Password  string `validate:"required"`
}

// Options configure a Manager.
type Options struct {
	// ProxyURL routes requests through the dashboard proxy when set.
	ProxyURL string
	HTTP     transport.Doer
	// OnError is called once for every failed operation, before the error is returned.
	OnError func(error)
	Logger  logrus.FieldLogger
}

// Manager owns the published session state and the remote calls that change it.
//
// Callers must not call SetActiveTable before SetActiveAppID has returned, since the table
// list it selects from is published by SetActiveAppID. Manager does not lock against this.
// Stale responses are discarded: an operation whose app or table selection was replaced
// while it waited returns ErrSuperseded without publishing anything.
type Manager struct {
	State

	vault    *credentials.Vault
	api      *odk.Client
	fetcher  *fetch.Fetcher
	cache    *cache.Cache
	onError  func(error)
	log      logrus.FieldLogger
	validate *validator.Validate

	appGen   atomic.Uint64
	tableGen atomic.Uint64
	// publish serializes read-modify-write of the row cells
	publish sync.Mutex
}

// NewManager creates a disconnected Manager. Credentials are read from vault on every request.
func NewManager(vault *credentials.Vault, opts Options) *Manager {
	m := &Manager{
		State:    newState(),
		vault:    vault,
		onError:  opts.OnError,
		log:      opts.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if m.log == nil {
		m.log = customLog
	}
	tr := transport.NewClient(vault, transport.Options{
		ProxyURL: opts.ProxyURL,
		HTTP:     opts.HTTP,
		Logger:   m.log,
		OnError: func(err error) {
			m.log.Debugf("Session: request error: %v", err)
		},
	})
	m.api = odk.NewClient(tr)
	m.fetcher = fetch.NewFetcher(m.api)
	m.cache = cache.New(&tableLoader{m: m})
	return m
}

// API exposes the protocol client for calls that do not touch session state (file endpoints).
func (m *Manager) API() *odk.Client {
	return m.api
}

func (m *Manager) report(err error) error {
	if err != nil && !errors.Is(err, ErrSuperseded) && m.onError != nil {
		m.onError(err)
	}
	return err
}

// Connect stores the credentials, lists the server's apps and selects the first one.
// On failure the credentials are discarded and the session stays disconnected.
func (m *Manager) Connect(ctx context.Context, login Login, remember bool) error {
	if err := m.validate.Struct(login); err != nil {
		return m.report(fmt.Errorf("invalid login: %w", err))
	}
	m.Status.Set(StatusConnecting)

	creds := transport.Credentials{
		ServerURL: strings.TrimRight(login.ServerURL, "/"),
		Token:     auth.EncodeBasicToken(login.Username, login.Password),
	}
	if err := m.vault.Save(ctx, creds, remember); err != nil {
		m.Status.Set(StatusDisconnected)
		return m.report(fmt.Errorf("failed to store credentials: %w", err))
	}

	apps, err := m.api.AppNames(ctx)
	if err == nil && len(apps) == 0 {
		err = ErrNoApps
	}
	if err != nil {
		if clearErr := m.vault.Clear(ctx); clearErr != nil {
			m.log.Warnf("Session: failed to discard credentials: %v", clearErr)
		}
		m.Status.Set(StatusDisconnected)
		return m.report(err)
	}

	m.log.WithFields(logrus.Fields{"server": creds.ServerURL, "apps": len(apps)}).Info("Session: connected")
	m.publishConnected(apps)
	return m.SetActiveAppID(ctx, apps[0])
}

// Resume reconnects with credentials already in the vault (a remembered login).
// Stored credentials are kept when the server cannot be reached.
func (m *Manager) Resume(ctx context.Context) error {
	if _, ok := m.vault.Current(); !ok {
		return m.report(ErrNotConnected)
	}
	m.Status.Set(StatusConnecting)
	apps, err := m.api.AppNames(ctx)
	if err == nil && len(apps) == 0 {
		err = ErrNoApps
	}
	if err != nil {
		m.Status.Set(StatusDisconnected)
		return m.report(err)
	}
	m.publishConnected(apps)
	return m.SetActiveAppID(ctx, apps[0])
}

func (m *Manager) publishConnected(apps []string) {
	m.AppIDs.Set(apps)
	m.Connected.Set(true)
	m.Status.Set(StatusConnected)
}

// SetActiveAppID selects an app and loads its privileges and table list concurrently.
// A privileges failure is logged and leaves Privileges nil; a table list failure is returned.
func (m *Manager) SetActiveAppID(ctx context.Context, appID string) error {
	gen := m.appGen.Add(1)
	previous := m.AppID.Get()
	m.AppID.Set(appID)
	m.Privileges.Set(nil)
	if previous != appID {
		m.cache.Clear()
		m.tableGen.Add(1)
		m.clearTable()
		m.Tables.Reset()
	}

	var (
		wg       sync.WaitGroup
		priv     *domain.UserPrivileges
		privErr  error
		list     *domain.TableList
		tableErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		priv, privErr = m.api.PrivilegesInfo(ctx, appID)
	}()
	go func() {
		defer wg.Done()
		list, tableErr = m.api.Tables(ctx, appID)
	}()
	wg.Wait()

	if m.appGen.Load() != gen {
		return ErrSuperseded
	}
	if privErr != nil {
		m.log.WithField("app", appID).Warnf("Session: privileges unavailable: %v", privErr)
	} else {
		m.Privileges.Set(priv)
	}
	if tableErr != nil {
		return m.report(tableErr)
	}
	m.Tables.Set(nonNilTables(list.Tables))
	return nil
}

// SetActiveTable publishes the selection, clears the rows, then loads the table through the
// cache and publishes its schema and rows. nil deselects.
func (m *Manager) SetActiveTable(ctx context.Context, table *domain.TableMeta) error {
	gen := m.tableGen.Add(1)
	m.publish.Lock()
	m.ActiveTable.Set(table)
	m.Rows.Reset()
	m.publish.Unlock()
	if table == nil {
		m.Schema.Set(nil)
		m.TableStatus.Set(TableNone)
		return nil
	}
	m.TableStatus.Set(TableLoading)

	entry, err := m.cache.GetTableMeta(ctx, table.Identity(), false)
	if m.tableGen.Load() != gen {
		return ErrSuperseded
	}
	if err != nil {
		m.TableStatus.Set(TableFailed)
		return m.report(err)
	}

	m.publish.Lock()
	defer m.publish.Unlock()
	if m.tableGen.Load() != gen {
		return ErrSuperseded
	}
	selected := *table
	selected.DataETag = entry.DataETag
	m.ActiveTable.Set(&selected)
	m.Schema.Set(entry.Schema)
	m.Rows.Set(append([]*codec.DisplayRow{}, entry.DisplayRows...))
	m.TableStatus.Set(TableReady)
	return nil
}

// RefreshActiveTable drops the cached copy of the active table and loads it again.
func (m *Manager) RefreshActiveTable(ctx context.Context) error {
	table := m.ActiveTable.Get()
	if table == nil {
		return m.report(ErrNoActiveTable)
	}
	m.cache.Invalidate(table.TableID)
	return m.SetActiveTable(ctx, table)
}

// GetTableMeta returns the schema and rows of a table of the active app.
func (m *Manager) GetTableMeta(ctx context.Context, table domain.TableIdentity, skipCache bool) (*cache.Entry, error) {
	entry, err := m.cache.GetTableMeta(ctx, table, skipCache)
	if err != nil {
		return nil, m.report(err)
	}
	return entry, nil
}

// Disconnect resets every published cell and forgets the stored credentials.
// The protocol has no logout call, so the server is not contacted.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.appGen.Add(1)
	m.tableGen.Add(1)
	m.cache.Clear()
	m.publish.Lock()
	m.State.reset()
	m.publish.Unlock()
	if err := m.vault.Clear(ctx); err != nil {
		return m.report(fmt.Errorf("failed to clear credentials: %w", err))
	}
	m.log.Info("Session: disconnected")
	return nil
}

// FetchLimit returns the row page size used for batch fetches.
func (m *Manager) FetchLimit(ctx context.Context) int {
	return m.vault.FetchLimit(ctx)
}

// SetFetchLimit validates and persists the row page size.
func (m *Manager) SetFetchLimit(ctx context.Context, limit int) error {
	return m.report(m.vault.SetFetchLimit(ctx, limit))
}

// BackupCurrentTable copies the active table's definition and rows into a new table and
// selects it. The returned result holds the per-row outcomes of the copy.
func (m *Manager) BackupCurrentTable(ctx context.Context, backupTableID string) (*UpdateResult, error) {
	table := m.ActiveTable.Get()
	if table == nil {
		return nil, m.report(ErrNoActiveTable)
	}
	if !core.IsValidTableID(backupTableID) {
		return nil, m.report(fmt.Errorf("%w: '%s'", ErrInvalidTableID, backupTableID))
	}
	for _, t := range m.Tables.Get() {
		if t.TableID == backupTableID {
			return nil, m.report(fmt.Errorf("%w: '%s'", ErrTableExists, backupTableID))
		}
	}
	appID := m.AppID.Get()

	schema, err := m.api.Definition(ctx, appID, table.TableID, table.SchemaETag)
	if err != nil {
		return nil, m.report(err)
	}
	created, err := m.api.CreateTable(ctx, appID, domain.TableSchema{
		TableID:        backupTableID,
		SchemaETag:     "uuid:" + uuid.NewString(),
		OrderedColumns: schema.OrderedColumns,
	})
	if err != nil {
		return nil, m.report(err)
	}

	// rows are fetched again rather than converted back from display rows
	page, err := m.fetcher.AllRows(ctx, appID, table.Identity(), m.FetchLimit(ctx))
	if err != nil {
		return nil, m.report(err)
	}
	rows := make([]domain.WireRow, 0, len(page.Rows))
	for _, r := range page.Rows {
		r.SelfURI = nil
		r.DataETagAtModification = domain.StringPtr(created.DataETag)
		rows = append(rows, r)
	}

	result := &UpdateResult{DataETag: created.DataETag, Outcomes: []domain.RowOutcomeEntry{}}
	if len(rows) > 0 {
		res, err := m.api.AlterRows(ctx, appID, created.TableID, created.SchemaETag, domain.RowList{Rows: rows, DataETag: created.DataETag})
		if err != nil {
			return nil, m.report(err)
		}
		result = newUpdateResult(res)
	}
	m.log.WithFields(logrus.Fields{
		"source": table.TableID,
		"backup": created.TableID,
		"rows":   len(rows),
		"failed": len(rows) - result.Count(domain.OutcomeSuccess),
	}).Info("Session: table backed up")

	m.cache.Invalidate(created.TableID)
	if err := m.reloadTables(ctx); err != nil {
		return result, err
	}
	backup := created.Meta()
	backup.DataETag = result.DataETag
	for _, t := range m.Tables.Get() {
		if t.TableID == created.TableID {
			backup = t
		}
	}
	if err := m.SetActiveTable(ctx, &backup); err != nil {
		return result, err
	}
	return result, nil
}

// DeleteCurrentTable deletes the active table on the server, deselects it and reloads the
// table list.
func (m *Manager) DeleteCurrentTable(ctx context.Context) error {
	table := m.ActiveTable.Get()
	if table == nil {
		return m.report(ErrNoActiveTable)
	}
	if err := m.api.DeleteTable(ctx, m.AppID.Get(), table.TableID, table.SchemaETag); err != nil {
		return m.report(err)
	}
	m.log.WithField("table", table.TableID).Info("Session: table deleted")
	m.cache.Invalidate(table.TableID)
	if err := m.SetActiveTable(ctx, nil); err != nil {
		return err
	}
	return m.reloadTables(ctx)
}

// TableRows are the display rows of one table.
type TableRows struct {
	TableID string
	Schema  *domain.TableSchema
	Rows    []*codec.DisplayRow
}

// AllTableRows loads the rows of every table of the active app, one table at a time.
func (m *Manager) AllTableRows(ctx context.Context) ([]TableRows, error) {
	tables := m.Tables.Get()
	out := make([]TableRows, 0, len(tables))
	for _, t := range tables {
		entry, err := m.cache.GetTableMeta(ctx, t.Identity(), false)
		if err != nil {
			return nil, m.report(fmt.Errorf("table %s: %w", t.TableID, err))
		}
		out = append(out, TableRows{TableID: t.TableID, Schema: entry.Schema, Rows: entry.DisplayRows})
	}
	return out, nil
}

func (m *Manager) reloadTables(ctx context.Context) error {
	gen := m.appGen.Load()
	list, err := m.api.Tables(ctx, m.AppID.Get())
	if err != nil {
		return m.report(err)
	}
	if m.appGen.Load() != gen {
		return ErrSuperseded
	}
	m.Tables.Set(nonNilTables(list.Tables))
	return nil
}

func (m *Manager) clearTable() {
	m.publish.Lock()
	defer m.publish.Unlock()
	m.ActiveTable.Reset()
	m.Rows.Reset()
	m.Schema.Reset()
	m.TableStatus.Reset()
}

func nonNilTables(tables []domain.TableMeta) []domain.TableMeta {
	if tables == nil {
		return []domain.TableMeta{}
	}
	return tables
}

// tableLoader feeds the cache from the active app.
type tableLoader struct {
	m *Manager
}

func (l *tableLoader) Definition(ctx context.Context, table domain.TableIdentity) (*domain.TableSchema, error) {
	return l.m.api.Definition(ctx, l.m.AppID.Get(), table.TableID, table.SchemaETag)
}

func (l *tableLoader) AllRows(ctx context.Context, table domain.TableIdentity) (*domain.RowPage, error) {
	return l.m.fetcher.AllRows(ctx, l.m.AppID.Get(), table, l.m.FetchLimit(ctx))
}
