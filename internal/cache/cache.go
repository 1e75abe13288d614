// Package cache keeps the schema and rows of tables that have been opened, keyed by table
// identity so that a schema change never serves rows of an older schema version.
package cache

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/logger"
)

var customLog = logger.NewLogger()

// Entry is the cached state of one table version. WireRows are the rows as fetched; they
// are dropped once the display rows are patched after a local update.
type Entry struct {
	Schema      *domain.TableSchema
	DisplayRows []*codec.DisplayRow
	WireRows    []domain.WireRow
	DataETag    string
}

// Loader fetches a table's schema and all of its rows.
type Loader interface {
	Definition(ctx context.Context, table domain.TableIdentity) (*domain.TableSchema, error)
	AllRows(ctx context.Context, table domain.TableIdentity) (*domain.RowPage, error)
}

// Cache holds at most one schema version per table id. It is safe for concurrent use.
type Cache struct {
	loader Loader
	log    logrus.FieldLogger

	mu      sync.Mutex
	entries map[domain.TableIdentity]*Entry
}

// New creates an empty cache.
func New(loader Loader) *Cache {
	return &Cache{loader: loader, log: customLog, entries: map[domain.TableIdentity]*Entry{}}
}

// GetTableMeta returns the cached entry for table, loading it when absent or when skipCache
// is set. A failed load leaves the cache untouched.
func (c *Cache) GetTableMeta(ctx context.Context, table domain.TableIdentity, skipCache bool) (*Entry, error) {
	if !skipCache {
		c.mu.Lock()
		entry, ok := c.entries[table]
		c.mu.Unlock()
		if ok {
			return entry, nil
		}
	}

	schema, err := c.loader.Definition(ctx, table)
	if err != nil {
		return nil, err
	}
	page, err := c.loader.AllRows(ctx, table)
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		Schema:      schema,
		DisplayRows: codec.ToDisplayRows(page.Rows),
		WireRows:    page.Rows,
		DataETag:    page.DataETag,
	}
	c.store(table, entry)
	return entry, nil
}

func (c *Cache) store(table domain.TableIdentity, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if id.TableID == table.TableID && id.SchemaETag != table.SchemaETag {
			c.log.WithFields(logrus.Fields{
				"table":     table.TableID,
				"cached":    id.SchemaETag,
				"requested": table.SchemaETag,
			}).Warn("Cache: schema changed without invalidation, dropping stale entry")
			delete(c.entries, id)
		}
	}
	c.entries[table] = entry
}

// Peek returns the cached entry without loading.
func (c *Cache) Peek(table domain.TableIdentity) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[table]
	return entry, ok
}

// Invalidate drops every cached version of tableID.
func (c *Cache) Invalidate(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if id.TableID == tableID {
			delete(c.entries, id)
		}
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[domain.TableIdentity]*Entry{}
}

// Len returns the number of cached table versions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PatchRows replaces the cached entry of table with the result of fn applied to a copy.
// It does nothing when table is not cached.
func (c *Cache) PatchRows(table domain.TableIdentity, fn func(entry *Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[table]
	if !ok {
		return
	}
	patched := *entry
	patched.DisplayRows = append([]*codec.DisplayRow(nil), entry.DisplayRows...)
	fn(&patched)
	c.entries[table] = &patched
}
