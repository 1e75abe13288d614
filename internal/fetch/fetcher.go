// Package fetch downloads every row of a table by following the server's resume cursors.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Annany2002/odkx-manager/internal/core"
	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/logger"
)

var customLog = logger.NewLogger()

// ErrMissingCursor is returned when the server reports more results without a resume cursor.
var ErrMissingCursor = errors.New("server reported more rows but no resume cursor")

// RowLister returns one page of rows.
type RowLister interface {
	Rows(ctx context.Context, appID, tableID, schemaETag string, fetchLimit int, cursor string) (*domain.RowPage, error)
}

// Fetcher pages through row listings.
type Fetcher struct {
	lister RowLister
	log    logrus.FieldLogger
}

// NewFetcher creates a Fetcher.
func NewFetcher(lister RowLister) *Fetcher {
	return &Fetcher{lister: lister, log: customLog}
}

// AllRows requests pages strictly one after another until the server reports no more
// results. Rows keep server order. The returned page carries the last page's fields with the
// accumulated rows. Any page failure aborts the fetch and no rows are returned.
func (f *Fetcher) AllRows(ctx context.Context, appID string, table domain.TableIdentity, limit int) (*domain.RowPage, error) {
	if limit < 1 {
		limit = core.DefaultFetchLimit
	}

	var rows []domain.WireRow
	cursor := ""
	for pageNo := 1; ; pageNo++ {
		page, err := f.lister.Rows(ctx, appID, table.TableID, table.SchemaETag, limit, cursor)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Rows...)

		if !page.HasMoreResults {
			f.log.WithFields(logrus.Fields{
				"table": table.TableID,
				"pages": pageNo,
				"rows":  len(rows),
			}).Debug("Fetch: all rows downloaded")
			result := *page
			result.Rows = rows
			if result.Rows == nil {
				result.Rows = []domain.WireRow{}
			}
			return &result, nil
		}
		if page.WebSafeResumeCursor == "" {
			return nil, fmt.Errorf("table %s page %d: %w", table.TableID, pageNo, ErrMissingCursor)
		}
		cursor = page.WebSafeResumeCursor
	}
}
