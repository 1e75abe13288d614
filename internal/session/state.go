// Package session holds the connection and table selection state of the dashboard and the
// operations that change it.
package session

import (
	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/domain"
)

// Status is the connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// TableStatus is the sub-state of a connected session.
type TableStatus string

const (
	TableNone    TableStatus = "no-active-table"
	TableLoading TableStatus = "table-loading"
	TableReady   TableStatus = "table-ready"
	TableFailed  TableStatus = "table-failed"
)

// State is the set of published cells. Each cell changes independently.
type State struct {
	AppID       *Cell[string]
	AppIDs      *Cell[[]string]
	Tables      *Cell[[]domain.TableMeta]
	ActiveTable *Cell[*domain.TableMeta]
	Rows        *Cell[[]*codec.DisplayRow]
	Schema      *Cell[*domain.TableSchema]
	Privileges  *Cell[*domain.UserPrivileges]
	Connected   *Cell[bool]
	Status      *Cell[Status]
	TableStatus *Cell[TableStatus]
}

func newState() State {
	return State{
		AppID:       NewCell(""),
		AppIDs:      NewCell([]string{}),
		Tables:      NewCell([]domain.TableMeta{}),
		ActiveTable: NewCell[*domain.TableMeta](nil),
		Rows:        NewCell([]*codec.DisplayRow{}),
		Schema:      NewCell[*domain.TableSchema](nil),
		Privileges:  NewCell[*domain.UserPrivileges](nil),
		Connected:   NewCell(false),
		Status:      NewCell(StatusDisconnected),
		TableStatus: NewCell(TableNone),
	}
}

// reset restores every cell to its initial value.
func (s State) reset() {
	s.ActiveTable.Reset()
	s.Rows.Reset()
	s.Schema.Reset()
	s.TableStatus.Reset()
	s.Tables.Reset()
	s.Privileges.Reset()
	s.AppID.Reset()
	s.AppIDs.Reset()
	s.Connected.Reset()
	s.Status.Reset()
}
