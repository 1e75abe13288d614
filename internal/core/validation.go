// internal/core/validation.go
package core

import (
	"regexp"
	"strings"
)

// ODK-X table ids must start with a letter and may contain letters, digits and underscores.
var tableIDRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// App ids are path segments on the sync server (e.g. "default").
var appIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

// Column names the ODK-X database reserves for row metadata.
var reservedTableIDs = map[string]bool{
	"ROW_ETAG":   true,
	"SYNC_STATE": true,
	"CONFLICT":   true,
	"SAVEPOINT":  true,
	"FILTER":     true,
	"ID":         true,
}

const maxIdentifierLength = 64

// IsValidTableID checks a table id before it is placed into a request path.
func IsValidTableID(tableID string) bool {
	if len(tableID) == 0 || len(tableID) > maxIdentifierLength {
		return false
	}
	if reservedTableIDs[strings.ToUpper(tableID)] {
		return false
	}
	return tableIDRegex.MatchString(tableID)
}

// IsValidAppID checks an app id returned by, or sent to, the sync server.
func IsValidAppID(appID string) bool {
	return len(appID) > 0 && len(appID) <= maxIdentifierLength && appIDRegex.MatchString(appID)
}
