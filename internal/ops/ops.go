// Package ops implements the recording store operations on top of the
// SQLite queries in package db. Every surface (coordinator, HTTP, MCP,
// CLI) goes through these functions.
package ops

import (
	"strings"

	"github.com/hpungsan/tabrec/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// paginate applies limit/offset bounds and reports the window over total items.
func paginate(limit, offset, total int) (start, end int, p Pagination) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset = max(offset, 0)

	start = min(offset, total)
	end = min(start+limit, total)
	return start, end, Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: end < total,
		Total:   total,
	}
}

// requireID trims and validates an identifier argument.
func requireID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest(kind + " must not be empty")
	}
	return id, nil
}
