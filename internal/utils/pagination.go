// Package utils holds small helpers shared across layers that carry no
// domain logic.
package utils

import "strconv"

// Page bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Window is a normalized 1-based page request.
type Window struct {
	Page     int
	PageSize int
}

// NewWindow clamps page to >= 1 and pageSize to [1, MaxPageSize]; a
// non-positive pageSize selects DefaultPageSize.
func NewWindow(page, pageSize int) Window {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return Window{Page: page, PageSize: pageSize}
}

// ParseWindow builds a Window from raw query values; unparsable values fall
// back to the defaults.
func ParseWindow(page, pageSize string) Window {
	return NewWindow(atoiDefault(page, 1), atoiDefault(pageSize, DefaultPageSize))
}

// Offset is the number of rows before this page.
func (w Window) Offset() int { return (w.Page - 1) * w.PageSize }

// TotalPages is the number of pages needed for total rows.
func (w Window) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(w.PageSize) - 1) / int64(w.PageSize))
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
