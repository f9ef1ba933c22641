package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps pageSize.
	DefaultMaxPageSize = 200
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Cursor marks where the previous page stopped in a newest-first list.
type Cursor struct {
	AfterID string `json:"after"`
}

// Params are the paging values of a list request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Options bound what Parse accepts.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Parse reads pageSize and pageToken from values.
func Parse(values url.Values, opts Options) (Params, error) {
	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	if raw := strings.TrimSpace(values.Get("pageToken")); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = raw
		params.Cursor = cursor
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	defaultPageSize = min(defaultPageSize, maxPageSize)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultPageSize, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	return min(value, maxPageSize), nil
}

// Slice cuts the page described by params out of items, which must keep a
// stable order between requests. A cursor whose id is no longer present
// restarts from the top. next is empty on the last page.
func Slice[T any](items []T, params Params, id func(T) string) (page []T, next string, err error) {
	start := 0
	if after := params.Cursor.AfterID; after != "" {
		for i, item := range items {
			if id(item) == after {
				start = i + 1
				break
			}
		}
	}
	size := params.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	end := min(start+size, len(items))
	page = items[start:end]
	if end < len(items) && len(page) > 0 {
		next, err = EncodeToken(Cursor{AfterID: id(page[len(page)-1])})
	}
	return page, next, err
}
