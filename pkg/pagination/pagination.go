package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds limit/offset pagination parameters extracted from query strings.
type Params struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DefaultParams returns sensible pagination defaults.
func DefaultParams() Params {
	return Params{Limit: DefaultLimit}
}

// FromRequest extracts ?limit= and ?offset= from an HTTP request. Invalid or
// out-of-range values fall back to the defaults; limit is capped at MaxLimit.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = min(v, MaxLimit)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		p.Offset = v
	}
	return p
}

// Result wraps a paginated response.
type Result[T any] struct {
	Items      []T  `json:"items"`
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// NewResult creates a paginated result. A nil slice is encoded as [].
func NewResult[T any](items []T, totalCount int, params Params) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{
		Items:      items,
		TotalCount: totalCount,
		Limit:      params.Limit,
		Offset:     params.Offset,
		HasMore:    params.Offset+len(items) < totalCount,
	}
}
