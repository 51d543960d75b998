package recorder

import "fmt"

const (
	// DefaultLimit is the number of records returned when a query sets none.
	DefaultLimit = 100

	// MaxLimit is the largest page a single query may request.
	MaxLimit = 10000
)

// ValidSortFields contains the fields records can be sorted by.
var ValidSortFields = map[string]bool{
	"recorded_at": true,
	"score":       true,
	"artifact":    true,
	"duration":    true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate checks the pagination, sorting and time range of q.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start time %s is after end time %s", q.StartTime, q.EndTime))
	}
	if q.MinScore != nil && *q.MinScore < 0 {
		return NewQueryError(q, fmt.Errorf("min score must be >= 0, got %v", *q.MinScore))
	}
	return nil
}

// Sort returns the effective sort field and order, defaulting to newest
// first.
func (q *Query) Sort() (field string, desc bool) {
	field = q.SortBy
	if field == "" {
		field = "recorded_at"
	}
	return field, q.SortOrder != "asc"
}

// PageSize returns the effective limit.
func (q *Query) PageSize() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return DefaultLimit
}
