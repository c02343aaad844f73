package audit

import (
	"fmt"
	"strings"
	"time"

	"identity-audit/pkg/utils"
)

const dateLayout = "2006-01-02"

// ParseQuery builds a ListQuery from raw query-string values. Dates are
// inclusive calendar days in UTC; RFC 3339 timestamps are accepted as exact
// bounds. Records are always ordered by created_at.
func ParseQuery(page, limit int, q, sortDir, createdFrom, createdTo string) (ListQuery, error) {
	out := ListQuery{Page: page, Limit: limit, Q: strings.TrimSpace(q), SortDir: sortDir}

	if createdFrom != "" {
		t, _, err := parseBound(createdFrom)
		if err != nil {
			return ListQuery{}, fmt.Errorf("%w: createdFrom: %v", ErrInvalidQuery, err)
		}
		out.CreatedFrom = t
	}
	if createdTo != "" {
		t, dateOnly, err := parseBound(createdTo)
		if err != nil {
			return ListQuery{}, fmt.Errorf("%w: createdTo: %v", ErrInvalidQuery, err)
		}
		if dateOnly {
			out.CreatedTo = t.Add(24 * time.Hour)
		} else {
			// Postgres keeps microseconds.
			out.CreatedTo = t.Add(time.Microsecond)
		}
	}
	if !out.CreatedFrom.IsZero() && !out.CreatedTo.IsZero() && !out.CreatedFrom.Before(out.CreatedTo) {
		return ListQuery{}, fmt.Errorf("%w: createdFrom is after createdTo", ErrInvalidQuery)
	}
	return out.Normalize(), nil
}

// Normalize clamps paging and the sort direction.
func (q ListQuery) Normalize() ListQuery {
	offset, limit := utils.Calculate(q.Page, q.Limit)
	q.Limit = limit
	q.Page = offset/limit + 1
	if strings.EqualFold(q.SortDir, "asc") {
		q.SortDir = "ASC"
	} else {
		q.SortDir = "DESC"
	}
	return q
}

func parseBound(s string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t.UTC(), false, nil
}
