package utils

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Meta is the pagination envelope returned next to list data.
type Meta struct {
	TotalData   int `json:"totalData"`
	TotalPage   int `json:"totalPage"`
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
}

// Calculate clamps page/size and returns the SQL offset and limit. Pages past
// the addressable range are clamped to the last one, which is always empty.
func Calculate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	if maxPage := math.MaxInt / size; page > maxPage {
		page = maxPage
	}
	return (page - 1) * size, size
}

// NewMeta computes totalPage = ceil(total / perPage).
func NewMeta(total, page, perPage int) Meta {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return Meta{
		TotalData:   total,
		TotalPage:   (total + perPage - 1) / perPage,
		CurrentPage: page,
		PerPage:     perPage,
	}
}
