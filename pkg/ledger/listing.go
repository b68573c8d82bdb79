package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcclellann/pawnledger/pkg/models"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListParams selects one page of a listing. Zero values pick the defaults:
// page 1, DefaultPageLimit rows, newest created first.
type ListParams struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

func (p *ListParams) normalize() error {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	p.SortBy = strings.ToLower(strings.TrimSpace(p.SortBy))
	p.SortOrder = strings.ToLower(strings.TrimSpace(p.SortOrder))
	if p.SortBy == "" {
		p.SortBy = SortByCreatedAt
	}
	if p.SortOrder == "" {
		p.SortOrder = SortDesc
	}

	switch {
	case p.Page < 1:
		return models.NewValidationError("page", "must be at least 1")
	case p.Limit < 1 || p.Limit > MaxPageLimit:
		return models.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageLimit))
	case p.SortBy != SortByCreatedAt && p.SortBy != SortByUpdatedAt:
		return models.NewValidationError("sort_by", "must be created_at or updated_at")
	case p.SortOrder != SortAsc && p.SortOrder != SortDesc:
		return models.NewValidationError("sort_order", "must be asc or desc")
	}
	return nil
}

// Page is one slice of a listing. Total counts every match, not just the
// rows on this page.
type Page[T any] struct {
	Data  []T `json:"data"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func paginate[T any](all []T, p ListParams) *Page[T] {
	start := min((p.Page-1)*p.Limit, len(all))
	end := min(start+p.Limit, len(all))
	data := make([]T, end-start)
	copy(data, all[start:end])
	return &Page[T]{Data: data, Page: p.Page, Limit: p.Limit, Total: len(all)}
}

// sortRecords orders rows by the chosen timestamp. Ties fall back to the id
// so that pages stay stable between requests.
func sortRecords[T any](rows []T, p ListParams, keys func(T) (created, updated time.Time, id uuid.UUID)) {
	slices.SortFunc(rows, func(a, b T) int {
		ac, au, aid := keys(a)
		bc, bu, bid := keys(b)
		at, bt := ac, bc
		if p.SortBy == SortByUpdatedAt {
			at, bt = au, bu
		}
		c := at.Compare(bt)
		if c == 0 {
			c = strings.Compare(aid.String(), bid.String())
		}
		if p.SortOrder == SortDesc {
			return -c
		}
		return c
	})
}

func containsFold(s, substr string) bool {
	substr = strings.TrimSpace(substr)
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
