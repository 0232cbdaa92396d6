package review

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/billscan/internal/model"
)

// SortField selects the queue ordering key.
type SortField string

const (
	SortCreatedAt  SortField = "created_at"
	SortUpdatedAt  SortField = "updated_at"
	SortConfidence SortField = "confidence"
	// SortPriority orders by confidence ascending so the least certain cases
	// are reviewed first; the inverse of a plain confidence sort.
	SortPriority   SortField = "priority"
	SortVendorName SortField = "vendor_name"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// QueueFilter narrows the case set; all set predicates must hold (AND).
type QueueFilter struct {
	States        []model.ReviewState `json:"states,omitempty"`
	VendorID      string              `json:"vendor_id,omitempty"`
	MinConfidence *float64            `json:"min_confidence,omitempty"`
	MaxConfidence *float64            `json:"max_confidence,omitempty"`
	CreatedAfter  *time.Time          `json:"created_after,omitempty"`
	CreatedBefore *time.Time          `json:"created_before,omitempty"`
	ReviewedBy    string              `json:"reviewed_by,omitempty"`
}

// QueueResult is one page of filtered, sorted cases. Pagination is stateless;
// an out-of-range page yields an empty slice, not an error.
type QueueResult struct {
	Cases      []model.ReviewCase `json:"cases"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	TotalPages int                `json:"total_pages"`
}

// QueueStats aggregates the current case set.
type QueueStats struct {
	Total            int                       `json:"total"`
	ByState          map[model.ReviewState]int `json:"by_state"`
	AvgConfidence    float64                   `json:"avg_confidence"`
	OldestPendingAge time.Duration             `json:"oldest_pending_age"`
}

// QueueService filters, sorts, and paginates cases owned by a CaseService.
type QueueService struct {
	cases *CaseService
	now   func() time.Time
}

// NewQueueService creates a QueueService over the given case set.
func NewQueueService(cases *CaseService) *QueueService {
	return &QueueService{cases: cases, now: time.Now}
}

// WithClock substitutes the time source; intended for tests.
func (q *QueueService) WithClock(now func() time.Time) *QueueService {
	q.now = now
	return q
}

// Query returns one page of cases matching the filter.
func (q *QueueService) Query(filter QueueFilter, sortField SortField, order SortOrder, page, perPage int) QueueResult {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	matched := make([]model.ReviewCase, 0)
	for _, c := range q.cases.Cases() {
		if filter.matches(c) {
			matched = append(matched, c)
		}
	}

	sortCases(matched, sortField, order)

	total := len(matched)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))

	start := (page - 1) * perPage
	pageCases := []model.ReviewCase{}
	if start < total {
		end := min(start+perPage, total)
		pageCases = matched[start:end]
	}

	return QueueResult{
		Cases:      pageCases,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}

func (f QueueFilter) matches(c model.ReviewCase) bool {
	if len(f.States) > 0 {
		ok := false
		for _, s := range f.States {
			if c.State == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.VendorID != "" && c.VendorID != f.VendorID {
		return false
	}
	if f.MinConfidence != nil && c.Confidence < *f.MinConfidence {
		return false
	}
	if f.MaxConfidence != nil && c.Confidence > *f.MaxConfidence {
		return false
	}
	if f.CreatedAfter != nil && c.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && c.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	if f.ReviewedBy != "" && c.ReviewedBy != f.ReviewedBy {
		return false
	}
	return true
}

func sortCases(cases []model.ReviewCase, field SortField, order SortOrder) {
	less := func(a, b model.ReviewCase) bool { return a.CreatedAt.Before(b.CreatedAt) }

	switch field {
	case SortCreatedAt:
		// default
	case SortUpdatedAt:
		less = func(a, b model.ReviewCase) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case SortConfidence:
		less = func(a, b model.ReviewCase) bool { return a.Confidence < b.Confidence }
	case SortPriority:
		// Lowest confidence first; ties go to the oldest case so stale
		// uncertain work cannot starve.
		sort.SliceStable(cases, func(i, j int) bool {
			if cases[i].Confidence != cases[j].Confidence {
				return cases[i].Confidence < cases[j].Confidence
			}
			return cases[i].CreatedAt.Before(cases[j].CreatedAt)
		})
		return
	case SortVendorName:
		less = func(a, b model.ReviewCase) bool { return a.VendorName < b.VendorName }
	}

	sort.SliceStable(cases, func(i, j int) bool {
		if order == OrderDesc {
			return less(cases[j], cases[i])
		}
		return less(cases[i], cases[j])
	})
}

// Stats aggregates the full case set, ignoring pagination.
func (q *QueueService) Stats() QueueStats {
	stats := QueueStats{ByState: make(map[model.ReviewState]int)}

	var confSum float64
	var oldestPending *time.Time
	for _, c := range q.cases.Cases() {
		stats.Total++
		stats.ByState[c.State]++
		confSum += c.Confidence
		if c.State == model.StatePending {
			created := c.CreatedAt
			if oldestPending == nil || created.Before(*oldestPending) {
				oldestPending = &created
			}
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confSum / float64(stats.Total)
	}
	if oldestPending != nil {
		stats.OldestPendingAge = q.now().Sub(*oldestPending)
	}
	return stats
}
