package models

// PageInfo describes one page of an ordered collection.
type PageInfo struct {
	TotalCount  int  `json:"total_count"`
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginate computes the slice bounds for a 1-based page over a
// collection of total items. Out-of-range pages yield an empty range,
// not an error.
func Paginate(total, page, pageSize int) (start, end int, info PageInfo) {
	totalPages := (total + pageSize - 1) / pageSize

	start = (page - 1) * pageSize
	end = start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	info = PageInfo{
		TotalCount:  total,
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
	return start, end, info
}

type ThreadPage struct {
	PageInfo
	Threads []ThreadSummary `json:"threads"`
}

type MessagePage struct {
	PageInfo
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`
}
