package shared

// Pagination describes one page of a document listing (MRRs, purchase
// orders, receipts, ledger statements).
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes page metadata from the caller's page/size and the
// total row count reported by the repository.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := total / perPage
	if total%perPage != 0 {
		totalPages++
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// HasNext reports whether another page follows.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}
