package shared

// RowError reports a failed import row, numbered from 1.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarises a best-effort bulk import.
type ImportResult struct {
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors"`
}

// NewImportResult prepares a result for total rows.
func NewImportResult(total int) ImportResult {
	return ImportResult{Total: total, Errors: []RowError{}}
}

// Fail records a failed row.
func (r *ImportResult) Fail(row int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{Row: row, Message: err.Error()})
}
