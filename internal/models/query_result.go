// internal/models/query_result.go
package models

// Record is one business record returned by an executor.
type Record struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Account   string  `json:"account,omitempty"`
	Stage     string  `json:"stage,omitempty"`
	Owner     string  `json:"owner,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	CloseDate string  `json:"closeDate,omitempty"`
}

// QueryResult is what an executor returns for a resolved intent.
type QueryResult struct {
	Intent          IntentTag `json:"intent"`
	Source          string    `json:"source"`
	Summary         string    `json:"summary"`
	Records         []Record  `json:"records"`
	RowCount        int       `json:"rowCount"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
}

// RecordRefs returns the names a later turn can point at ("the second one").
// Account names are preferred so the reference resolves to an account.
func (r *QueryResult) RecordRefs() []string {
	if r == nil {
		return nil
	}
	refs := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		switch {
		case rec.Account != "":
			refs = append(refs, rec.Account)
		case rec.Name != "":
			refs = append(refs, rec.Name)
		}
	}
	return refs
}
