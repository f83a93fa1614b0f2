package models

// BulkOperation is a control command applied to a set of accounts.
type BulkOperation string

const (
	BulkStart          BulkOperation = "start"
	BulkPause          BulkOperation = "pause"
	BulkResume         BulkOperation = "resume"
	BulkStop           BulkOperation = "stop"
	BulkCheckShadowban BulkOperation = "check_shadowban"
	BulkResetProgress  BulkOperation = "reset_progress"
)

// Valid reports whether the operation is one the coordinator supports.
func (op BulkOperation) Valid() bool {
	switch op {
	case BulkStart, BulkPause, BulkResume, BulkStop, BulkCheckShadowban, BulkResetProgress:
		return true
	}
	return false
}

// BulkError records one per-account failure inside a batch.
type BulkError struct {
	AccountID string `json:"account_id"`
	Message   string `json:"message"`
}

// BulkResult reports the outcome of a fleet operation. Partial failure is
// always visible: one account's error never hides the rest of the batch.
type BulkResult struct {
	Operation    BulkOperation `json:"operation"`
	Total        int           `json:"total"`
	Successful   int           `json:"successful"`
	Failed       int           `json:"failed"`
	Errors       []BulkError   `json:"errors,omitempty"`
	Shadowbanned int           `json:"shadowbanned,omitempty"`
}
