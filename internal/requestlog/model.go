// Package requestlog keeps a per-user audit trail of API requests. Entries
// are queued by an HTTP middleware and written in batches by a Recorder.
package requestlog

import "errors"

var ErrEntryNotFound = errors.New("log entry not found")

type Entry struct {
	ID       string `json:"id"`
	Method   string `json:"method"`
	URI      string `json:"uri"`
	UserID   string `json:"user_id"` // empty for anonymous requests
	DateTime int64  `json:"date_time"`
}
