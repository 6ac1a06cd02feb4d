package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/renbou/tlxdispatch/update"
)

// KindUnknown marks updates of kinds which the dispatcher doesn't handle.
const KindUnknown update.Kind = -1

// UpdateInfo contains info about a received update.
type UpdateInfo struct {
	ID   int
	Kind update.Kind
	// Name is the field name under which the update content was received
	Name string
}

type GetUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// Response is the envelope of every Bot API response.
type Response struct {
	Ok          bool                `json:"ok"`
	Result      any                 `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// Error is a non-ok response returned by the Bot API.
type Error struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram api %s: %q (code %d)", e.Method, e.Description, e.Code)
}

// Unrecoverable reports whether retrying the same request can never succeed,
// which is the case for a revoked or invalid token.
func (e *Error) Unrecoverable() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusNotFound
}
