// Package gateway exposes the permit workflow over a small authenticated
// HTTP API. It is the process boundary: validation, auth, rate limiting
// and error shaping live here, the workflow semantics live in permit.
package gateway

import (
	"github.com/gophygital/permit-agent/internal/permit"
	"github.com/gophygital/permit-agent/internal/pms"
)

// ProblemDetail is an RFC 7807 error response.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	Field    string `json:"field,omitempty"`
}

// PermitResponse is the composed permit view: the backend snapshot plus
// the derived state, action set, and approval chips.
type PermitResponse struct {
	Snapshot *pms.Snapshot   `json:"snapshot"`
	State    string          `json:"state"`
	Actions  []permit.Action `json:"actions"`

	PermitChips    []permit.Chip `json:"permit_approval_chips"`
	ClosureChips   []permit.Chip `json:"closure_approval_chips,omitempty"`
	ClosureVisible bool          `json:"closure_visible"`
}

// ActionOutcome reports the result of a workflow submission.
type ActionOutcome struct {
	Status          string `json:"status"`
	ReturnToPending bool   `json:"return_to_pending"`
	PendingListPath string `json:"pending_list_path,omitempty"`
	Refreshed       bool   `json:"refreshed"`
}

// CommentRequest is the payload for POST /api/v1/permits/:id/comments.
type CommentRequest struct {
	Description string `json:"description"`
}

// ApprovalRequest is the payload for POST /api/v1/permits/:id/approval.
type ApprovalRequest struct {
	Decision     string `json:"decision"` // "approve" or "reject"
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	LevelID      string `json:"level_id"`
	UserID       string `json:"user_id"`
	Reason       string `json:"reason,omitempty"`
}

// AuditEntry is one row of the local action audit trail.
type AuditEntry struct {
	ID           string `json:"id"`
	PermitID     string `json:"permit_id"`
	Action       string `json:"action"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Actor        string `json:"actor,omitempty"`
	Result       string `json:"result"`
	Detail       string `json:"detail,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// StatusResponse is the agent status summary.
type StatusResponse struct {
	Status        string `json:"status"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	PMSConfigured bool   `json:"pms_configured"`
	StoreEnabled  bool   `json:"store_enabled"`
	AuditCount    int64  `json:"audit_count,omitempty"`
	DBSizeBytes   int64  `json:"db_size_bytes,omitempty"`
}
