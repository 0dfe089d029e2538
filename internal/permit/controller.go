package permit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/gophygital/permit-agent/internal/errors"
	"github.com/gophygital/permit-agent/internal/metrics"
	"github.com/gophygital/permit-agent/internal/pms"
	"github.com/gophygital/permit-agent/internal/requestid"
)

// ErrSnapshotStale reports that a mutation was accepted by the backend but
// the follow-up snapshot refresh failed. The local view no longer reflects
// server state and must not be trusted for action visibility.
var ErrSnapshotStale = errors.New("mutation applied but snapshot refresh failed")

// Backend is the PMS API surface the controller drives. *pms.Client
// satisfies it; tests substitute fakes.
type Backend interface {
	GetPermit(ctx context.Context, id string) (*pms.Snapshot, error)
	ConfirmPermitStatus(ctx context.Context, id string, approve bool, userID, levelID string) error
	UpdateRejectionReason(ctx context.Context, id, userID, reason string) error
	CreateExtension(ctx context.Context, req pms.ExtensionRequest) error
	ConfirmExtensionStatus(ctx context.Context, extensionID string, approve bool, userID, levelID, rejectionReason string) error
	CreateClosure(ctx context.Context, req pms.ClosureRequest) error
	ConfirmClosureStatus(ctx context.Context, closureID string, approve bool, userID, levelID, rejectionReason string) error
	UploadJSA(ctx context.Context, permitID string, files []pms.File) error
	AddComment(ctx context.Context, permitID, description string) error
}

// ActionRecord is one audited workflow submission.
type ActionRecord struct {
	PermitID     string
	Action       string
	ResourceType string
	ResourceID   string
	Actor        string
	Result       string // "ok" or "error"
	Detail       string
	RequestID    string
}

// AuditSink receives workflow action records. Persistence failures are
// logged, never propagated into the workflow result.
type AuditSink interface {
	RecordAction(ctx context.Context, rec ActionRecord) error
}

// Notifier is told about completed workflow actions. Implementations must
// not block the caller for long; delivery failures are their own problem.
type Notifier interface {
	NotifyWorkflow(ctx context.Context, ev WorkflowEvent)
}

// WorkflowEvent describes a workflow action for the notification channel.
type WorkflowEvent struct {
	PermitID   string
	Reference  string
	PermitType string
	Action     string
	Result     string
	Actor      string
	Detail     string
}

// Deps carries the controller's optional collaborators.
type Deps struct {
	Metrics  *metrics.Metrics
	Audit    AuditSink
	Notifier Notifier
}

// ExtendInput is the form state for the extend and resume drivers.
type ExtendInput struct {
	Reason      string
	Date        string
	AssigneeIDs []string
	Attachments []pms.File
}

// CloseInput is the form state for the closure driver.
type CloseInput struct {
	CompletionComment string
	Attachments       []pms.File
}

// ApprovalInput identifies the approval decision target.
type ApprovalInput struct {
	Resource ResourceType
	// ResourceID is the extension or closure ID, unused for the main permit.
	ResourceID string
	LevelID    string
	UserID     string
	// Reason is required for rejections, ignored on approve.
	Reason string
}

// Outcome tells the caller what to do with the view after an action.
type Outcome struct {
	// ReturnToPending means the user is sent back to the pending-approvals
	// list instead of staying on the permit view.
	ReturnToPending bool
	// Refreshed means the snapshot was re-fetched after the mutation.
	Refreshed bool
}

// Controller drives the lifecycle workflows for a single permit. It holds
// the one in-memory snapshot per view instance; after every mutation the
// snapshot is discarded and re-fetched rather than patched locally, because
// the backend owns the derived state (flags, approval aggregates).
type Controller struct {
	backend  Backend
	permitID string
	deps     Deps
	logger   zerolog.Logger

	mu       sync.Mutex
	inFlight map[Action]bool
	snapshot *pms.Snapshot
	flags    Flags
	state    State

	extendDraft  ExtendInput
	resumeDraft  ExtendInput
	closeDraft   CloseInput
	uploadDraft  []pms.File
	commentDraft string
}

// NewController creates a lifecycle controller for one permit.
func NewController(backend Backend, permitID string, deps Deps, logger zerolog.Logger) *Controller {
	return &Controller{
		backend:  backend,
		permitID: permitID,
		deps:     deps,
		logger:   logger.With().Str("component", "permit_controller").Str("permit_id", permitID).Logger(),
		inFlight: make(map[Action]bool),
	}
}

// Load fetches the initial snapshot. There is no automatic retry; a failed
// load is surfaced and the caller re-invokes manually.
func (c *Controller) Load(ctx context.Context) error {
	return c.refetch(ctx)
}

// Refresh discards the current snapshot and fetches a fresh one.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.refetch(ctx)
}

func (c *Controller) refetch(ctx context.Context) error {
	snap, err := c.backend.GetPermit(ctx, c.permitID)
	if err != nil {
		return err
	}

	state := ParseState(snap.Permit.Status)
	if state == StateUnknown && snap.Permit.Status != "" {
		c.logger.Warn().Str("status", snap.Permit.Status).Msg("unrecognized permit status label")
	}

	c.mu.Lock()
	c.snapshot = snap
	c.flags = NormalizeFlags(snap.VisibilityFlags)
	c.state = state
	c.mu.Unlock()

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordRefetch()
	}
	return nil
}

// Snapshot returns the current snapshot, or nil before the first Load.
// Callers treat it as read-only.
func (c *Controller) Snapshot() *pms.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// State returns the lifecycle state parsed from the snapshot's status label.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Flags returns the normalized visibility flags.
func (c *Controller) Flags() Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// Actions resolves the enabled actions for the given navigation context.
func (c *Controller) Actions(nav NavContext) []Action {
	c.mu.Lock()
	f := c.flags
	c.mu.Unlock()
	return ResolveActions(f, nav)
}

// begin marks an action in flight, rejecting a concurrent duplicate. This is
// the double-click guard; the backend's idempotency is not relied on.
func (c *Controller) begin(a Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[a] {
		return fmt.Errorf("%s: %w", a, perrors.ErrActionInFlight)
	}
	c.inFlight[a] = true
	return nil
}

func (c *Controller) end(a Action) {
	c.mu.Lock()
	delete(c.inFlight, a)
	c.mu.Unlock()
}

// --- Draft state ---
//
// Drafts mirror the input the user has typed. A failed submission preserves
// the draft for retry; a successful one clears it.

// SetExtendDraft stores the extend form input.
func (c *Controller) SetExtendDraft(in ExtendInput) {
	c.mu.Lock()
	c.extendDraft = in
	c.mu.Unlock()
}

// ExtendDraft returns the current extend form input.
func (c *Controller) ExtendDraft() ExtendInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extendDraft
}

// SetResumeDraft stores the resume form input.
func (c *Controller) SetResumeDraft(in ExtendInput) {
	c.mu.Lock()
	c.resumeDraft = in
	c.mu.Unlock()
}

// ResumeDraft returns the current resume form input.
func (c *Controller) ResumeDraft() ExtendInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeDraft
}

// SetCloseDraft stores the closure form input.
func (c *Controller) SetCloseDraft(in CloseInput) {
	c.mu.Lock()
	c.closeDraft = in
	c.mu.Unlock()
}

// CloseDraft returns the current closure form input.
func (c *Controller) CloseDraft() CloseInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeDraft
}

// SetUploadDraft stores the JSA files staged for upload.
func (c *Controller) SetUploadDraft(files []pms.File) {
	c.mu.Lock()
	c.uploadDraft = files
	c.mu.Unlock()
}

// UploadDraft returns the staged JSA files.
func (c *Controller) UploadDraft() []pms.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploadDraft
}

// SetCommentDraft stores the pending comment text.
func (c *Controller) SetCommentDraft(text string) {
	c.mu.Lock()
	c.commentDraft = text
	c.mu.Unlock()
}

// CommentDraft returns the pending comment text.
func (c *Controller) CommentDraft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commentDraft
}

// --- Sub-workflow drivers ---

// SubmitExtend validates and submits the extension draft, then re-fetches
// the snapshot. The draft is cleared only on success.
func (c *Controller) SubmitExtend(ctx context.Context) (Outcome, error) {
	in := c.ExtendDraft()
	if strings.TrimSpace(in.Reason) == "" {
		return Outcome{}, perrors.NewValidationError("reason_for_extension", "reason is required")
	}
	if in.Date == "" {
		return Outcome{}, perrors.NewValidationError("extension_date", "extension date is required")
	}

	out, err := c.mutate(ctx, ActionExtend, string(ResourceExtension), "", "", func(ctx context.Context) error {
		return c.backend.CreateExtension(ctx, pms.ExtensionRequest{
			PermitID:    c.permitID,
			Reason:      strings.TrimSpace(in.Reason),
			Date:        in.Date,
			AssigneeIDs: in.AssigneeIDs,
			Attachments: in.Attachments,
		})
	})
	if err == nil {
		c.SetExtendDraft(ExtendInput{})
	}
	return out, err
}

// SubmitResume validates and submits the resume draft. It is the extend
// request with the to_resume marker; the parallel structure is deliberate.
func (c *Controller) SubmitResume(ctx context.Context) (Outcome, error) {
	in := c.ResumeDraft()
	if strings.TrimSpace(in.Reason) == "" {
		return Outcome{}, perrors.NewValidationError("reason_for_resume", "reason is required")
	}
	if in.Date == "" {
		return Outcome{}, perrors.NewValidationError("resume_date", "resume date is required")
	}

	out, err := c.mutate(ctx, ActionResume, string(ResourceExtension), "", "", func(ctx context.Context) error {
		return c.backend.CreateExtension(ctx, pms.ExtensionRequest{
			PermitID:    c.permitID,
			Reason:      strings.TrimSpace(in.Reason),
			Date:        in.Date,
			ToResume:    true,
			AssigneeIDs: in.AssigneeIDs,
			Attachments: in.Attachments,
		})
	})
	if err == nil {
		c.SetResumeDraft(ExtendInput{})
	}
	return out, err
}

// SubmitClose validates and submits the closure draft.
func (c *Controller) SubmitClose(ctx context.Context) (Outcome, error) {
	in := c.CloseDraft()
	if strings.TrimSpace(in.CompletionComment) == "" {
		return Outcome{}, perrors.NewValidationError("completion_comment", "completion comment is required")
	}

	out, err := c.mutate(ctx, ActionComplete, string(ResourceClosure), "", "", func(ctx context.Context) error {
		return c.backend.CreateClosure(ctx, pms.ClosureRequest{
			PermitID:          c.permitID,
			CompletionComment: strings.TrimSpace(in.CompletionComment),
			Attachments:       in.Attachments,
		})
	})
	if err == nil {
		c.SetCloseDraft(CloseInput{})
	}
	return out, err
}

// SubmitJSAUpload uploads the staged JSA/form documents.
func (c *Controller) SubmitJSAUpload(ctx context.Context) (Outcome, error) {
	files := c.UploadDraft()
	if len(files) == 0 {
		return Outcome{}, perrors.NewValidationError("attachments", "at least one file is required")
	}

	out, err := c.mutate(ctx, ActionUploadJSA, string(ResourcePermit), c.permitID, "", func(ctx context.Context) error {
		return c.backend.UploadJSA(ctx, c.permitID, files)
	})
	if err == nil {
		c.SetUploadDraft(nil)
	}
	return out, err
}

// SubmitComment posts the pending comment to the permit's comment log.
func (c *Controller) SubmitComment(ctx context.Context) (Outcome, error) {
	text := strings.TrimSpace(c.CommentDraft())
	if text == "" {
		return Outcome{}, perrors.NewValidationError("description", "comment cannot be empty")
	}

	out, err := c.mutate(ctx, ActionComment, string(ResourcePermit), c.permitID, "", func(ctx context.Context) error {
		return c.backend.AddComment(ctx, c.permitID, text)
	})
	if err == nil {
		c.SetCommentDraft("")
	}
	return out, err
}

// Approve forwards an approval decision for the main permit, an extension,
// or a closure. Missing identifiers fail fast with no HTTP call. On success
// the caller is directed back to the pending-approvals list.
func (c *Controller) Approve(ctx context.Context, in ApprovalInput) (Outcome, error) {
	if err := validateApproval(in, false); err != nil {
		return Outcome{}, err
	}

	action, refetchAfter := approvalAction(in.Resource, true)
	out, err := c.decide(ctx, action, in, refetchAfter, func(ctx context.Context) error {
		switch in.Resource {
		case ResourcePermit:
			return c.backend.ConfirmPermitStatus(ctx, c.permitID, true, in.UserID, in.LevelID)
		case ResourceExtension:
			return c.backend.ConfirmExtensionStatus(ctx, in.ResourceID, true, in.UserID, in.LevelID, "")
		case ResourceClosure:
			return c.backend.ConfirmClosureStatus(ctx, in.ResourceID, true, in.UserID, in.LevelID, "")
		default:
			return perrors.NewValidationError("resource_type", "unknown resource type "+string(in.Resource))
		}
	})
	if err == nil && c.deps.Metrics != nil {
		c.deps.Metrics.RecordApproval(string(in.Resource), "approved")
	}
	return out, err
}

// Reject forwards a rejection. The reason is mandatory and collected before
// any request is issued. The main permit records the reason through its own
// endpoint; extensions and closures carry it on the status confirmation.
func (c *Controller) Reject(ctx context.Context, in ApprovalInput) (Outcome, error) {
	if err := validateApproval(in, true); err != nil {
		return Outcome{}, err
	}
	reason := strings.TrimSpace(in.Reason)

	action, refetchAfter := approvalAction(in.Resource, false)
	out, err := c.decide(ctx, action, in, refetchAfter, func(ctx context.Context) error {
		switch in.Resource {
		case ResourcePermit:
			return c.backend.UpdateRejectionReason(ctx, c.permitID, in.UserID, reason)
		case ResourceExtension:
			return c.backend.ConfirmExtensionStatus(ctx, in.ResourceID, false, in.UserID, in.LevelID, reason)
		case ResourceClosure:
			return c.backend.ConfirmClosureStatus(ctx, in.ResourceID, false, in.UserID, in.LevelID, reason)
		default:
			return perrors.NewValidationError("resource_type", "unknown resource type "+string(in.Resource))
		}
	})
	if err == nil && c.deps.Metrics != nil {
		c.deps.Metrics.RecordApproval(string(in.Resource), "rejected")
	}
	return out, err
}

func validateApproval(in ApprovalInput, rejecting bool) error {
	if in.LevelID == "" {
		return perrors.NewValidationError("level_id", "level_id is required for approval")
	}
	if in.UserID == "" {
		return perrors.NewValidationError("user_id", "user_id is required for approval")
	}
	if (in.Resource == ResourceExtension || in.Resource == ResourceClosure) && in.ResourceID == "" {
		return perrors.NewValidationError("resource_id", string(in.Resource)+" id is required")
	}
	if rejecting && strings.TrimSpace(in.Reason) == "" {
		return perrors.NewValidationError("rejection_reason", "a reason for rejection is required")
	}
	return nil
}

// approvalAction maps the decision to its action label and whether the view
// re-fetches before returning to the pending list. The main permit decision
// navigates away without a refetch; sub-object decisions refresh first.
func approvalAction(r ResourceType, approve bool) (Action, bool) {
	switch r {
	case ResourceExtension:
		if approve {
			return ActionApproveExtension, true
		}
		return ActionRejectExtension, true
	case ResourceClosure:
		if approve {
			return ActionApproveClosure, true
		}
		return ActionRejectClosure, true
	default:
		if approve {
			return ActionApprovePermit, false
		}
		return ActionRejectPermit, false
	}
}

// mutate runs a mutating workflow call under the in-flight guard, audits the
// result, and re-fetches the snapshot on success.
func (c *Controller) mutate(ctx context.Context, action Action, resourceType, resourceID, actor string, fn func(ctx context.Context) error) (Outcome, error) {
	if err := c.begin(action); err != nil {
		return Outcome{}, err
	}
	defer c.end(action)

	start := time.Now()
	err := fn(ctx)
	if c.deps.Metrics != nil {
		c.deps.Metrics.ObserveDuration(string(action), time.Since(start).Seconds())
	}
	c.record(ctx, action, resourceType, resourceID, actor, err)

	if err != nil {
		return Outcome{}, err
	}

	if refetchErr := c.refetch(ctx); refetchErr != nil {
		c.logger.Error().Err(refetchErr).Str("action", string(action)).Msg("post-mutation refetch failed")
		return Outcome{}, fmt.Errorf("%w: %w", ErrSnapshotStale, refetchErr)
	}
	return Outcome{Refreshed: true}, nil
}

// decide runs an approval decision under the in-flight guard. Unlike the
// form drivers, success always sends the user back to the pending list.
func (c *Controller) decide(ctx context.Context, action Action, in ApprovalInput, refetchAfter bool, fn func(ctx context.Context) error) (Outcome, error) {
	if err := c.begin(action); err != nil {
		return Outcome{}, err
	}
	defer c.end(action)

	start := time.Now()
	err := fn(ctx)
	if c.deps.Metrics != nil {
		c.deps.Metrics.ObserveDuration(string(action), time.Since(start).Seconds())
	}
	c.record(ctx, action, string(in.Resource), in.ResourceID, in.UserID, err)

	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{ReturnToPending: true}
	if refetchAfter {
		if refetchErr := c.refetch(ctx); refetchErr != nil {
			c.logger.Error().Err(refetchErr).Str("action", string(action)).Msg("post-decision refetch failed")
			return out, fmt.Errorf("%w: %w", ErrSnapshotStale, refetchErr)
		}
		out.Refreshed = true
	}
	return out, nil
}

// record writes metrics, the audit row, and the notification for one
// completed (or failed) workflow call.
func (c *Controller) record(ctx context.Context, action Action, resourceType, resourceID, actor string, err error) {
	status := "ok"
	detail := ""
	if err != nil {
		status = "error"
		detail = err.Error()
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordWorkflow(string(action), status)
		if err != nil {
			c.deps.Metrics.RecordError("controller", string(action))
		}
	}

	if c.deps.Audit != nil {
		rec := ActionRecord{
			PermitID:     c.permitID,
			Action:       string(action),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Actor:        actor,
			Result:       status,
			Detail:       detail,
			RequestID:    requestid.FromContext(ctx),
		}
		if auditErr := c.deps.Audit.RecordAction(ctx, rec); auditErr != nil {
			c.logger.Error().Err(auditErr).Str("action", string(action)).Msg("audit write failed")
		}
	}

	if c.deps.Notifier != nil {
		ev := WorkflowEvent{
			PermitID: c.permitID,
			Action:   string(action),
			Result:   status,
			Actor:    actor,
			Detail:   detail,
		}
		c.mu.Lock()
		if c.snapshot != nil {
			ev.Reference = c.snapshot.Permit.ReferenceNumber
			ev.PermitType = c.snapshot.Permit.PermitType
		}
		c.mu.Unlock()
		c.deps.Notifier.NotifyWorkflow(ctx, ev)
	}

	evt := c.logger.Info()
	if err != nil {
		evt = c.logger.Warn().Err(err)
	}
	evt.Str("action", string(action)).Str("result", status).Msg("workflow action")
}
