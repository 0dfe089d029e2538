package gateway

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/gophygital/permit-agent/internal/errors"
	"github.com/gophygital/permit-agent/internal/health"
	"github.com/gophygital/permit-agent/internal/lru"
	"github.com/gophygital/permit-agent/internal/permit"
	"github.com/gophygital/permit-agent/internal/pms"
	"github.com/gophygital/permit-agent/internal/requestid"
	"github.com/gophygital/permit-agent/internal/store"
)

// DocumentBackend serves the permit document downloads and supplier mail
// trigger. *pms.Client satisfies it.
type DocumentBackend interface {
	DownloadPrintPDF(ctx context.Context, permitID string) ([]byte, error)
	DownloadJSAPDF(ctx context.Context, permitID string) ([]byte, error)
	SendSupplierMail(ctx context.Context, permitID string) error
}

// AuditReader exposes the local audit trail to the status endpoints.
// *store.Store satisfies it.
type AuditReader interface {
	ListActions(ctx context.Context, permitID string, limit int) ([]*store.ActionAudit, error)
	CountActions(ctx context.Context) (int64, error)
	DBSizeBytes() (int64, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	backend permit.Backend
	docs    DocumentBackend
	deps    permit.Deps
	checker *health.Checker
	audits  AuditReader
	logger  zerolog.Logger

	environment     string
	pendingListPath string
	startTime       time.Time

	// One controller per permit so the in-flight guard holds across
	// concurrent requests for the same permit. LRU-bounded; idle permits
	// fall out and get a fresh controller on the next touch.
	controllers *lru.Cache[string, *permit.Controller]
}

// NewHandlers creates a new Handlers instance. docs and audits may be nil.
func NewHandlers(backend permit.Backend, docs DocumentBackend, deps permit.Deps, checker *health.Checker, audits AuditReader, environment, pendingListPath string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		backend:         backend,
		docs:            docs,
		deps:            deps,
		checker:         checker,
		audits:          audits,
		logger:          logger.With().Str("component", "handlers").Logger(),
		environment:     environment,
		pendingListPath: pendingListPath,
		startTime:       time.Now(),
		controllers:     lru.New[string, *permit.Controller](controllerCacheSize),
	}
}

// controllerCacheSize bounds the live controller set. Evicted permits just
// lose their draft state; the backend remains the source of truth.
const controllerCacheSize = 512

func (h *Handlers) controller(permitID string) *permit.Controller {
	ctrl, _, _ := h.controllers.GetOrPut(permitID, func() *permit.Controller {
		return permit.NewController(h.backend, permitID, h.deps, h.logger)
	})
	return ctrl
}

func (h *Handlers) requestCtx(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if rid, ok := c.Locals("request_id").(string); ok && rid != "" {
		ctx = requestid.WithRequestID(ctx, rid)
	}
	return ctx
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker != nil && !h.checker.IsReady(h.requestCtx(c)) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"checks": h.checker.Cached(),
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// GetPermit handles GET /api/v1/permits/:id. Every call re-fetches from the
// backend; the agent never serves a cached permit.
func (h *Handlers) GetPermit(c *fiber.Ctx) error {
	ctrl := h.controller(c.Params("id"))
	if err := ctrl.Refresh(h.requestCtx(c)); err != nil {
		return h.errorResponse(c, err)
	}

	nav := permit.NavContextFromQuery(func(key string) string { return c.Query(key) })
	snap := ctrl.Snapshot()

	resp := PermitResponse{
		Snapshot:       snap,
		State:          ctrl.State().String(),
		Actions:        ctrl.Actions(nav),
		PermitChips:    permit.Chips(snap.ApprovalLevels),
		ClosureVisible: permit.ClosureVisible(snap.Closure),
	}
	if snap.Closure != nil {
		resp.ClosureChips = permit.Chips(snap.Closure.ApprovalLevels)
	}
	return c.JSON(resp)
}

// Extend handles POST /api/v1/permits/:id/extend (multipart form).
func (h *Handlers) Extend(c *fiber.Ctx) error {
	in, err := parseExtendForm(c)
	if err != nil {
		return h.errorResponse(c, err)
	}

	ctrl := h.controller(c.Params("id"))
	ctrl.SetExtendDraft(in)
	out, err := ctrl.SubmitExtend(h.requestCtx(c))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.outcomeResponse(c, out)
}

// Resume handles POST /api/v1/permits/:id/resume (multipart form).
func (h *Handlers) Resume(c *fiber.Ctx) error {
	in, err := parseExtendForm(c)
	if err != nil {
		return h.errorResponse(c, err)
	}

	ctrl := h.controller(c.Params("id"))
	ctrl.SetResumeDraft(in)
	out, err := ctrl.SubmitResume(h.requestCtx(c))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.outcomeResponse(c, out)
}

// Close handles POST /api/v1/permits/:id/close (multipart form).
func (h *Handlers) Close(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"multipart form expected: "+err.Error())
	}

	files, err := readFormFiles(form, "attachments")
	if err != nil {
		return h.errorResponse(c, err)
	}

	ctrl := h.controller(c.Params("id"))
	ctrl.SetCloseDraft(permit.CloseInput{
		CompletionComment: formValue(form, "completion_comment"),
		Attachments:       files,
	})
	out, err := ctrl.SubmitClose(h.requestCtx(c))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.outcomeResponse(c, out)
}

// UploadJSA handles PUT /api/v1/permits/:id/jsa (multipart form).
func (h *Handlers) UploadJSA(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"multipart form expected: "+err.Error())
	}

	files, err := readFormFiles(form, "attachments")
	if err != nil {
		return h.errorResponse(c, err)
	}

	ctrl := h.controller(c.Params("id"))
	ctrl.SetUploadDraft(files)
	out, err := ctrl.SubmitJSAUpload(h.requestCtx(c))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.outcomeResponse(c, out)
}

// AddComment handles POST /api/v1/permits/:id/comments.
func (h *Handlers) AddComment(c *fiber.Ctx) error {
	var req CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	ctrl := h.controller(c.Params("id"))
	ctrl.SetCommentDraft(req.Description)
	out, err := ctrl.SubmitComment(h.requestCtx(c))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.outcomeResponse(c, out)
}

// Approval handles POST /api/v1/permits/:id/approval.
func (h *Handlers) Approval(c *fiber.Ctx) error {
	var req ApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	in := permit.ApprovalInput{
		Resource:   permit.ResourceType(req.ResourceType),
		ResourceID: req.ResourceID,
		LevelID:    req.LevelID,
		UserID:     req.UserID,
		Reason:     req.Reason,
	}
	if in.Resource == "" {
		in.Resource = permit.ResourcePermit
	}
	if in.UserID == "" {
		if sub, ok := c.Locals("auth_subject").(string); ok {
			in.UserID = sub
		}
	}

	ctrl := h.controller(c.Params("id"))
	var out permit.Outcome
	var err error
	switch req.Decision {
	case "approve":
		out, err = ctrl.Approve(h.requestCtx(c), in)
	case "reject":
		out, err = ctrl.Reject(h.requestCtx(c), in)
	default:
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_decision", "Bad Request",
			"decision must be approve or reject")
	}
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.outcomeResponse(c, out)
}

// PrintPDF handles GET /api/v1/permits/:id/print.pdf.
func (h *Handlers) PrintPDF(c *fiber.Ctx) error {
	if h.docs == nil {
		return h.errorResponse(c, perrors.ErrNotConfigured)
	}
	data, err := h.docs.DownloadPrintPDF(h.requestCtx(c), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.Send(data)
}

// PrintJSAPDF handles GET /api/v1/permits/:id/print-jsa.pdf.
func (h *Handlers) PrintJSAPDF(c *fiber.Ctx) error {
	if h.docs == nil {
		return h.errorResponse(c, perrors.ErrNotConfigured)
	}
	data, err := h.docs.DownloadJSAPDF(h.requestCtx(c), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.Send(data)
}

// SendMail handles POST /api/v1/permits/:id/mail.
func (h *Handlers) SendMail(c *fiber.Ctx) error {
	if h.docs == nil {
		return h.errorResponse(c, perrors.ErrNotConfigured)
	}
	if err := h.docs.SendSupplierMail(h.requestCtx(c), c.Params("id")); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"status": "sent"})
}

// ListAudits handles GET /api/v1/permits/:id/audits.
func (h *Handlers) ListAudits(c *fiber.Ctx) error {
	if h.audits == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"store_disabled", "Not Found",
			"Local audit store is not configured")
	}

	limit := c.QueryInt("limit", 50)
	rows, err := h.audits.ListActions(h.requestCtx(c), c.Params("id"), limit)
	if err != nil {
		return h.errorResponse(c, err)
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, AuditEntry{
			ID:           r.ID,
			PermitID:     r.PermitID,
			Action:       r.Action,
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			Actor:        r.Actor,
			Result:       r.Result,
			Detail:       r.Detail,
			RequestID:    r.RequestID,
			CreatedAt:    r.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"audits": entries})
}

// Status handles GET /api/v1/status.
func (h *Handlers) Status(c *fiber.Ctx) error {
	resp := StatusResponse{
		Status:        "ok",
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		PMSConfigured: h.backend != nil,
		StoreEnabled:  h.audits != nil,
	}
	if h.audits != nil {
		if n, err := h.audits.CountActions(h.requestCtx(c)); err == nil {
			resp.AuditCount = n
		}
		if size, err := h.audits.DBSizeBytes(); err == nil {
			resp.DBSizeBytes = size
		}
	}
	return c.JSON(resp)
}

func (h *Handlers) outcomeResponse(c *fiber.Ctx, out permit.Outcome) error {
	resp := ActionOutcome{
		Status:          "ok",
		ReturnToPending: out.ReturnToPending,
		Refreshed:       out.Refreshed,
	}
	if out.ReturnToPending {
		resp.PendingListPath = h.pendingListPath
	}
	return c.JSON(resp)
}

// errorResponse maps workflow and backend errors onto problem responses.
func (h *Handlers) errorResponse(c *fiber.Ctx, err error) error {
	var verr *perrors.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(ProblemDetail{
			Type:     "validation_failed",
			Title:    "Bad Request",
			Status:   fiber.StatusBadRequest,
			Detail:   verr.Message,
			Instance: c.Path(),
			Field:    verr.Field,
		})
	}

	switch {
	case errors.Is(err, perrors.ErrActionInFlight):
		return problemResponse(c, fiber.StatusConflict,
			"action_in_flight", "Conflict",
			"The same action is already being processed")
	case errors.Is(err, permit.ErrSnapshotStale):
		return problemResponse(c, fiber.StatusBadGateway,
			"snapshot_stale", "Bad Gateway",
			"The action was applied but the permit could not be re-fetched; reload before acting again")
	case errors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			perrors.UserMessage(err))
	case errors.Is(err, perrors.ErrNotConfigured):
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"backend_not_configured", "Service Unavailable",
			"The permit backend is not configured")
	case errors.Is(err, perrors.ErrTimeout):
		return problemResponse(c, fiber.StatusGatewayTimeout,
			"backend_timeout", "Gateway Timeout",
			perrors.UserMessage(err))
	case errors.Is(err, perrors.ErrRateLimit), errors.Is(err, perrors.ErrUnavailable):
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"backend_unavailable", "Service Unavailable",
			perrors.UserMessage(err))
	}

	var apiErr *perrors.APIError
	if errors.As(err, &apiErr) {
		status := fiber.StatusBadGateway
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		return problemResponse(c, status,
			"backend_error", "Backend Error",
			perrors.UserMessage(err))
	}

	h.logger.Error().Err(err).Str("path", c.Path()).Msg("unexpected handler error")
	return problemResponse(c, fiber.StatusInternalServerError,
		"internal_error", "Internal Server Error",
		perrors.UserMessage(err))
}

// --- multipart helpers ---

func parseExtendForm(c *fiber.Ctx) (permit.ExtendInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return permit.ExtendInput{}, perrors.NewValidationError("body", "multipart form expected: "+err.Error())
	}

	files, err := readFormFiles(form, "attachments")
	if err != nil {
		return permit.ExtendInput{}, err
	}
	return permit.ExtendInput{
		Reason:      formValue(form, "reason"),
		Date:        formValue(form, "date"),
		AssigneeIDs: form.Value["assignee_ids"],
		Attachments: files,
	}, nil
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func readFormFiles(form *multipart.Form, key string) ([]pms.File, error) {
	var files []pms.File
	for _, fh := range form.File[key] {
		f, err := fh.Open()
		if err != nil {
			return nil, perrors.NewValidationError(key, "unreadable file "+fh.Filename)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, perrors.NewValidationError(key, "unreadable file "+fh.Filename)
		}
		files = append(files, pms.File{Filename: fh.Filename, Content: content})
	}
	return files, nil
}
