package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gophygital/permit-agent/internal/health"
	"github.com/gophygital/permit-agent/internal/permit"
	"github.com/gophygital/permit-agent/internal/pms"
)

type stubBackend struct {
	mu         sync.Mutex
	snapshot   *pms.Snapshot
	calls      []string
	extensions []pms.ExtensionRequest
	comments   []string
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		snapshot: &pms.Snapshot{
			Permit: pms.Permit{ID: 77, ReferenceNumber: "PTW-77", Status: "Approved"},
			ApprovalLevels: []pms.ApprovalLevel{
				{Name: "Safety Officer", Status: "approved"},
				{Name: "Site Manager", Status: "pending"},
			},
			VisibilityFlags: pms.VisibilityFlags{
				ShowEditButton:                 true,
				ShowExtendPermitApprovedButton: true,
			},
		},
	}
}

func (s *stubBackend) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *stubBackend) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (s *stubBackend) GetPermit(ctx context.Context, id string) (*pms.Snapshot, error) {
	s.record("GetPermit")
	return s.snapshot, nil
}

func (s *stubBackend) ConfirmPermitStatus(ctx context.Context, id string, approve bool, userID, levelID string) error {
	s.record("ConfirmPermitStatus")
	return nil
}

func (s *stubBackend) UpdateRejectionReason(ctx context.Context, id, userID, reason string) error {
	s.record("UpdateRejectionReason")
	return nil
}

func (s *stubBackend) CreateExtension(ctx context.Context, req pms.ExtensionRequest) error {
	s.record("CreateExtension")
	s.mu.Lock()
	s.extensions = append(s.extensions, req)
	s.mu.Unlock()
	return nil
}

func (s *stubBackend) ConfirmExtensionStatus(ctx context.Context, extensionID string, approve bool, userID, levelID, rejectionReason string) error {
	s.record("ConfirmExtensionStatus")
	return nil
}

func (s *stubBackend) CreateClosure(ctx context.Context, req pms.ClosureRequest) error {
	s.record("CreateClosure")
	return nil
}

func (s *stubBackend) ConfirmClosureStatus(ctx context.Context, closureID string, approve bool, userID, levelID, rejectionReason string) error {
	s.record("ConfirmClosureStatus")
	return nil
}

func (s *stubBackend) UploadJSA(ctx context.Context, permitID string, files []pms.File) error {
	s.record("UploadJSA")
	return nil
}

func (s *stubBackend) AddComment(ctx context.Context, permitID, description string) error {
	s.record("AddComment")
	s.mu.Lock()
	s.comments = append(s.comments, description)
	s.mu.Unlock()
	return nil
}

func testApp(t *testing.T, backend permit.Backend, authMode, apiKey, jwtSecret string) *fiber.App {
	t.Helper()
	logger := zerolog.Nop()
	checker := health.NewChecker(logger)

	handlers := NewHandlers(backend, nil, permit.Deps{}, checker, nil, "test", "/safety/permit/pending-approvals", logger)

	srv := NewServer(ServerConfig{
		ListenAddr: ":0",
		AuthConfig: AuthConfig{Mode: authMode, APIKey: apiKey, JWTSecret: jwtSecret},
		RateLimit:  RateLimitConfig{RPS: 100, Burst: 200},
	}, handlers, nil, logger)

	return srv.App()
}

func TestServer_Healthz(t *testing.T) {
	app := testApp(t, newStubBackend(), "none", "", "")

	req, _ := http.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_AuthRequired(t *testing.T) {
	app := testApp(t, newStubBackend(), "api-key", "sekrit", "")

	req, _ := http.NewRequest("GET", "/api/v1/permits/77", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "missing_auth", problem.Type)

	// Probes stay open.
	req, _ = http.NewRequest("GET", "/healthz", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_APIKeyAccepted(t *testing.T) {
	app := testApp(t, newStubBackend(), "api-key", "sekrit", "")

	req, _ := http.NewRequest("GET", "/api/v1/permits/77", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_JWTAccepted(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "jwt", "", "jwt-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", "/api/v1/permits/77", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A token signed with another key is refused.
	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"})
	badSigned, _ := bad.SignedString([]byte("other-key"))
	req, _ = http.NewRequest("GET", "/api/v1/permits/77", nil)
	req.Header.Set("Authorization", "Bearer "+badSigned)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetPermit_ComposedView(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	req, _ := http.NewRequest("GET", "/api/v1/permits/77", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body PermitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "approved", body.State)
	assert.Equal(t, []permit.Action{permit.ActionEdit, permit.ActionExtend}, body.Actions)
	require.Len(t, body.PermitChips, 2)
	assert.Equal(t, permit.ToneSuccess, body.PermitChips[0].Tone)
	assert.False(t, body.ClosureVisible)
}

func TestGetPermit_ApprovalContextCollapsesActions(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	req, _ := http.NewRequest("GET", "/api/v1/permits/77?type=approval&level_id=3&user_id=42&resource_type=permit", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body PermitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []permit.Action{permit.ActionApprovePermit, permit.ActionRejectPermit}, body.Actions)
}

func TestGetPermit_AlwaysRefetches(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/api/v1/permits/77", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 3, backend.callCount("GetPermit"))
}

func TestExtend_MultipartSubmission(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("reason", "line inspection overrun"))
	require.NoError(t, w.WriteField("date", "2026-09-15"))
	require.NoError(t, w.WriteField("assignee_ids", "12"))
	fw, err := w.CreateFormFile("attachments", "photo.jpg")
	require.NoError(t, err)
	fw.Write([]byte("jpegdata"))
	require.NoError(t, w.Close())

	req, _ := http.NewRequest("POST", "/api/v1/permits/77/extend", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ActionOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Refreshed)
	assert.False(t, out.ReturnToPending)

	require.Len(t, backend.extensions, 1)
	ext := backend.extensions[0]
	assert.Equal(t, "77", ext.PermitID)
	assert.Equal(t, []string{"12"}, ext.AssigneeIDs)
	require.Len(t, ext.Attachments, 1)
	assert.Equal(t, "photo.jpg", ext.Attachments[0].Filename)
}

func TestExtend_MissingReasonRejected(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("date", "2026-09-15"))
	require.NoError(t, w.Close())

	req, _ := http.NewRequest("POST", "/api/v1/permits/77/extend", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "validation_failed", problem.Type)
	assert.Equal(t, "reason_for_extension", problem.Field)
	assert.Equal(t, 0, backend.callCount("CreateExtension"))
}

func TestApproval_Approve(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	body := `{"decision":"approve","resource_type":"permit","level_id":"3","user_id":"42"}`
	req, _ := http.NewRequest("POST", "/api/v1/permits/77/approval", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ActionOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.ReturnToPending)
	assert.Equal(t, "/safety/permit/pending-approvals", out.PendingListPath)
	assert.Equal(t, 1, backend.callCount("ConfirmPermitStatus"))
}

func TestApproval_MissingLevelIDFailsFast(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	body := `{"decision":"approve","resource_type":"permit_closure","resource_id":"9","user_id":"42"}`
	req, _ := http.NewRequest("POST", "/api/v1/permits/77/approval", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "level_id", problem.Field)
	assert.Equal(t, 0, backend.callCount("ConfirmClosureStatus"))
}

func TestApproval_RejectRequiresReason(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	body := `{"decision":"reject","resource_type":"permit","level_id":"3","user_id":"42"}`
	req, _ := http.NewRequest("POST", "/api/v1/permits/77/approval", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "rejection_reason", problem.Field)
	assert.Equal(t, 0, backend.callCount("UpdateRejectionReason"))
}

func TestApproval_RejectMainPermit(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	body := `{"decision":"reject","resource_type":"permit","level_id":"3","user_id":"42","reason":"JSA incomplete"}`
	req, _ := http.NewRequest("POST", "/api/v1/permits/77/approval", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1, backend.callCount("UpdateRejectionReason"))
	assert.Equal(t, 0, backend.callCount("ConfirmPermitStatus"))
}

func TestApproval_InvalidDecision(t *testing.T) {
	app := testApp(t, newStubBackend(), "none", "", "")

	body := `{"decision":"maybe","level_id":"3","user_id":"42"}`
	req, _ := http.NewRequest("POST", "/api/v1/permits/77/approval", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddComment(t *testing.T) {
	backend := newStubBackend()
	app := testApp(t, backend, "none", "", "")

	body := `{"description":"isolation verified"}`
	req, _ := http.NewRequest("POST", "/api/v1/permits/77/comments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"isolation verified"}, backend.comments)

	// Blank comment is a validation failure.
	req, _ = http.NewRequest("POST", "/api/v1/permits/77/comments", strings.NewReader(`{"description":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	app := testApp(t, newStubBackend(), "none", "", "")

	req, _ := http.NewRequest("GET", "/api/v1/status", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Environment)
	assert.True(t, body.PMSConfigured)
	assert.False(t, body.StoreEnabled)
}

func TestListAudits_StoreDisabled(t *testing.T) {
	app := testApp(t, newStubBackend(), "none", "", "")

	req, _ := http.NewRequest("GET", "/api/v1/permits/77/audits", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPrintPDF_NoDocsBackend(t *testing.T) {
	app := testApp(t, newStubBackend(), "none", "", "")

	req, _ := http.NewRequest("GET", "/api/v1/permits/77/print.pdf", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
