package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// GetPermit fetches the full permit snapshot. Every call is a full trip;
// nothing is cached client-side.
func (c *Client) GetPermit(ctx context.Context, id string) (*Snapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, "/pms/permits/"+id+".json", nil, nil, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetching permit %s: %w", id, err)
	}

	var snap Snapshot
	if err := decodeResponse(resp, &snap); err != nil {
		return nil, fmt.Errorf("fetching permit %s: %w", id, err)
	}
	return &snap, nil
}

// ConfirmPermitStatus approves or rejects the main permit at a given
// approval level. The backend models this as a GET with query parameters.
func (c *Client) ConfirmPermitStatus(ctx context.Context, id string, approve bool, userID, levelID string) error {
	q := url.Values{}
	q.Set("approve", strconv.FormatBool(approve))
	q.Set("user_id", userID)
	q.Set("level_id", levelID)

	resp, err := c.do(ctx, http.MethodGet, "/pms/permits/"+id+"/status_confirmation", q, nil, "application/json")
	if err != nil {
		return fmt.Errorf("confirming permit %s status: %w", id, err)
	}
	drainAndClose(resp)
	return nil
}

// UpdateRejectionReason records the rejection reason for the main permit.
// Rejection of the main permit goes through this endpoint only.
func (c *Client) UpdateRejectionReason(ctx context.Context, id, userID, reason string) error {
	q := url.Values{}
	q.Set("user_id", userID)

	form := url.Values{}
	form.Set("rejection_reason", reason)

	resp, err := c.do(ctx, http.MethodPut, "/pms/permits/"+id+"/update_rejection_reason.json", q,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return fmt.Errorf("updating rejection reason for permit %s: %w", id, err)
	}
	drainAndClose(resp)
	return nil
}

// CreateExtension submits an extension request, or a resume request when
// req.ToResume is set. Resume is extend with an extra marker field sent to
// the same endpoint; the aliasing is intentional on the backend.
func (c *Client) CreateExtension(ctx context.Context, req ExtensionRequest) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ key, value string }{
		{"pms_permit_extend[permit_id]", req.PermitID},
		{"pms_permit_extend[reason_for_extension]", req.Reason},
		{"pms_permit_extend[extension_date]", req.Date},
	}
	if req.ToResume {
		fields = append(fields, struct{ key, value string }{"pms_permit_extend[to_resume]", "true"})
	}
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return fmt.Errorf("building extension form: %w", err)
		}
	}
	for _, assignee := range req.AssigneeIDs {
		if err := w.WriteField("pms_permit_extend[permit_extension_assignees][]", assignee); err != nil {
			return fmt.Errorf("building extension form: %w", err)
		}
	}
	if err := writeFiles(w, "extend_attachments[]", req.Attachments); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("building extension form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/pms/permit_extends", nil, &buf, w.FormDataContentType())
	if err != nil {
		return fmt.Errorf("submitting extension for permit %s: %w", req.PermitID, err)
	}
	drainAndClose(resp)
	return nil
}

// ConfirmExtensionStatus approves or rejects an extension (or resume) at a
// given approval level. Rejection carries the reason as a query parameter.
func (c *Client) ConfirmExtensionStatus(ctx context.Context, extensionID string, approve bool, userID, levelID, rejectionReason string) error {
	q := url.Values{}
	q.Set("approve", strconv.FormatBool(approve))
	q.Set("user_id", userID)
	q.Set("level_id", levelID)
	if !approve {
		q.Set("rejection_reason", rejectionReason)
	}

	resp, err := c.do(ctx, http.MethodGet, "/pms/permit_extends/"+extensionID+"/status_confirmation.json", q, nil, "application/json")
	if err != nil {
		return fmt.Errorf("confirming extension %s status: %w", extensionID, err)
	}
	drainAndClose(resp)
	return nil
}

// CreateClosure submits the permit closure request.
func (c *Client) CreateClosure(ctx context.Context, req ClosureRequest) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("pms_permit_closure[permit_id]", req.PermitID); err != nil {
		return fmt.Errorf("building closure form: %w", err)
	}
	if err := w.WriteField("pms_permit_closure[completion_comment]", req.CompletionComment); err != nil {
		return fmt.Errorf("building closure form: %w", err)
	}
	if err := writeFiles(w, "closer_attachments[]", req.Attachments); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("building closure form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/pms/permit_closures.json", nil, &buf, w.FormDataContentType())
	if err != nil {
		return fmt.Errorf("submitting closure for permit %s: %w", req.PermitID, err)
	}
	drainAndClose(resp)
	return nil
}

// ConfirmClosureStatus approves or rejects a closure at a given approval level.
func (c *Client) ConfirmClosureStatus(ctx context.Context, closureID string, approve bool, userID, levelID, rejectionReason string) error {
	q := url.Values{}
	q.Set("approve", strconv.FormatBool(approve))
	q.Set("user_id", userID)
	q.Set("level_id", levelID)
	if !approve {
		q.Set("rejection_reason", rejectionReason)
	}

	resp, err := c.do(ctx, http.MethodGet, "/pms/permit_closures/"+closureID+"/status_confirmation.json", q, nil, "application/json")
	if err != nil {
		return fmt.Errorf("confirming closure %s status: %w", closureID, err)
	}
	drainAndClose(resp)
	return nil
}

// UploadJSA attaches JSA/form documents to the permit via the permit update
// endpoint.
func (c *Client) UploadJSA(ctx context.Context, permitID string, files []File) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeFiles(w, "attachments[]", files); err != nil {
		return err
	}
	if err := w.WriteField("pms_permit[id]", permitID); err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, "/pms/permits/"+permitID+".json", nil, &buf, w.FormDataContentType())
	if err != nil {
		return fmt.Errorf("uploading JSA for permit %s: %w", permitID, err)
	}
	drainAndClose(resp)
	return nil
}

// AddComment appends a comment to the permit's comment log.
func (c *Client) AddComment(ctx context.Context, permitID, description string) error {
	payload := map[string]interface{}{
		"pms_permit_comment_log": map[string]string{"description": description},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/pms/permits/"+permitID+"/permit_comment", nil, bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("adding comment to permit %s: %w", permitID, err)
	}
	drainAndClose(resp)
	return nil
}

// DownloadPrintPDF fetches the printable permit form PDF.
func (c *Client) DownloadPrintPDF(ctx context.Context, permitID string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/pms/permits/"+permitID+"/download_print_pdf.pdf", nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("downloading permit %s form PDF: %w", permitID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading permit %s form PDF: %w", permitID, err)
	}
	return data, nil
}

// DownloadJSAPDF fetches the printable JSA PDF.
func (c *Client) DownloadJSAPDF(ctx context.Context, permitID string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/pms/permits/"+permitID+"/print_pdf", nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("downloading permit %s JSA PDF: %w", permitID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading permit %s JSA PDF: %w", permitID, err)
	}
	return data, nil
}

// SendSupplierMail triggers the vendor notification mail for the permit.
func (c *Client) SendSupplierMail(ctx context.Context, permitID string) error {
	resp, err := c.do(ctx, http.MethodGet, "/pms/permits/"+permitID+"/permit_supplier_mail.json", nil, nil, "application/json")
	if err != nil {
		return fmt.Errorf("sending supplier mail for permit %s: %w", permitID, err)
	}
	drainAndClose(resp)
	return nil
}

func writeFiles(w *multipart.Writer, fieldName string, files []File) error {
	for _, f := range files {
		name := f.FieldName
		if name == "" {
			name = fieldName
		}
		part, err := w.CreateFormFile(name, f.Filename)
		if err != nil {
			return fmt.Errorf("attaching %s: %w", f.Filename, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return fmt.Errorf("attaching %s: %w", f.Filename, err)
		}
	}
	return nil
}
