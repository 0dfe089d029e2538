// Package pms wraps the remote permit management system's REST API.
// The backend owns all permit state; every snapshot returned here is a
// read-only copy replaced wholesale after each mutation.
package pms

import "encoding/json"

// Person is the minimal identity shape the backend attaches to records.
type Person struct {
	FullName string `json:"full_name"`
}

// ApprovalLevel is one named stage in an approval chain.
type ApprovalLevel struct {
	Name            string `json:"name"`
	Status          string `json:"status"`
	UpdatedBy       string `json:"updated_by"`
	StatusUpdatedAt string `json:"status_updated_at"`
}

// Vendor identifies the external vendor on a permit, when present.
type Vendor struct {
	ID          int    `json:"id"`
	CompanyName string `json:"company_name"`
}

// Permit is the main work-authorization record.
type Permit struct {
	ID               int               `json:"id"`
	ReferenceNumber  string            `json:"reference_number"`
	PermitType       string            `json:"permit_type"`
	Status           string            `json:"status"`
	CreatedAt        string            `json:"created_at"`
	CurrentUserID    int               `json:"current_user_id"`
	PermitAssignees  []json.RawMessage `json:"permit_assignees"`
	PermitForm       json.RawMessage   `json:"pms_permit_form"`
	ExpiryDate       string            `json:"expiry_date"`
	ExtensionStatus  string            `json:"extension_status"`
	ExtensionDate    string            `json:"extension_date"`
	ResumeDate       string            `json:"resume_date"`
	PermitFor        string            `json:"permit_for"`
	LocationDetails  string            `json:"location_details"`
	Comment          string            `json:"comment"`
	RejectionReason  string            `json:"rejection_reason"`
	VendorName       string            `json:"external_vendor_name"`
	Vendor           *Vendor           `json:"vendor"`
	CreatedBy        *Person           `json:"created_by"`
	AllLevelApproved bool              `json:"all_level_approved"`
}

// Extension records a request to push the permit's expiry date forward.
// A resume is the same record submitted with to_resume=true; the backend
// reports it under a separate key but the shape is deliberately parallel.
type Extension struct {
	ID                 int             `json:"id"`
	ReasonForExtension string          `json:"reason_for_extension"`
	ExtensionDate      string          `json:"extension_date"`
	CreatedBy          *Person         `json:"created_by"`
	Assignees          string          `json:"assignees"`
	AttachmentsCount   int             `json:"attachments_count"`
	ApprovalLevels     []ApprovalLevel `json:"extend_approval_levels"`
	Status             string          `json:"status"`
}

// Resume mirrors Extension for held/expired permits being restarted.
type Resume struct {
	ID               int             `json:"id"`
	ReasonForResume  string          `json:"reason_for_resume"`
	ResumeDate       string          `json:"resume_date"`
	CreatedBy        *Person         `json:"created_by"`
	Assignees        string          `json:"assignees"`
	AttachmentsCount int             `json:"attachments_count"`
	ApprovalLevels   []ApprovalLevel `json:"extend_approval_levels"`
	Status           string          `json:"status"`
}

// Closure is the request to mark the permit's work complete.
type Closure struct {
	ID                int             `json:"id"`
	CompletionComment string          `json:"completion_comment"`
	ClosedBy          *Person         `json:"closed_by"`
	AttachmentsCount  int             `json:"attachments_count"`
	ApprovalLevels    []ApprovalLevel `json:"closure_approval_levels"`
}

// CommentLog is one entry in the permit's comment history.
type CommentLog struct {
	ID          int     `json:"id"`
	Description string  `json:"description"`
	CreatedBy   *Person `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Attachment describes a file attached to the permit. The backend emits two
// naming generations for the same fields; both are decoded.
type Attachment struct {
	ID int `json:"id"`

	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
	URL         string `json:"url"`

	// Legacy field names still emitted by older backend versions.
	DocumentFileName    string `json:"document_file_name"`
	DocumentContentType string `json:"document_content_type"`
}

// Name returns the attachment filename, preferring the current-generation field.
func (a Attachment) Name() string {
	if a.Filename != "" {
		return a.Filename
	}
	return a.DocumentFileName
}

// QRCode references the permit's QR artifact.
type QRCode struct {
	ID           int    `json:"id"`
	ImageURL     string `json:"image_url"`
	DownloadLink string `json:"download_link"`
}

// VendorAttachments groups vendor document uploads by category.
type VendorAttachments struct {
	ListOfPeople   []json.RawMessage `json:"list_of_people"`
	ESIWCPolicy    []json.RawMessage `json:"esi_wc_policy"`
	MedicalReports []json.RawMessage `json:"medical_reports"`
	Other          []json.RawMessage `json:"other"`
}

// VisibilityFlags is the raw set of server-supplied booleans gating which
// actions the client may offer. Several flags exist in two naming
// generations; normalization happens once at the fetch boundary, not here.
type VisibilityFlags struct {
	ShowEditButton                 bool `json:"show_edit_button"`
	ShowSendMailButton             bool `json:"show_send_mail_button"`
	ShowPrintFormButton            bool `json:"show_print_form_button"`
	ShowPrintJSAButton             bool `json:"show_print_jsa_button"`
	ShowUploadJSAFormButton        bool `json:"show_upload_jsa_form_button"`
	ShowCompleteDraftOpenButton    bool `json:"show_complete_draft_open_button"`
	ShowFillJSAButton              bool `json:"show_fill_jsa_button"`
	ShowCompleteFormButton         bool `json:"show_complete_form_button"`
	ShowExtendPermitApprovedButton bool `json:"show_extend_permit_approved_button"`
	ShowCompleteApprovedButton     bool `json:"show_complete_approved_button"`
	ShowResumePermitButton         bool `json:"show_resume_permit_button"`
	ShowExtendPermitExtendedButton bool `json:"show_extend_permit_extended_button"`
	// The vendor-form flag never got the show_/_button affixes.
	FillPermitForm   bool `json:"fill_permit_form"`
	AllButtonsHidden bool `json:"all_buttons_hidden"`

	// Deprecated aliases from before the flag-naming migration. The backend
	// may emit either generation; visibility is the OR of each pair.
	ShowExtendButton    bool `json:"show_extend_button"`
	ShowUploadJSAButton bool `json:"show_upload_jsa_button"`
	ShowCompleteButton  bool `json:"show_complete_button"`
}

// Snapshot is the full nested permit record returned by GET /pms/permits/{id}.json.
type Snapshot struct {
	Permit            Permit            `json:"permit"`
	ApprovalLevels    []ApprovalLevel   `json:"approval_levels"`
	Extensions        []Extension       `json:"permit_extends"`
	Resumes           []Resume          `json:"permit_resume"`
	Closure           *Closure          `json:"permit_closure"`
	ActivityDetails   []json.RawMessage `json:"activity_details"`
	MainAttachments   []Attachment      `json:"main_attachments"`
	VendorAttachments VendorAttachments `json:"vendor_attachments"`
	ManpowerDetails   []json.RawMessage `json:"manpower_details"`
	CommentLogs       []CommentLog      `json:"comment_logs"`
	SafetyCheckAudits []json.RawMessage `json:"safety_check_audits"`
	QRCode            *QRCode           `json:"qr_code"`

	VisibilityFlags
}

// File is an attachment to be uploaded as one part of a multipart request.
type File struct {
	FieldName string
	Filename  string
	Content   []byte
}

// ExtensionRequest is the input for creating an extension or, with ToResume
// set, a resume request. Both hit the same endpoint with the same field
// names; the marker is the only difference.
type ExtensionRequest struct {
	PermitID    string
	Reason      string
	Date        string
	ToResume    bool
	AssigneeIDs []string
	Attachments []File
}

// ClosureRequest is the input for closing a permit.
type ClosureRequest struct {
	PermitID          string
	CompletionComment string
	Attachments       []File
}
