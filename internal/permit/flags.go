// Package permit implements the permit lifecycle controller: action
// visibility resolution, the sub-workflow drivers, and the post-mutation
// refresh rule. The PMS backend stays the single source of truth; this
// package never derives permission logic of its own.
package permit

import (
	"github.com/gophygital/permit-agent/internal/pms"
)

// Flags is the canonical, alias-free set of action visibility switches.
// It is computed once at the fetch boundary; render sites never look at the
// raw wire flags.
type Flags struct {
	Edit              bool
	ExtendApproved    bool
	ExtendExtended    bool
	FillForm          bool
	FillJSA           bool
	CompleteForm      bool
	CompleteDraftOpen bool
	CompleteApproved  bool
	UploadJSA         bool
	ResumePermit      bool
	PrintForm         bool
	PrintJSA          bool
	SendMail          bool
	AllHidden         bool
}

// NormalizeFlags folds each deprecated alias pair into its canonical flag.
// The backend may emit either naming generation; visibility is the OR of the
// pair. The pairs are fixed:
//
//	show_extend_permit_approved_button | show_extend_button
//	show_complete_approved_button      | show_complete_button
//	show_upload_jsa_form_button        | show_upload_jsa_button
func NormalizeFlags(raw pms.VisibilityFlags) Flags {
	return Flags{
		Edit:              raw.ShowEditButton,
		ExtendApproved:    raw.ShowExtendPermitApprovedButton || raw.ShowExtendButton,
		ExtendExtended:    raw.ShowExtendPermitExtendedButton,
		FillForm:          raw.FillPermitForm,
		FillJSA:           raw.ShowFillJSAButton,
		CompleteForm:      raw.ShowCompleteFormButton,
		CompleteDraftOpen: raw.ShowCompleteDraftOpenButton,
		CompleteApproved:  raw.ShowCompleteApprovedButton || raw.ShowCompleteButton,
		UploadJSA:         raw.ShowUploadJSAFormButton || raw.ShowUploadJSAButton,
		ResumePermit:      raw.ShowResumePermitButton,
		PrintForm:         raw.ShowPrintFormButton,
		PrintJSA:          raw.ShowPrintJSAButton,
		SendMail:          raw.ShowSendMailButton,
		AllHidden:         raw.AllButtonsHidden,
	}
}
