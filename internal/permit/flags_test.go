package permit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gophygital/permit-agent/internal/pms"
)

func TestNormalizeFlags_AliasPairs(t *testing.T) {
	tests := []struct {
		name string
		raw  pms.VisibilityFlags
		want Flags
	}{
		{
			name: "current generation only",
			raw: pms.VisibilityFlags{
				ShowExtendPermitApprovedButton: true,
				ShowCompleteApprovedButton:     true,
				ShowUploadJSAFormButton:        true,
			},
			want: Flags{ExtendApproved: true, CompleteApproved: true, UploadJSA: true},
		},
		{
			name: "legacy generation only",
			raw: pms.VisibilityFlags{
				ShowExtendButton:    true,
				ShowCompleteButton:  true,
				ShowUploadJSAButton: true,
			},
			want: Flags{ExtendApproved: true, CompleteApproved: true, UploadJSA: true},
		},
		{
			name: "both generations agree",
			raw: pms.VisibilityFlags{
				ShowExtendPermitApprovedButton: true,
				ShowExtendButton:               true,
			},
			want: Flags{ExtendApproved: true},
		},
		{
			name: "all false stays false",
			raw:  pms.VisibilityFlags{},
			want: Flags{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFlags(tt.raw))
		})
	}
}

func TestNormalizeFlags_PassThrough(t *testing.T) {
	raw := pms.VisibilityFlags{
		ShowEditButton:                 true,
		ShowSendMailButton:             true,
		ShowPrintFormButton:            true,
		ShowPrintJSAButton:             true,
		ShowCompleteDraftOpenButton:    true,
		ShowFillJSAButton:              true,
		ShowCompleteFormButton:         true,
		ShowResumePermitButton:         true,
		ShowExtendPermitExtendedButton: true,
		FillPermitForm:                 true,
		AllButtonsHidden:               true,
	}
	got := NormalizeFlags(raw)
	assert.True(t, got.Edit)
	assert.True(t, got.SendMail)
	assert.True(t, got.PrintForm)
	assert.True(t, got.PrintJSA)
	assert.True(t, got.CompleteDraftOpen)
	assert.True(t, got.FillJSA)
	assert.True(t, got.CompleteForm)
	assert.True(t, got.ResumePermit)
	assert.True(t, got.ExtendExtended)
	assert.True(t, got.FillForm)
	assert.True(t, got.AllHidden)
}
