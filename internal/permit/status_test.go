package permit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gophygital/permit-agent/internal/pms"
)

func TestStatusTone(t *testing.T) {
	tests := []struct {
		status string
		want   Tone
	}{
		{"approved", ToneSuccess},
		{"Approve", ToneSuccess},
		{"rejected", ToneDanger},
		{"Reject", ToneDanger},
		{"pending", ToneWarning},
		{"Pending", ToneWarning},
		{"", ToneNeutral},
		{"in review", ToneNeutral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusTone(tt.status), "status %q", tt.status)
	}
}

func TestChips_PreservesOrderAndNames(t *testing.T) {
	levels := []pms.ApprovalLevel{
		{Name: "Safety Officer", Status: "approved"},
		{Name: "Site Manager", Status: "pending"},
		{Name: "Facility Head", Status: "rejected"},
	}
	chips := Chips(levels)
	assert.Len(t, chips, 3)
	assert.Equal(t, "Safety Officer", chips[0].Name)
	assert.Equal(t, ToneSuccess, chips[0].Tone)
	assert.Equal(t, ToneWarning, chips[1].Tone)
	assert.Equal(t, ToneDanger, chips[2].Tone)
}

func TestChips_Empty(t *testing.T) {
	assert.Empty(t, Chips(nil))
}

func TestClosureVisible(t *testing.T) {
	closer := &pms.Person{FullName: "R. Iyer"}

	assert.False(t, ClosureVisible(nil))
	assert.False(t, ClosureVisible(&pms.Closure{CompletionComment: "done", ClosedBy: nil}))
	assert.False(t, ClosureVisible(&pms.Closure{CompletionComment: "", ClosedBy: closer}))
	assert.False(t, ClosureVisible(&pms.Closure{CompletionComment: "   ", ClosedBy: closer}))
	assert.False(t, ClosureVisible(&pms.Closure{CompletionComment: "done", ClosedBy: &pms.Person{}}))
	assert.True(t, ClosureVisible(&pms.Closure{CompletionComment: "all clear", ClosedBy: closer}))
}
