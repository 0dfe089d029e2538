package permit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		label string
		want  State
	}{
		{"draft", StateDraft},
		{"Draft", StateDraft},
		{"open", StateOpen},
		{"approved", StateApproved},
		{"APPROVED", StateApproved},
		{"extended", StateExtended},
		{"expired", StateExpired},
		{"hold", StateHold},
		{"On Hold", StateHold},
		{"closed", StateClosed},
		{"Completed", StateClosed},
		{"rejected", StateRejected},
		{"  approved  ", StateApproved},
		{"", StateUnknown},
		{"something else", StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseState(tt.label))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "approved", StateApproved.String())
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "unknown", State(99).String())
}
