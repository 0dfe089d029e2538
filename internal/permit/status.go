package permit

import (
	"strings"

	"github.com/gophygital/permit-agent/internal/pms"
)

// Tone is the rendering treatment for an approval-level status chip.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
	ToneWarning Tone = "warning"
	ToneNeutral Tone = "neutral"
)

// StatusTone maps an approval status label to its chip tone,
// case-insensitively. Anything unrecognized renders neutral.
func StatusTone(status string) Tone {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "approve":
		return ToneSuccess
	case "rejected", "reject":
		return ToneDanger
	case "pending":
		return ToneWarning
	default:
		return ToneNeutral
	}
}

// Chip is one approval stage badge. No overall status is aggregated
// client-side; all_level_approved comes from the backend as-is.
type Chip struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Tone   Tone   `json:"tone"`
}

// Chips derives status chips from an ordered approval-level list.
func Chips(levels []pms.ApprovalLevel) []Chip {
	out := make([]Chip, 0, len(levels))
	for _, l := range levels {
		out = append(out, Chip{Name: l.Name, Status: l.Status, Tone: StatusTone(l.Status)})
	}
	return out
}

// ClosureVisible reports whether the closure section should be shown.
// Both the completion comment and the closer identity must be present.
func ClosureVisible(c *pms.Closure) bool {
	if c == nil {
		return false
	}
	if strings.TrimSpace(c.CompletionComment) == "" {
		return false
	}
	return c.ClosedBy != nil && strings.TrimSpace(c.ClosedBy.FullName) != ""
}
