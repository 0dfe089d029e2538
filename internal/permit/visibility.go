package permit

// Action identifies one offerable permit operation.
type Action string

const (
	ActionEdit              Action = "edit"
	ActionExtend            Action = "extend"
	ActionExtendExtended    Action = "extend_extended"
	ActionFillForm          Action = "fill_form"
	ActionFillJSA           Action = "fill_jsa"
	ActionCompleteForm      Action = "complete_form"
	ActionCompleteDraftOpen Action = "complete_draft_open"
	ActionComplete          Action = "complete"
	ActionUploadJSA         Action = "upload_jsa"
	ActionResume            Action = "resume"
	ActionPrintForm         Action = "print_form"
	ActionPrintJSA          Action = "print_jsa"
	ActionSendMail          Action = "send_mail"

	// ActionComment is always available on a loaded permit; it never
	// appears in the resolved toolbar set.
	ActionComment Action = "comment"

	ActionApprovePermit    Action = "approve_permit"
	ActionRejectPermit     Action = "reject_permit"
	ActionApproveExtension Action = "approve_extension"
	ActionRejectExtension  Action = "reject_extension"
	ActionApproveClosure   Action = "approve_closure"
	ActionRejectClosure    Action = "reject_closure"
)

// ResourceType names the sub-object an approval entry targets.
type ResourceType string

const (
	ResourcePermit    ResourceType = "permit"
	ResourceExtension ResourceType = "permit_extend"
	ResourceClosure   ResourceType = "permit_closure"
)

// NavContext is how the user arrived at the permit view. Arrival from the
// pending-approvals list collapses the action set to the approve/reject pair
// for the targeted sub-object.
type NavContext struct {
	FromApprovalList bool
	LevelID          string
	UserID           string
	ResourceType     ResourceType
	ResourceID       string
}

// NavContextFromQuery builds a NavContext from request query parameters.
// get is typically url.Values.Get or fiber.Ctx.Query.
func NavContextFromQuery(get func(string) string) NavContext {
	nc := NavContext{
		FromApprovalList: get("type") == "approval",
		LevelID:          get("level_id"),
		UserID:           get("user_id"),
		ResourceType:     ResourceType(get("resource_type")),
		ResourceID:       get("resource_id"),
	}
	if nc.ResourceID == "" {
		nc.ResourceID = get("closure_id")
	}
	return nc
}

// ApprovalEntry reports whether this navigation is an approval-list entry
// with enough context to act on: type=approval plus level and user IDs.
func (nc NavContext) ApprovalEntry() bool {
	return nc.FromApprovalList && nc.LevelID != "" && nc.UserID != ""
}

// ResolveActions computes the ordered set of enabled actions for a permit
// snapshot's normalized flags and the navigation context. Pure function; the
// same inputs always yield the same list, with no action duplicated.
func ResolveActions(f Flags, nav NavContext) []Action {
	// The kill switch wins over everything, approval entries included.
	if f.AllHidden {
		return nil
	}

	if nav.ApprovalEntry() {
		switch nav.ResourceType {
		case ResourcePermit:
			return []Action{ActionApprovePermit, ActionRejectPermit}
		case ResourceExtension:
			return []Action{ActionApproveExtension, ActionRejectExtension}
		case ResourceClosure:
			return []Action{ActionApproveClosure, ActionRejectClosure}
		default:
			return nil
		}
	}

	// Order mirrors the permit screen's toolbar.
	var actions []Action
	add := func(enabled bool, a Action) {
		if enabled {
			actions = append(actions, a)
		}
	}
	add(f.Edit, ActionEdit)
	add(f.ExtendApproved, ActionExtend)
	add(f.ExtendExtended, ActionExtendExtended)
	add(f.FillForm, ActionFillForm)
	add(f.FillJSA, ActionFillJSA)
	add(f.CompleteForm, ActionCompleteForm)
	add(f.CompleteDraftOpen, ActionCompleteDraftOpen)
	add(f.CompleteApproved, ActionComplete)
	add(f.UploadJSA, ActionUploadJSA)
	add(f.ResumePermit, ActionResume)
	add(f.PrintForm, ActionPrintForm)
	add(f.PrintJSA, ActionPrintJSA)
	add(f.SendMail, ActionSendMail)
	return actions
}
