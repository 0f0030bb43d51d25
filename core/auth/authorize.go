package auth

// Action is something a Principal may attempt against the core.
type Action string

const (
	ActionSubmitFeedback     Action = "submit_feedback"
	ActionViewOwnFeedback    Action = "view_own_feedback"
	ActionViewAllFeedback    Action = "view_all_feedback"
	ActionViewAnalytics      Action = "view_analytics"
	ActionViewFeedbackDetail Action = "view_feedback_detail"
	ActionChangeStatus       Action = "change_status"
	ActionPostReply          Action = "post_reply"
)

// rules is the single source of truth for role-based access. Every access
// path goes through Authorize; no handler checks roles ad hoc.
var rules = map[Action]Role{
	ActionSubmitFeedback:     RoleStudent,
	ActionViewOwnFeedback:    RoleStudent,
	ActionViewAllFeedback:    RoleAdmin,
	ActionViewAnalytics:      RoleAdmin,
	ActionViewFeedbackDetail: RoleAdmin,
	ActionChangeStatus:       RoleAdmin,
	ActionPostReply:          RoleAdmin,
}

// Authorize allows or denies an action for the given Principal.
// A denial is ErrPermissionDenied and is never conflated with "not found":
// callers must authorize before any store lookup.
func Authorize(p Principal, action Action) error {
	role, ok := rules[action]
	if !ok {
		return ErrPermissionDenied
	}
	if p.Role != role {
		return ErrPermissionDenied
	}
	return nil
}
