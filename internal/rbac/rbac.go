package rbac

// Role constants
const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
	RoleReviewer = "reviewer"
)

// Permission constants
const (
	PermFileDispute       = "file_dispute"
	PermAddEvidence       = "add_evidence"
	PermRespondDispute    = "respond_dispute"
	PermEscalateDispute   = "escalate_dispute"
	PermDecideDispute     = "decide_dispute"
	PermConfirmCompromise = "confirm_compromise"
	PermAckConflict       = "ack_conflict"
	PermCloseDispute      = "close_dispute"
	PermViewReviewQueues  = "view_review_queues"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleCustomer: {
		PermFileDispute, PermAddEvidence,
	},
	RoleMerchant: {
		PermRespondDispute, PermAddEvidence,
	},
	RoleReviewer: {
		PermEscalateDispute, PermDecideDispute, PermConfirmCompromise,
		PermAckConflict, PermCloseDispute, PermViewReviewQueues,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
