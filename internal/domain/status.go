package domain

// Registration statuses. Only the last three are ever persisted: the email
// step lives in the conversation session, not in the store.
const (
	StatusPendingEmail    = "pending-email"
	StatusPendingApproval = "pending-approval"
	StatusPendingRole     = "pending-role"
	StatusRegistered      = "registered"
)

// KnownStatuses enumerates every status accepted by the collection schema.
var KnownStatuses = []string{
	StatusPendingEmail,
	StatusPendingApproval,
	StatusPendingRole,
	StatusRegistered,
}
