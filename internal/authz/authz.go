// Package authz centralizes role and ownership checks as pure predicates.
// The engine trusts the identity collaborator to resolve {userId, role}
// and re-checks authorization per operation here, independent of
// transport.
package authz

import "github.com/google/uuid"

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Actor is the resolved identity of the caller.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type Operation string

const (
	OpBook               Operation = "book"
	OpConfirm            Operation = "confirm"
	OpComplete           Operation = "complete"
	OpCancel             Operation = "cancel"
	OpReschedule         Operation = "reschedule"
	OpMarkNoShow         Operation = "mark_no_show"
	OpManageAvailability Operation = "manage_availability"
)

// Ownership identifies the parties on the resource under operation.
type Ownership struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
}

// Allowed is the single authorization predicate: a pure function of
// (actor, operation, ownership). Patients act only on their own
// appointments; providers act within their own schedule; admins act
// anywhere.
func Allowed(actor Actor, op Operation, own Ownership) bool {
	if actor.Role == RoleAdmin {
		return true
	}

	switch op {
	case OpBook, OpConfirm, OpCancel, OpReschedule:
		if actor.Role == RolePatient {
			return actor.UserID == own.PatientID
		}
		if actor.Role == RoleProvider {
			return actor.UserID == own.ProviderID
		}
	case OpComplete, OpMarkNoShow, OpManageAvailability:
		// Patient-facing roles never complete, no-show, or edit schedules.
		if actor.Role == RoleProvider {
			return actor.UserID == own.ProviderID
		}
	}
	return false
}

// BypassesCancellationWindow reports whether the role may cancel inside
// the cancellation window. The privileged path is audited by the caller.
func BypassesCancellationWindow(role Role) bool {
	return role == RoleProvider || role == RoleAdmin
}
