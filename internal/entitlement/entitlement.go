// Package entitlement decides what a user may see or change.
//
// Viewing a container requires three gates to pass, evaluated in order:
//
//   - capability: the user's permission must allow the container type.
//     A missing permission row grants every type.
//   - visibility: public passes; restricted needs a company affiliation;
//     admin_only needs the admin role.
//   - ownership: marketplace containers pass. Tenant-private containers pass
//     for their creator, for members of the creator's company, and for
//     companies holding an assignment for the container.
//
// Mutation is ownership-only: the creator or any admin.
//
// Everything here is pure. Callers fetch the inputs; nothing in this
// package performs I/O or returns errors. Unknown or missing data denies.
package entitlement

import (
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
)

// Reason explains a view decision
type Reason string

const (
	ReasonAllowed           Reason = "allowed"
	ReasonCapability        Reason = "capability_denied"
	ReasonNoCompany         Reason = "restricted_requires_company"
	ReasonAdminOnly         Reason = "admin_only"
	ReasonNotEntitled       Reason = "not_owner_or_assigned"
	ReasonUnknownVisibility Reason = "unknown_visibility"
)

// Decision is the outcome of a view check
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision { return Decision{Allowed: true, Reason: ReasonAllowed} }

func deny(r Reason) Decision { return Decision{Reason: r} }

// Actor is the requesting user together with the state a view decision
// reads. Permission may be nil. Assignments are the assignments of the
// user's company; rows for other companies are ignored.
type Actor struct {
	User        model.User
	Permission  *model.UserPermission
	Assignments []model.CompanyContainerAssignment
}

// EffectivePermission resolves a possibly missing permission row.
// Absence means every capability is granted.
func EffectivePermission(userID string, p *model.UserPermission) model.UserPermission {
	if p == nil {
		return model.DefaultUserPermission(userID)
	}
	return *p
}

// AllowsType reports whether the actor's capabilities cover the type
func (a Actor) AllowsType(t model.ContainerType) bool {
	return EffectivePermission(a.User.ID, a.Permission).Allows(t)
}

// EvaluateView runs the three view gates. ownerCompanyID is the company of
// the container's creator, nil when the creator is unaffiliated or unknown.
func EvaluateView(a Actor, c model.Container, ownerCompanyID *string) Decision {
	if !a.AllowsType(c.Type) {
		return deny(ReasonCapability)
	}

	switch c.Visibility {
	case model.VisibilityPublic:
	case model.VisibilityRestricted:
		if a.User.CompanyID == nil {
			return deny(ReasonNoCompany)
		}
	case model.VisibilityAdminOnly:
		if !a.User.IsAdmin() {
			return deny(ReasonAdminOnly)
		}
	default:
		return deny(ReasonUnknownVisibility)
	}

	if c.IsMarketplace {
		return allow()
	}
	if c.CreatedBy != "" && c.CreatedBy == a.User.ID {
		return allow()
	}
	if a.User.CompanyID == nil {
		return deny(ReasonNotEntitled)
	}
	if ownerCompanyID != nil && *ownerCompanyID == *a.User.CompanyID {
		return allow()
	}
	if a.hasAssignment(c.ID) {
		return allow()
	}
	return deny(ReasonNotEntitled)
}

// CanView reports whether the actor may see the container
func CanView(a Actor, c model.Container, ownerCompanyID *string) bool {
	return EvaluateView(a, c, ownerCompanyID).Allowed
}

func (a Actor) hasAssignment(containerID string) bool {
	if a.User.CompanyID == nil {
		return false
	}
	for _, as := range a.Assignments {
		if as.ContainerID == containerID && as.CompanyID == *a.User.CompanyID {
			return true
		}
	}
	return false
}

// CanMutate reports whether the user may update or delete the container
func CanMutate(u model.User, c model.Container) bool {
	if u.IsAdmin() {
		return true
	}
	return u.ID != "" && u.ID == c.CreatedBy
}
