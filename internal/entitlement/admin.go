package entitlement

import "github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"

// IsGlobalAdmin reports whether the user administers the whole platform.
// Global admins hold the admin role and belong to no company.
func IsGlobalAdmin(u model.User) bool {
	return u.IsAdmin() && u.CompanyID == nil
}

// ManagesCompany reports whether the user may administer the company:
// global admins manage every company, company admins their own.
func ManagesCompany(u model.User, companyID string) bool {
	if IsGlobalAdmin(u) {
		return true
	}
	return u.IsAdmin() && u.InCompany(companyID)
}

// ManagesUser reports whether the actor may administer the target user
func ManagesUser(actor, target model.User) bool {
	if IsGlobalAdmin(actor) {
		return true
	}
	return target.CompanyID != nil && ManagesCompany(actor, *target.CompanyID)
}
