package auth

import "github.com/spec-kit/helpdesk-workflow/internal/domain"

// Permissions is the capability set of one caller, resolved once per request
// and consumed by the lifecycle and workflow engines.
type Permissions struct {
	UserID    int64
	Name      string
	Email     string
	IsAdmin   bool
	IsSupport bool
	roles     map[domain.Role]struct{}
}

// Resolve derives the capability set of user. A nil user resolves to an
// anonymous set that can access nothing.
func Resolve(user *domain.User) Permissions {
	if user == nil {
		return Permissions{}
	}
	perms := Permissions{
		UserID: user.ID,
		Name:   user.DisplayName(),
		Email:  user.Email,
		roles:  make(map[domain.Role]struct{}, len(user.Roles)),
	}
	for _, role := range user.Roles {
		perms.roles[role] = struct{}{}
	}
	_, perms.IsAdmin = perms.roles[domain.RoleAdmin]
	_, perms.IsSupport = perms.roles[domain.RoleSupport]
	return perms
}

// HasRole reports whether the caller holds role.
func (p Permissions) HasRole(role domain.Role) bool {
	_, ok := p.roles[role]
	return ok
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (p Permissions) HasAnyRole(roles ...domain.Role) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// CanManageAll is the coarse policy used by list and administrative routes.
func (p Permissions) CanManageAll() bool {
	return p.IsAdmin || p.IsSupport
}

// IsAssigneeOf reports whether the caller currently holds the ticket.
func (p Permissions) IsAssigneeOf(ticket *domain.Ticket) bool {
	return p.UserID != 0 && ticket.IsAssignee(p.UserID)
}

// IsCreatorOf reports whether the caller submitted the ticket.
func (p Permissions) IsCreatorOf(ticket *domain.Ticket) bool {
	return p.UserID != 0 && ticket != nil && ticket.CreatorID == p.UserID
}

// CanAccess is the resource-scoped check for detail and mutation routes.
func (p Permissions) CanAccess(ticket *domain.Ticket) bool {
	if ticket == nil || p.UserID == 0 {
		return false
	}
	if p.CanManageAll() {
		return true
	}
	return p.IsCreatorOf(ticket) || p.IsAssigneeOf(ticket)
}

// CanChangeStatus gates the lifecycle engine's status changes.
func (p Permissions) CanChangeStatus(ticket *domain.Ticket) bool {
	if ticket == nil || p.UserID == 0 {
		return false
	}
	return p.CanManageAll() || p.IsAssigneeOf(ticket)
}
