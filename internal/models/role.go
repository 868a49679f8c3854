package models

// Role is the ordered permission tier a member holds within an organization.
type Role string

const (
	RoleViewer Role = "VIEWER"
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
	RoleOwner  Role = "OWNER"
)

var roleRanks = map[Role]int{
	RoleViewer: 0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// AtLeast compares two roles using the total order VIEWER < MEMBER < ADMIN < OWNER.
func (r Role) AtLeast(min Role) bool {
	return roleRanks[r] >= roleRanks[min]
}

// Invitable reports whether the role may be granted through an invitation.
// Ownership is only ever transferred through an explicit role update.
func (r Role) Invitable() bool {
	return r.Valid() && r != RoleOwner
}
