package authz

import "github.com/contentd/contentd/pkg/logger"

// Principal is the acting identity whose scopes gate row visibility.
type Principal interface {
	Subject() string
	IsGranted(scope string) bool
	ReferenceIDs() []int64
}

// User is a principal built from verified token claims.
type User struct {
	ID         string
	Roles      []string
	References []int64
	authz      *Authorizer
}

// NewPrincipal binds claims to an authorizer. A nil authorizer grants only
// scopes equal to one of the roles.
func NewPrincipal(a *Authorizer, subject string, roles []string, references []int64) *User {
	return &User{ID: subject, Roles: roles, References: references, authz: a}
}

// Anonymous holds no roles and no references.
func Anonymous() *User {
	return &User{ID: "anonymous"}
}

func (u *User) Subject() string { return u.ID }

func (u *User) ReferenceIDs() []int64 {
	out := make([]int64, len(u.References))
	copy(out, u.References)
	return out
}

// IsGranted fails closed when the policy engine errors.
func (u *User) IsGranted(scope string) bool {
	ok, err := u.authz.IsGranted(u.Roles, scope)
	if err != nil {
		logger.Warnf("authz: is-granted %q for %s: %v", scope, u.ID, err)
		return false
	}
	return ok
}
