// Package authz answers is-granted questions for principals. Roles may
// inherit other roles and may be granted scopes through policy.
package authz

import (
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

const defaultModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj)
`

type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer loads the model and policy files. An empty model path uses
// the built-in role/scope model; an empty policy path starts with no policy.
func NewAuthorizer(modelPath, policyPath string) (*Authorizer, error) {
	var m model.Model
	var err error
	if strings.TrimSpace(modelPath) == "" {
		m, err = model.NewModelFromString(defaultModel)
	} else {
		m, err = model.NewModelFromFile(modelPath)
	}
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(policyPath) != "" {
		enforcer.SetAdapter(fileadapter.NewAdapter(policyPath))
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// Inherit makes role hold every grant of parent.
func (a *Authorizer) Inherit(role, parent string) error {
	_, err := a.enforcer.AddGroupingPolicy(role, parent)
	return err
}

// Grant gives role the scope; "*" grants every scope.
func (a *Authorizer) Grant(role, scope string) error {
	_, err := a.enforcer.AddPolicy(role, scope)
	return err
}

// IsGranted reports whether any of roles is, inherits, or is granted scope.
func (a *Authorizer) IsGranted(roles []string, scope string) (bool, error) {
	for _, role := range roles {
		if role == scope {
			return true, nil
		}
	}
	if a == nil {
		return false, nil
	}
	for _, role := range roles {
		inherited, err := a.enforcer.GetImplicitRolesForUser(role)
		if err != nil {
			return false, err
		}
		for _, r := range inherited {
			if r == scope {
				return true, nil
			}
		}
		ok, err := a.enforcer.Enforce(role, scope)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
