package middleware

import (
	"net/http"
	"strconv"

	"github.com/contentd/contentd/internal/authz"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// PrincipalMiddleware turns verified claims into an authz principal. Roles
// come from "roles" or Keycloak's "realm_access.roles"; references from
// "references". Requests without claims act as the anonymous principal.
func PrincipalMiddleware(a *authz.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.Set(principalKey, authz.Principal(authz.Anonymous()))
			c.Next()
			return
		}
		sub, _ := claims["sub"].(string)
		roles := stringsClaim(claims["roles"])
		if realm, ok := claims["realm_access"].(map[string]interface{}); ok {
			roles = append(roles, stringsClaim(realm["roles"])...)
		}
		p := authz.NewPrincipal(a, sub, roles, idsClaim(claims["references"]))
		c.Set(principalKey, authz.Principal(p))
		c.Next()
	}
}

// PrincipalFrom returns the request principal, anonymous when none was set.
func PrincipalFrom(c *gin.Context) authz.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(authz.Principal); ok {
			return p
		}
	}
	return authz.Anonymous()
}

// RequireScope rejects principals that are not granted scope. An empty scope
// lets every request through.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if scope != "" && !PrincipalFrom(c).IsGranted(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "details": "requires " + scope})
			return
		}
		c.Next()
	}
}

func stringsClaim(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case []interface{}:
		for _, x := range t {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, t...)
	case string:
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// idsClaim accepts JSON numbers or numeric strings and skips anything else.
func idsClaim(v interface{}) []int64 {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []int64
	for _, x := range list {
		switch t := x.(type) {
		case float64:
			out = append(out, int64(t))
		case int64:
			out = append(out, t)
		case int:
			out = append(out, int64(t))
		case string:
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}
