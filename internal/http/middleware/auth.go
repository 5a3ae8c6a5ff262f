// README: Identity middleware resolving trusted gateway headers into a Principal.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buslink/internal/types"
)

type PrincipalKind string

const (
	PrincipalAdmin  PrincipalKind = "admin"
	PrincipalDriver PrincipalKind = "driver"
	PrincipalRider  PrincipalKind = "rider"
)

// Principal is the tagged caller identity. It is resolved exactly once here,
// at the boundary; downstream code switches on Kind and never re-infers roles
// from request shape.
type Principal struct {
	Kind PrincipalKind
	ID   types.ID
}

const principalKey = "buslink.principal"

// Identity trusts the X-Caller-Kind / X-Caller-ID headers stamped by the
// upstream auth gateway. This service does not verify credentials itself.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := PrincipalKind(c.GetHeader("X-Caller-Kind"))
		id := c.GetHeader("X-Caller-ID")
		switch kind {
		case PrincipalAdmin, PrincipalDriver, PrincipalRider:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown caller kind"})
			return
		}
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing caller id"})
			return
		}
		c.Set(principalKey, Principal{Kind: kind, ID: types.ID(id)})
		c.Next()
	}
}

// Caller returns the resolved principal for the request.
func Caller(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
