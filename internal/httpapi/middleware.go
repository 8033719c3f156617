// Package httpapi is the gin HTTP surface from spec.md §6, replacing
// the teacher's net/http ServeMux handlers (internal/api) with gin's
// router and middleware chain while keeping the same StandardResponse
// JSON envelope idiom.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/scope"
)

const (
	ctxTenantID = "ragline.tenant_id"
	ctxVis      = "ragline.visibility"
)

// AuthMiddleware resolves the bearer token to a tenant_id via the
// static configuration map, per spec.md §6.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tenantID, ok := cfg.ResolveTenant(token)
		if !ok {
			fail(c, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		c.Set(ctxTenantID, tenantID)
		c.Next()
	}
}

// VisibilityMiddleware builds the request's Visibility from the
// resolved tenant plus optional X-Workspace-Id/X-Principal-Id headers.
func VisibilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _ := c.Get(ctxTenantID)
		vis := scope.NewVisibility(tenantID.(string), c.GetHeader("X-Workspace-Id"), c.GetHeader("X-Principal-Id"))
		c.Set(ctxVis, vis)
		c.Next()
	}
}

func tenantID(c *gin.Context) string {
	v, _ := c.Get(ctxTenantID)
	s, _ := v.(string)
	return s
}

func visibility(c *gin.Context) scope.Visibility {
	v, _ := c.Get(ctxVis)
	vis, _ := v.(scope.Visibility)
	return vis
}

// resolveScope validates the upload scope against its headers, per
// spec.md §6: "scope=workspace requires X-Workspace-Id; scope=user
// requires both X-Workspace-Id and X-Principal-Id."
func resolveScope(c *gin.Context, rawScope string) (scope.Key, error) {
	key := scope.Key{
		TenantID:    tenantID(c),
		Scope:       scope.Level(rawScope),
		WorkspaceID: c.GetHeader("X-Workspace-Id"),
		PrincipalID: c.GetHeader("X-Principal-Id"),
	}
	if err := key.Validate(); err != nil {
		return scope.Key{}, ragerr.Wrap(ragerr.Validation, "invalid scope", err)
	}
	return key, nil
}

// StandardResponse is the JSON envelope every endpoint replies with,
// the same success/data/error shape as the teacher's internal/api
// StandardResponse.
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, StandardResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, StandardResponse{Success: false, Error: msg})
}

// failErr maps a ragerr.Error (or any error) to the HTTP status table
// in spec.md §7.
func failErr(c *gin.Context, err error) {
	switch ragerr.KindOf(err) {
	case ragerr.Auth:
		fail(c, http.StatusUnauthorized, err.Error())
	case ragerr.Validation:
		fail(c, http.StatusBadRequest, err.Error())
	case ragerr.NotFound:
		fail(c, http.StatusNotFound, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}
