package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser stands in for SessionMiddleware.
func withUser(userId int, isAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(utils.SetUserIdInContext(c.Request.Context(), userId))
		c.Set(ginKeyIsAdmin, isAdmin)
		c.Next()
	}
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := gin.New()
	r.GET("/anon", RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/user", withUser(3, false), RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(r, http.MethodGet, "/anon", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/user", nil); w.Code != http.StatusOK {
		t.Fatalf("logged in: expected 200, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	var sawAdmin bool
	handler := func(c *gin.Context) {
		sawAdmin, _ = utils.GetIsAdminFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	}
	r := gin.New()
	r.GET("/anon", RequireAdmin(), handler)
	r.GET("/user", withUser(3, false), RequireAdmin(), handler)
	r.GET("/admin", withUser(1, true), RequireAdmin(), handler)

	if w := serve(r, http.MethodGet, "/anon", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/user", nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", w.Code)
	}
	if sawAdmin {
		t.Fatalf("handler must not run for non-admins")
	}
	if w := serve(r, http.MethodGet, "/admin", nil); w.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", w.Code)
	}
	if !sawAdmin {
		t.Fatalf("admin flag not set in request context")
	}
}

func TestRequireOwner(t *testing.T) {
	asRole := func(role models.MemberRole) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(GinKeyMemberRole, string(role))
			c.Next()
		}
	}
	r := gin.New()
	r.GET("/owner", asRole(models.MemberRoleOwner), RequireOwner(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/member", asRole(models.MemberRoleMember), RequireOwner(), func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(r, http.MethodGet, "/owner", nil); w.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/member", nil); w.Code != http.StatusForbidden {
		t.Fatalf("member: expected 403, got %d", w.Code)
	}
}

func TestOrganizationMiddlewareRequiresUser(t *testing.T) {
	r := gin.New()
	r.GET("/orgs/:orgId", OrganizationMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := serve(r, http.MethodGet, "/orgs/abc", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", w.Code)
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/", func(c *gin.Context) {
		seen, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/", http.Header{"X-Correlation-Id": {"abc-123"}})
	if got := w.Header().Get(CorrelationHeader); got != "abc-123" {
		t.Fatalf("expected the incoming id echoed, got %q", got)
	}
	if seen != "abc-123" {
		t.Fatalf("expected the incoming id in context, got %q", seen)
	}

	w = serve(r, http.MethodGet, "/", nil)
	generated := w.Header().Get(CorrelationHeader)
	if generated == "" || generated != seen {
		t.Fatalf("expected a generated id echoed and stored, header=%q ctx=%q", generated, seen)
	}
}

func TestSessionMiddlewareAnonymous(t *testing.T) {
	var userId int
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/", func(c *gin.Context) {
		userId, _ = utils.GetUserIdFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusOK {
		t.Fatalf("requests without a token pass through, got %d", w.Code)
	}
	if userId != 0 {
		t.Fatalf("anonymous request must not carry a user id")
	}
}

func TestSessionMiddlewareUnknownToken(t *testing.T) {
	// No redis client is connected, so every token is unknown.
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := serve(r, http.MethodGet, "/", http.Header{"Token": {"does-not-exist"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
