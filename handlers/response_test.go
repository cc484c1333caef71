package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{utils.NotFound("invoice 9"), http.StatusNotFound},
		{utils.InvalidInput("tax rate"), http.StatusBadRequest},
		{utils.Conflict("invoice number"), http.StatusConflict},
		{fmt.Errorf("%w: db down", utils.ErrTransient), http.StatusServiceUnavailable},
		{utils.Forbidden("owners only"), http.StatusForbidden},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/", func(c *gin.Context) { respondError(c, "testHandler", tc.err) })
		w := do(r, http.MethodGet, "/", "")
		if w.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["error"] != tc.err.Error() {
			t.Fatalf("expected error message %q, got %q", tc.err.Error(), body["error"])
		}
	}
}

type widgetInput struct {
	Name  string `json:"name" binding:"required,max=10"`
	Count int    `json:"count" binding:"gte=0"`
}

type widget struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestCreateHandler(t *testing.T) {
	var calls int
	create := func(ctx context.Context, in *widgetInput) (*widget, error) {
		calls++
		if in.Name == "taken" {
			return nil, utils.Conflict("name %s", in.Name)
		}
		return &widget{ID: 1, Name: in.Name}, nil
	}
	r := gin.New()
	r.POST("/widgets", createHandler("createWidgetHandler", create))

	w := do(r, http.MethodPost, "/widgets", `{"name":"lamp","count":2}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/widgets", `{"count":-1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a failed validation, got %d", w.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Fields["Name"] != "required" || body.Fields["Count"] != "gte" {
		t.Fatalf("unexpected field errors %v", body.Fields)
	}

	w = do(r, http.MethodPost, "/widgets", `{"name":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}

	w = do(r, http.MethodPost, "/widgets", `{"name":"taken"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if calls != 2 {
		t.Fatalf("create should only run for valid input, ran %d times", calls)
	}
}

func TestByIdHandlerRejectsBadId(t *testing.T) {
	var got int
	r := gin.New()
	r.GET("/widgets/:id", byIdHandler("getWidgetHandler", func(ctx context.Context, id int) (*widget, error) {
		got = id
		return &widget{ID: id}, nil
	}))
	for _, path := range []string{"/widgets/abc", "/widgets/0", "/widgets/-4"} {
		if w := do(r, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, w.Code)
		}
	}
	if w := do(r, http.MethodGet, "/widgets/42", ""); w.Code != http.StatusOK || got != 42 {
		t.Fatalf("expected 200 with id 42, got %d with %d", w.Code, got)
	}
}

func TestQueryParsers(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if _, err := queryInt(c, "limit"); err != nil {
			respondError(c, "test", err)
			return
		}
		if _, err := queryDate(c, "from"); err != nil {
			respondError(c, "test", err)
			return
		}
		c.Status(http.StatusOK)
	})
	cases := map[string]int{
		"/":                          http.StatusOK,
		"/?limit=20&from=2024-01-31": http.StatusOK,
		"/?limit=twenty":             http.StatusBadRequest,
		"/?from=31/01/2024":          http.StatusBadRequest,
	}
	for path, want := range cases {
		if w := do(r, http.MethodGet, path, ""); w.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, w.Code)
		}
	}
}

func TestRoutesRequireSession(t *testing.T) {
	r := gin.New()
	RegisterRoutes(r)
	for _, path := range []string{"/api/me", "/api/organizations", "/api/organizations/org-1/invoices"} {
		if w := do(r, http.MethodGet, path, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
	if w := do(r, http.MethodGet, "/api/admin/templates", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("admin route: expected 401, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/signup", `{"username":"ann"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("signup with missing fields: expected 400, got %d", w.Code)
	}
}
