package config

import (
	"context"
	"testing"

	"github.com/mmdatafocus/invoicing_backend/appctx"
	"gorm.io/gorm/clause"
)

func TestExprHasOrganizationID(t *testing.T) {
	cases := []struct {
		name string
		expr clause.Expression
		want bool
	}{
		{"eq column name", clause.Eq{Column: "organization_id", Value: "x"}, true},
		{"eq qualified column", clause.Eq{Column: clause.Column{Table: "invoices", Name: "organization_id"}, Value: "x"}, true},
		{"in", clause.IN{Column: "organization_id", Values: []interface{}{"x"}}, true},
		{"neq", clause.Neq{Column: "organization_id", Value: "x"}, true},
		{"gt", clause.Gt{Column: "organization_id", Value: "a"}, true},
		{"gte", clause.Gte{Column: "organization_id", Value: "a"}, true},
		{"lt", clause.Lt{Column: "organization_id", Value: "z"}, true},
		{"lte", clause.Lte{Column: "organization_id", Value: "z"}, true},
		{"gt other column", clause.Gt{Column: "id", Value: 1}, false},
		{"raw expr", clause.Expr{SQL: "organization_id = ? OR organization_id IS NULL"}, true},
		{"nested and", clause.AndConditions{Exprs: []clause.Expression{clause.Eq{Column: "id", Value: 1}, clause.Eq{Column: "organization_id", Value: "x"}}}, true},
		{"other column", clause.Eq{Column: "id", Value: 1}, false},
		{"raw without tenant", clause.Expr{SQL: "id = ?"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exprHasOrganizationID(tc.expr); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWhereHasOrganizationID(t *testing.T) {
	if whereHasOrganizationID(clause.Clause{}) {
		t.Fatalf("empty clause has no tenant filter")
	}
	c := clause.Clause{Expression: clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: "id", Value: 1},
		clause.Expr{SQL: "organization_id = ?", Vars: []interface{}{"x"}},
	}}}
	if !whereHasOrganizationID(c) {
		t.Fatalf("expected tenant filter to be detected")
	}
}

func TestTenantScopeContext(t *testing.T) {
	ctx := context.Background()
	if organizationIdFromContext(ctx) != "" || shouldBypassTenantScope(ctx) {
		t.Fatalf("empty context must neither scope nor bypass")
	}
	ctx = appctx.Set(ctx, appctx.ContextKeyOrganizationId, "org-1")
	if organizationIdFromContext(ctx) != "org-1" {
		t.Fatalf("organization id not read from context")
	}
	if !shouldBypassTenantScope(appctx.Set(ctx, appctx.ContextKeySkipTenantScope, true)) {
		t.Fatalf("skip flag must bypass")
	}
	if !shouldBypassTenantScope(appctx.Set(ctx, appctx.ContextKeyIsAdmin, true)) {
		t.Fatalf("admin flag must bypass")
	}
}
