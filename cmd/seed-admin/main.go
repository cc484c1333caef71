// seed-admin creates or updates the platform admin user and makes sure a global
// default invoice template exists, so template resolution always has a fallback.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	ADMIN_USERNAME=admin ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

const (
	defaultAdminUsername = "invoicingAdmin"
	defaultAdminName     = "Invoicing Admin"
	defaultTemplateName  = "Standard"
)

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_PASSWORD is required")
		os.Exit(2)
	}
	username := envOr("ADMIN_USERNAME", defaultAdminUsername)

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	}

	ctx := utils.SetIsAdminInContext(context.Background(), true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	user, err := models.SeedAdmin(ctx, username, envOr("ADMIN_NAME", defaultAdminName), os.Getenv("ADMIN_EMAIL"), password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("admin user ready: id=%d username=%s\n", user.ID, user.Username)

	globals, err := models.ListGlobalTemplates(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list global templates: %v\n", err)
		os.Exit(1)
	}
	for _, t := range globals {
		if t.IsDefault {
			fmt.Printf("global default template present: id=%d name=%q\n", t.ID, t.Name)
			return
		}
	}
	t, err := models.CreateGlobalTemplate(ctx, &models.NewTemplate{
		Name:        defaultTemplateName,
		Description: "Default layout for every organization without its own default",
	}, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create global default template: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created global default template: id=%d name=%q\n", t.ID, t.Name)
}
