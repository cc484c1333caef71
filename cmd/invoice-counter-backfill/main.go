// invoice-counter-backfill creates the missing invoice number counters of
// organizations created before counters existed. Each counter starts at the
// organization's highest numeric invoice number. Allocation itself never creates
// counters; a missing counter is reported as NotFound until this job has run.
//
// Usage:
//
//	DRY_RUN=true go run ./cmd/invoice-counter-backfill
//	ORGANIZATION_ID=<uuid> go run ./cmd/invoice-counter-backfill
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/sirupsen/logrus"
)

const lockType = "InvoiceCounterBackfill"

func main() {
	dryRun := strings.EqualFold(strings.TrimSpace(os.Getenv("DRY_RUN")), "true")
	onlyOrg := strings.TrimSpace(os.Getenv("ORGANIZATION_ID"))

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	logger := config.GetLogger()

	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)

	var organizationIds []string
	q := db.WithContext(ctx).Model(&models.Organization{}).
		Where("NOT EXISTS (SELECT 1 FROM invoice_number_counters c WHERE c.organization_id = organizations.id)")
	if onlyOrg != "" {
		q = q.Where("id = ?", onlyOrg)
	}
	if err := q.Order("created_at").Pluck("id", &organizationIds).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list organizations: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("organizations without counter: %d (dry_run=%v)\n", len(organizationIds), dryRun)
	if dryRun {
		for _, id := range organizationIds {
			fmt.Println(id)
		}
		return
	}

	failed := 0
	for _, organizationId := range organizationIds {
		created, err := backfill(ctx, organizationId)
		if err != nil {
			failed++
			config.LogError(logger, "invoice-counter-backfill", "main", "backfill", organizationId, err)
			continue
		}
		logger.WithFields(logrus.Fields{
			"field":           "invoice-counter-backfill",
			"organization_id": organizationId,
			"created":         created,
		}).Info("counter checked")
		fmt.Printf("%s created=%v\n", organizationId, created)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d organizations failed\n", failed)
		os.Exit(1)
	}
}

// The Redis lock keeps two job runs from racing; the organization row lock
// inside BackfillInvoiceNumberCounter is what makes it safe.
func backfill(ctx context.Context, organizationId string) (bool, error) {
	lock, err := utils.ObtainOrganizationLock(ctx, organizationId, lockType, time.Minute)
	if err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return false, err
		}
		config.GetLogger().WithFields(logrus.Fields{
			"field":           "invoice-counter-backfill",
			"organization_id": organizationId,
		}).Warn("proceeding without redis lock: " + err.Error())
		lock = nil
	}
	if lock != nil {
		defer func() { _ = lock.Release(context.Background()) }()
	}
	return models.BackfillInvoiceNumberCounter(ctx, organizationId)
}
