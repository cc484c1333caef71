package models_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/shopspring/decimal"
)

// signupOrganization registers a user and returns a context scoped to their first organization.
func signupOrganization(t *testing.T, ctx context.Context, username, currency string) (context.Context, string) {
	t.Helper()
	info, err := models.Signup(ctx, &models.NewSignup{
		Username:         username,
		Name:             username,
		Password:         "password-" + username,
		OrganizationName: username + " Ltd",
		DefaultCurrency:  currency,
	})
	if err != nil {
		t.Fatalf("Signup(%s): %v", username, err)
	}
	if len(info.Organizations) != 1 {
		t.Fatalf("expected one organization after signup, got %d", len(info.Organizations))
	}
	orgId := info.Organizations[0].ID
	return utils.SetOrganizationIdInContext(ctx, orgId), orgId
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func stringPtr(s string) *string { return &s }

func assertDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", what, want, got.StringFixed(2))
	}
}

func TestAllocateInvoiceNumber_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	ctx := setupIntegration(t)
	_, orgA := signupOrganization(t, ctx, "alloc-a", "")
	_, orgB := signupOrganization(t, ctx, "alloc-b", "")

	const workers = 40
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		got = map[string][]int64{}
	)
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		for _, org := range []string{orgA, orgB} {
			wg.Add(1)
			go func(org string) {
				defer wg.Done()
				n, err := models.AllocateInvoiceNumber(ctx, org)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				got[org] = append(got[org], n)
				mu.Unlock()
			}(org)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AllocateInvoiceNumber: %v", err)
	}

	// Each organization gets exactly 1..workers, independent of the other.
	for _, org := range []string{orgA, orgB} {
		nums := got[org]
		sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
		if len(nums) != workers {
			t.Fatalf("org %s: expected %d numbers, got %d", org, workers, len(nums))
		}
		for i, n := range nums {
			if n != int64(i+1) {
				t.Fatalf("org %s: expected contiguous numbers from 1, got %v", org, nums)
			}
		}
	}
}

func TestAllocateInvoiceNumber_MissingCounter(t *testing.T) {
	ctx := setupIntegration(t)
	if _, err := models.AllocateInvoiceNumber(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected NotFound for an organization without a counter, got %v", err)
	}
	if _, err := models.AllocateInvoiceNumber(ctx, ""); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput for an empty organization id, got %v", err)
	}
}

func TestCreateInvoice_NumbersTotalsAndItemReplacement(t *testing.T) {
	ctx := setupIntegration(t)
	orgCtx, _ := signupOrganization(t, ctx, "e2e", "eur")

	invoice, err := models.CreateInvoice(orgCtx, &models.NewInvoice{
		Items: []models.NewInvoiceItem{
			{Description: "Consulting", Quantity: dec("2"), UnitPrice: decPtr("50.00"), TaxRate: decPtr("10")},
			{Description: "Book", Quantity: dec("1"), UnitPrice: decPtr("30.00"), TaxRate: decPtr("0")},
		},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if invoice.InvoiceNumber != "1" {
		t.Fatalf("expected first invoice number 1, got %s", invoice.InvoiceNumber)
	}
	if invoice.Currency != "EUR" {
		t.Fatalf("expected organization currency EUR, got %s", invoice.Currency)
	}
	if invoice.Status != models.InvoiceStatusDraft {
		t.Fatalf("expected DRAFT, got %s", invoice.Status)
	}
	assertDecimal(t, "subtotal", invoice.Subtotal, "130")
	assertDecimal(t, "tax", invoice.TaxTotal, "10")
	assertDecimal(t, "total", invoice.Total, "140")

	second, err := models.CreateInvoice(orgCtx, &models.NewInvoice{Currency: stringPtr("usd")})
	if err != nil {
		t.Fatalf("CreateInvoice (empty): %v", err)
	}
	if second.InvoiceNumber != "2" || second.Currency != "USD" {
		t.Fatalf("expected invoice 2 in USD, got %s in %s", second.InvoiceNumber, second.Currency)
	}
	assertDecimal(t, "empty total", second.Total, "0")

	updated, err := models.ReplaceInvoiceItems(orgCtx, invoice.ID, []models.NewInvoiceItem{
		{Description: "Consulting", Quantity: dec("1"), UnitPrice: decPtr("200.00"), TaxRate: decPtr("20")},
	})
	if err != nil {
		t.Fatalf("ReplaceInvoiceItems: %v", err)
	}
	assertDecimal(t, "subtotal after replace", updated.Subtotal, "200")
	assertDecimal(t, "tax after replace", updated.TaxTotal, "40")
	assertDecimal(t, "total after replace", updated.Total, "240")
	if len(updated.Items) != 1 {
		t.Fatalf("expected the item set to be replaced, got %d items", len(updated.Items))
	}
	if updated.InvoiceNumber != "1" {
		t.Fatalf("replacing items must keep the number, got %s", updated.InvoiceNumber)
	}

	// A rejected invoice does not consume a number.
	if _, err := models.CreateInvoice(orgCtx, &models.NewInvoice{
		Items: []models.NewInvoiceItem{{Quantity: dec("1"), UnitPrice: decPtr("5"), TaxRate: decPtr("150")}},
	}); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput for a tax rate above 100, got %v", err)
	}
	if _, err := models.CreateInvoice(orgCtx, &models.NewInvoice{
		Items: []models.NewInvoiceItem{{Quantity: dec("1000"), UnitPrice: decPtr("0.00005"), TaxRate: decPtr("0")}},
	}); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput for a price finer than the stored scale, got %v", err)
	}
	if _, err := models.CreateInvoice(orgCtx, &models.NewInvoice{
		Items: []models.NewInvoiceItem{{Quantity: dec("1000000000000000"), UnitPrice: decPtr("1000000000000000"), TaxRate: decPtr("0")}},
	}); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput for a line total beyond the money column, got %v", err)
	}
	third, err := models.CreateInvoice(orgCtx, &models.NewInvoice{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if third.InvoiceNumber != "3" {
		t.Fatalf("expected invoice 3, got %s", third.InvoiceNumber)
	}
}

func TestInvoices_AreIsolatedBetweenOrganizations(t *testing.T) {
	ctx := setupIntegration(t)
	ctxA, _ := signupOrganization(t, ctx, "iso-a", "")
	ctxB, _ := signupOrganization(t, ctx, "iso-b", "")

	invA, err := models.CreateInvoice(ctxA, &models.NewInvoice{})
	if err != nil {
		t.Fatalf("CreateInvoice A: %v", err)
	}
	invB, err := models.CreateInvoice(ctxB, &models.NewInvoice{})
	if err != nil {
		t.Fatalf("CreateInvoice B: %v", err)
	}
	if invA.InvoiceNumber != "1" || invB.InvoiceNumber != "1" {
		t.Fatalf("each organization numbers from 1, got %s and %s", invA.InvoiceNumber, invB.InvoiceNumber)
	}
	if _, err := models.GetInvoice(ctxB, invA.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("organization B must not see A's invoice, got %v", err)
	}
	if _, err := models.ReplaceInvoiceItems(ctxB, invA.ID, nil); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("organization B must not edit A's invoice, got %v", err)
	}
}

func TestSetDefaultTemplate_ConcurrentSwitchesLeaveOneDefault(t *testing.T) {
	ctx := setupIntegration(t)
	orgCtx, orgId := signupOrganization(t, ctx, "tmpl", "")

	var ids []int
	for i := 0; i < 5; i++ {
		tmpl, err := models.CreateTemplate(orgCtx, &models.NewTemplate{Name: fmt.Sprintf("Layout %d", i)})
		if err != nil {
			t.Fatalf("CreateTemplate: %v", err)
		}
		ids = append(ids, tmpl.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*4)
	for round := 0; round < 4; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				if _, err := models.SetDefaultTemplate(orgCtx, id); err != nil {
					errs <- err
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("SetDefaultTemplate: %v", err)
	}

	count, err := models.CountDefaultTemplates(orgCtx, orgId)
	if err != nil {
		t.Fatalf("CountDefaultTemplates: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one default template, got %d", count)
	}
}

func TestTemplateResolution_PrecedenceAndFallback(t *testing.T) {
	ctx := setupIntegration(t)
	orgCtx, _ := signupOrganization(t, ctx, "prec", "")
	otherCtx, _ := signupOrganization(t, ctx, "prec-other", "")

	global, err := models.CreateGlobalTemplate(ctx, &models.NewTemplate{Name: "Standard"}, true)
	if err != nil {
		t.Fatalf("CreateGlobalTemplate: %v", err)
	}
	orgDefault, err := models.CreateTemplate(orgCtx, &models.NewTemplate{Name: "House"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	chosen, err := models.CreateTemplate(orgCtx, &models.NewTemplate{Name: "Compact"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	foreign, err := models.CreateTemplate(otherCtx, &models.NewTemplate{Name: "Theirs"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	invoice, err := models.CreateInvoice(orgCtx, &models.NewInvoice{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	expect := func(explicit *int, wantId int, wantSource models.TemplateSource) {
		t.Helper()
		inv, err := models.GetInvoice(orgCtx, invoice.ID)
		if err != nil {
			t.Fatalf("GetInvoice: %v", err)
		}
		res, err := models.ResolveInvoiceTemplate(orgCtx, inv, explicit)
		if err != nil {
			t.Fatalf("ResolveInvoiceTemplate: %v", err)
		}
		if res.Template.ID != wantId || res.Source != wantSource {
			t.Fatalf("expected template %d from %s, got %d from %s", wantId, wantSource, res.Template.ID, res.Source)
		}
	}

	expect(nil, global.ID, models.TemplateSourceGlobalDefault)

	if _, err := models.SetDefaultTemplate(orgCtx, orgDefault.ID); err != nil {
		t.Fatalf("SetDefaultTemplate: %v", err)
	}
	expect(nil, orgDefault.ID, models.TemplateSourceOrganizationDefault)

	// Resolving with an explicit choice is read-only.
	expect(&chosen.ID, chosen.ID, models.TemplateSourceExplicit)
	expect(nil, orgDefault.ID, models.TemplateSourceOrganizationDefault)

	if _, err := models.UpdateInvoiceHeader(orgCtx, invoice.ID, &models.UpdateInvoice{TemplateId: &chosen.ID}); err != nil {
		t.Fatalf("UpdateInvoiceHeader: %v", err)
	}
	expect(nil, chosen.ID, models.TemplateSourceInvoice)
	expect(&global.ID, global.ID, models.TemplateSourceExplicit)

	// The stored choice does not leak into the organization default while the sync flag is off.
	other, err := models.CreateInvoice(orgCtx, &models.NewInvoice{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	res, err := models.ResolveInvoiceTemplate(orgCtx, other, nil)
	if err != nil {
		t.Fatalf("ResolveInvoiceTemplate: %v", err)
	}
	if res.Template.ID != orgDefault.ID {
		t.Fatalf("expected organization default %d, got %d", orgDefault.ID, res.Template.ID)
	}

	if err := models.UnsetDefaultTemplate(orgCtx); err != nil {
		t.Fatalf("UnsetDefaultTemplate: %v", err)
	}
	if res, err = models.ResolveInvoiceTemplate(orgCtx, other, nil); err != nil {
		t.Fatalf("ResolveInvoiceTemplate: %v", err)
	}
	if res.Template.ID != global.ID || res.Source != models.TemplateSourceGlobalDefault {
		t.Fatalf("expected fallback to the global default, got %d from %s", res.Template.ID, res.Source)
	}

	if _, err := models.ResolveInvoiceTemplate(orgCtx, other, &foreign.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("another organization's template must be NotFound, got %v", err)
	}
	missing := 999999
	if _, err := models.CreateInvoice(orgCtx, &models.NewInvoice{TemplateId: &missing}); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected NotFound for a missing explicit template, got %v", err)
	}
}

func TestTemplateResolution_SyncOrganizationDefault(t *testing.T) {
	ctx := setupIntegration(t)
	t.Setenv("SYNC_ORG_DEFAULT_TEMPLATE", "true")
	orgCtx, _ := signupOrganization(t, ctx, "sync", "")

	chosen, err := models.CreateTemplate(orgCtx, &models.NewTemplate{Name: "Chosen"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if _, err := models.CreateInvoice(orgCtx, &models.NewInvoice{TemplateId: &chosen.ID}); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	next, err := models.CreateInvoice(orgCtx, &models.NewInvoice{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	res, err := models.ResolveInvoiceTemplate(orgCtx, next, nil)
	if err != nil {
		t.Fatalf("ResolveInvoiceTemplate: %v", err)
	}
	if res.Template.ID != chosen.ID || res.Source != models.TemplateSourceOrganizationDefault {
		t.Fatalf("expected the explicit choice to become the organization default, got %d from %s", res.Template.ID, res.Source)
	}
	if !config.SyncOrgDefaultTemplate() {
		t.Fatalf("flag should be on for this test")
	}
}
