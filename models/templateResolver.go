package models

import (
	"context"
	"errors"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type TemplateSource string

const (
	TemplateSourceExplicit            TemplateSource = "explicit"
	TemplateSourceInvoice             TemplateSource = "invoice"
	TemplateSourceOrganizationDefault TemplateSource = "organization_default"
	TemplateSourceGlobalDefault       TemplateSource = "global_default"
)

// TemplateCandidates holds one candidate per precedence level; nil means the level has none.
type TemplateCandidates struct {
	Explicit            *Template
	Stored              *Template
	OrganizationDefault *Template
	GlobalDefault       *Template
}

type TemplateResolution struct {
	Template *Template      `json:"template"`
	Source   TemplateSource `json:"source"`
}

// ResolveTemplate applies the precedence explicit > stored on invoice >
// organization default > global default. It has no side effects.
func ResolveTemplate(c TemplateCandidates) (*TemplateResolution, error) {
	switch {
	case c.Explicit != nil:
		return &TemplateResolution{Template: c.Explicit, Source: TemplateSourceExplicit}, nil
	case c.Stored != nil:
		return &TemplateResolution{Template: c.Stored, Source: TemplateSourceInvoice}, nil
	case c.OrganizationDefault != nil:
		return &TemplateResolution{Template: c.OrganizationDefault, Source: TemplateSourceOrganizationDefault}, nil
	case c.GlobalDefault != nil:
		return &TemplateResolution{Template: c.GlobalDefault, Source: TemplateSourceGlobalDefault}, nil
	}
	return nil, utils.NotFound("no template resolvable: no explicit, stored, organization default or global default template")
}

// LoadTemplateCandidates reads the candidates from the database, stopping at the
// first level that has one. An explicit id that is not visible to the organization
// is NotFound; a stored id whose template is gone counts as no stored template.
func LoadTemplateCandidates(tx *gorm.DB, organizationId string, storedTemplateId *int, explicitTemplateId *int) (TemplateCandidates, error) {
	var c TemplateCandidates
	if explicitTemplateId != nil {
		t, err := getVisibleTemplateTx(tx, organizationId, *explicitTemplateId)
		if err != nil {
			return c, err
		}
		c.Explicit = t
		return c, nil
	}
	if storedTemplateId != nil {
		t, err := getVisibleTemplateTx(tx, organizationId, *storedTemplateId)
		if err == nil {
			c.Stored = t
			return c, nil
		}
		if !errors.Is(err, utils.ErrNotFound) {
			return c, err
		}
	}
	t, err := getOrganizationDefaultTemplateTx(tx, organizationId)
	if err != nil {
		return c, err
	}
	if t != nil {
		c.OrganizationDefault = t
		return c, nil
	}
	c.GlobalDefault, err = getGlobalDefaultTemplateTx(tx)
	return c, err
}

// ResolveInvoiceTemplate loads candidates and resolves without writing anything.
// Render paths use this.
func ResolveInvoiceTemplate(ctx context.Context, invoice *Invoice, explicitTemplateId *int) (*TemplateResolution, error) {
	db := config.GetDB().WithContext(ctx)
	c, err := LoadTemplateCandidates(db, invoice.OrganizationId, invoice.TemplateId, explicitTemplateId)
	if err != nil {
		return nil, err
	}
	return ResolveTemplate(c)
}

// CommitTemplateResolution records an explicit template choice on the invoice.
// Only explicit resolutions are written, and only when they differ from what the
// invoice stores. When SYNC_ORG_DEFAULT_TEMPLATE is on, an explicit
// organization-scoped choice also becomes the organization default.
// Must run inside the caller's transaction; returns whether the invoice changed.
func CommitTemplateResolution(ctx context.Context, tx *gorm.DB, invoice *Invoice, res *TemplateResolution) (changed bool, err error) {
	if res == nil || res.Source != TemplateSourceExplicit {
		return false, nil
	}
	ctx, span := tracer.Start(ctx, "CommitTemplateResolution")
	span.SetAttributes(
		attribute.Int("invoice_id", invoice.ID),
		attribute.Int("template_id", res.Template.ID),
	)
	defer func() { endSpan(span, err) }()
	tx = tx.WithContext(ctx)

	if invoice.TemplateId == nil || *invoice.TemplateId != res.Template.ID {
		id := res.Template.ID
		if err := tx.Model(&Invoice{}).
			Where("id = ? AND organization_id = ?", invoice.ID, invoice.OrganizationId).
			Update("template_id", id).Error; err != nil {
			return false, utils.ClassifyDBError(err)
		}
		invoice.TemplateId = &id
		changed = true
	}

	if config.SyncOrgDefaultTemplate() && !res.Template.IsGlobal() {
		if err := setDefaultTemplateTx(tx, invoice.OrganizationId, res.Template.ID); err != nil {
			return changed, err
		}
		config.GetLogger().WithFields(logrus.Fields{
			"module":          "templateResolver",
			"organization_id": invoice.OrganizationId,
			"template_id":     res.Template.ID,
		}).Info("organization default template synced from invoice choice")
	}
	return changed, nil
}
