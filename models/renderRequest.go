package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"gorm.io/datatypes"
)

// Outbox publish statuses for RenderRequest.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// RenderRequest is an outbox row: the resolved document is stored with the request
// and published to the rendering service after commit by the outbox dispatcher.
type RenderRequest struct {
	ID             int            `gorm:"primary_key;index:idx_render_dispatch,priority:3" json:"id"`
	OrganizationId string         `gorm:"size:36;not null;index" json:"organization_id"`
	InvoiceId      int            `gorm:"not null;index" json:"invoice_id"`
	TemplateId     int            `gorm:"not null" json:"template_id"`
	Document       datatypes.JSON `json:"-"`
	// publish happens after commit via dispatcher
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index:idx_render_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index:idx_render_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RenderMessage converts the row into the envelope sent to the rendering service.
func (r RenderRequest) RenderMessage() config.RenderMessage {
	return config.RenderMessage{
		ID:             r.ID,
		OrganizationId: r.OrganizationId,
		InvoiceId:      r.InvoiceId,
		TemplateId:     r.TemplateId,
		CorrelationId:  r.CorrelationId,
		Document:       json.RawMessage(r.Document),
	}
}

// RequestInvoiceRender resolves the invoice document and queues it for rendering.
// Like every render path it reads only; the template choice is not written back.
func RequestInvoiceRender(ctx context.Context, invoiceId int, explicitTemplateId *int) (*RenderRequest, error) {
	doc, err := BuildInvoiceDocument(ctx, invoiceId, explicitTemplateId)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	req := RenderRequest{
		OrganizationId: doc.Organization.ID,
		InvoiceId:      doc.Invoice.ID,
		TemplateId:     doc.Template.ID,
		Document:       datatypes.JSON(payload),
		PublishStatus:  OutboxPublishStatusPending,
		CorrelationId:  correlationId,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &req, nil
}

func GetRenderRequest(ctx context.Context, id int) (*RenderRequest, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	return utils.FetchModel[RenderRequest](ctx, organizationId, id)
}

// ReplayRenderRequest puts a FAILED or DEAD request back in the dispatch queue.
func ReplayRenderRequest(ctx context.Context, id int) (*RenderRequest, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	now := time.Now().UTC()
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&RenderRequest{}).
		Where("id = ? AND organization_id = ? AND publish_status IN ?", id, organizationId,
			[]string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusFailed,
			"publish_attempts":   0,
			"next_attempt_at":    &now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return nil, utils.ClassifyDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		req, err := GetRenderRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, utils.Conflict("render request %d is %s", id, req.PublishStatus)
	}
	return GetRenderRequest(ctx, id)
}
