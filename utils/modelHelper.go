package utils

import (
	"context"

	"github.com/mmdatafocus/invoicing_backend/config"
)

/* DB fetching */

// fetch model from db
// (organization_id is used in query's WHERE, returns NotFound when missing)
func FetchModel[T any](ctx context.Context, organizationId string, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("organization_id = ?", organizationId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ClassifyDBError(err)
	}
	return &result, nil
}

// fetch all models of an organization ordered by id
func FetchAllModels[T any](ctx context.Context, organizationId string, associations ...string) ([]*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("organization_id = ?", organizationId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, ClassifyDBError(err)
	}
	return results, nil
}
