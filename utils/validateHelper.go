package utils

import (
	"context"
	"reflect"

	"github.com/mmdatafocus/invoicing_backend/config"
	"gorm.io/gorm"
)

// check if id exists for the organization, returns NotFound otherwise
func ValidateResourceId[T any](ctx context.Context, organizationId string, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, organizationId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return NotFound("%s %v", GetTypeName[T](), id)
	}
	return nil
}

// check if ALL ids exist for the organization, returns NotFound otherwise
func ValidateResourcesId[M any, ID comparable](ctx context.Context, organizationId string, ids []ID) error {
	unqIds := UniqueSlice(ids)
	if len(unqIds) == 0 {
		return nil
	}
	count, err := ResourceCountWhere[M](ctx, organizationId, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return NotFound("one or more %s ids", GetTypeName[M]())
	}
	return nil
}

func ValidateUnique[T any](ctx context.Context, organizationId string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if exceptId == nil || reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, organizationId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, organizationId, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return Conflict("duplicate %s", column)
	}
	return nil
}

// count records, using WHERE organization_id = ? AND $condition
// organizationId can be blank for admin user
func ResourceCountWhere[T any](ctx context.Context, organizationId string, condition string, value ...interface{}) (int64, error) {
	return ResourceCountWhereTx[T](config.GetDB().WithContext(ctx), organizationId, condition, value...)
}

func ResourceCountWhereTx[T any](tx *gorm.DB, organizationId string, condition string, value ...interface{}) (int64, error) {
	var model T
	dbCtx := tx.Model(&model)
	var count int64
	if organizationId != "" {
		dbCtx = dbCtx.Where("organization_id = ?", organizationId)
	}
	dbCtx = dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, ClassifyDBError(err)
	}
	return count, nil
}
