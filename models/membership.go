package models

import (
	"context"
	"strconv"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleMember MemberRole = "member"
)

type OrganizationMember struct {
	ID             int        `gorm:"primary_key" json:"id"`
	OrganizationId string     `gorm:"size:36;not null;uniqueIndex:idx_member_org_user,priority:1" json:"organization_id"`
	UserId         int        `gorm:"not null;uniqueIndex:idx_member_org_user,priority:2;index" json:"user_id"`
	Role           MemberRole `gorm:"size:20;not null;default:member" json:"role"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type NewOrganizationMember struct {
	Username string     `json:"username" binding:"required"`
	Role     MemberRole `json:"role" binding:"omitempty,oneof=owner member"`
}

/*
caches:
	OrganizationMember:$organizationId:$userId
*/

func membershipCacheId(organizationId string, userId int) string {
	return organizationId + ":" + strconv.Itoa(userId)
}

// GetMembership returns the user's membership in the organization, NotFound if none.
func GetMembership(ctx context.Context, organizationId string, userId int) (*OrganizationMember, error) {
	cacheId := membershipCacheId(organizationId, userId)
	cached, err := utils.RetrieveRedis[OrganizationMember](ctx, cacheId)
	if err != nil {
		config.LogError(config.GetLogger(), "MembershipModule", "GetMembership", "cache read", cacheId, err)
	}
	if cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var member OrganizationMember
	if err := db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", organizationId, userId).
		First(&member).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if err := utils.StoreRedis(ctx, &member, cacheId); err != nil {
		config.LogError(config.GetLogger(), "MembershipModule", "GetMembership", "cache write", cacheId, err)
	}
	return &member, nil
}

// AddOrganizationMember lets an owner add an existing user to the current organization.
func AddOrganizationMember(ctx context.Context, input *NewOrganizationMember) (*OrganizationMember, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	current, err := GetMembership(ctx, organizationId, userId)
	if err != nil {
		return nil, err
	}
	if current.Role != MemberRoleOwner {
		return nil, utils.Forbidden("only owners can add members")
	}
	user, err := GetUserByUsername(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = MemberRoleMember
	}
	member := OrganizationMember{
		OrganizationId: organizationId,
		UserId:         user.ID,
		Role:           role,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &member, nil
}

func RemoveOrganizationMember(ctx context.Context, userId int) error {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return utils.InvalidInput("organization id is required")
	}
	currentUserId, _ := utils.GetUserIdFromContext(ctx)
	current, err := GetMembership(ctx, organizationId, currentUserId)
	if err != nil {
		return err
	}
	if current.Role != MemberRoleOwner {
		return utils.Forbidden("only owners can remove members")
	}
	if userId == currentUserId {
		return utils.InvalidInput("owners cannot remove themselves")
	}
	db := config.GetDB()
	res := db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", organizationId, userId).
		Delete(&OrganizationMember{})
	if res.Error != nil {
		return utils.ClassifyDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("member %d", userId)
	}
	return utils.RemoveRedisItem[OrganizationMember](ctx, membershipCacheId(organizationId, userId))
}

type MemberInfo struct {
	UserId   int        `json:"user_id"`
	Username string     `json:"username"`
	Name     string     `json:"name"`
	Role     MemberRole `json:"role"`
}

func ListOrganizationMembers(ctx context.Context) ([]*MemberInfo, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	var results []*MemberInfo
	err := db.WithContext(ctx).Table("organization_members").
		Select("organization_members.user_id, users.username, users.name, organization_members.role").
		Joins("JOIN users ON users.id = organization_members.user_id").
		Where("organization_members.organization_id = ?", organizationId).
		Order("organization_members.id").
		Scan(&results).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return results, nil
}
