package models

import (
	"context"
	"errors"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"password,omitempty"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSignup struct {
	Username         string `json:"username" binding:"required,max=100"`
	Name             string `json:"name" binding:"required,max=100"`
	Email            string `json:"email" binding:"omitempty,email"`
	Password         string `json:"password" binding:"required"`
	OrganizationName string `json:"organization_name" binding:"required,max=100"`
	DefaultCurrency  string `json:"default_currency" binding:"omitempty,iso4217"`
}

type LoginInfo struct {
	Token         string          `json:"token"`
	Username      string          `json:"username"`
	Name          string          `json:"name"`
	IsAdmin       bool            `json:"is_admin"`
	Organizations []*Organization `json:"organizations"`
}

/*
caches:
	User:$username
	Token:$token -> username
	Tokens:$username (set of live tokens)
*/

func (user *User) PrepareGive() {
	user.Password = ""
}

func tokenLifespan() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// GetUserByUsername reads through the User:$username cache.
func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	cached, err := utils.RetrieveRedis[User](ctx, username)
	if err != nil {
		config.LogError(config.GetLogger(), "UserModule", "GetUserByUsername", "cache read", username, err)
	}
	if cached != nil {
		return cached, nil
	}
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if err := utils.StoreRedis(ctx, &user, username); err != nil {
		config.LogError(config.GetLogger(), "UserModule", "GetUserByUsername", "cache write", username, err)
	}
	return &user, nil
}

func createUserTx(ctx context.Context, tx *gorm.DB, username, name, email, password string, isAdmin bool) (*User, error) {
	username = html.EscapeString(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" {
		return nil, utils.InvalidInput("username is required")
	}
	if email != "" && !utils.IsValidEmail(email) {
		return nil, utils.InvalidInput("invalid email address")
	}
	var count int64
	q := tx.WithContext(ctx).Model(&User{}).Where("username = ?", username)
	if email != "" {
		q = q.Or("email = ?", email)
	}
	if err := q.Count(&count).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if count > 0 {
		return nil, utils.InvalidInput("duplicate username or email")
	}
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := User{
		Username: username,
		Name:     strings.TrimSpace(name),
		Email:    utils.NilIfEmpty(email),
		Password: string(hashedPassword),
		IsActive: utils.NewTrue(),
		IsAdmin:  isAdmin,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &user, nil
}

// Signup creates the user, their first organization (with its invoice number
// counter) and the owner membership in one transaction, then logs in.
func Signup(ctx context.Context, input *NewSignup) (*LoginInfo, error) {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := createUserTx(ctx, tx, input.Username, input.Name, input.Email, input.Password, false)
		if err != nil {
			return err
		}
		_, err = createOrganizationTx(ctx, tx, &NewOrganization{
			Name:            input.OrganizationName,
			DefaultCurrency: input.DefaultCurrency,
			Email:           input.Email,
		}, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Login(ctx, input.Username, input.Password)
}

// SeedAdmin creates or updates the platform admin user.
func SeedAdmin(ctx context.Context, username, name, email, password string) (*User, error) {
	db := config.GetDB()
	var existing User
	err := db.WithContext(ctx).Where("username = ?", username).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return createUserTx(ctx, db, username, name, email, password, true)
	}
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"name":      name,
		"password":  string(hashedPassword),
		"is_admin":  true,
		"is_active": true,
	}).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if err := utils.RemoveRedisItem[User](ctx, existing.Username); err != nil {
		return nil, err
	}
	return &existing, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	user, err := GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.Unauthorized("invalid username or password")
		}
		return nil, err
	}

	// check login credentials
	if err := utils.ComparePassword(user.Password, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, utils.Unauthorized("invalid username or password")
		}
		return nil, err
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, utils.Unauthorized("user is disabled")
	}

	orgs, err := listOrganizationsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// generate token & store in redis
	token := uuid.NewString()
	if err := config.AddRedisSet(ctx, "Tokens:"+user.Username, token); err != nil {
		return nil, err
	}
	if err := config.SetRedisValue(ctx, "Token:"+token, user.Username, tokenLifespan()); err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token:         token,
		Username:      user.Username,
		Name:          user.Name,
		IsAdmin:       user.IsAdmin,
		Organizations: orgs,
	}, nil
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, utils.Unauthorized("token is required")
	}
	if err := config.RemoveRedisKey(ctx, "Token:"+token); err != nil {
		return false, err
	}
	// remove current token from tokens list
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, utils.Unauthorized("user not found")
	}
	if err := config.RemoveRedisSetMember(ctx, "Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

func (user *User) DestroyAllSessions(ctx context.Context) error {
	allTokens, err := config.GetRedisSetMembers(ctx, "Tokens:"+user.Username)
	if err != nil {
		return err
	}
	for _, token := range allTokens {
		if err := config.RemoveRedisKey(ctx, "Token:"+token); err != nil {
			return err
		}
	}
	return config.RemoveRedisKey(ctx, "Tokens:"+user.Username)
}

func ChangePassword(ctx context.Context, oldPassword string, newPassword string) (*User, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.Unauthorized("user id is required")
	}

	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&user, userId).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	// check oldPassword
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return nil, utils.InvalidInput("old password is wrong")
	}
	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&user).UpdateColumn("password", string(hashedPassword)).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if err := utils.RemoveRedisItem[User](ctx, user.Username); err != nil {
		return nil, err
	}
	// destroying all session tokens
	if err := user.DestroyAllSessions(ctx); err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}
