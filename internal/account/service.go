// Package account 管理用户账号与个人资料。
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"careerResume/internal/auth"
	"careerResume/internal/database"
	"careerResume/internal/errcode"
)

// Service 读写 users 表。
type Service struct {
	db *gorm.DB
}

// NewService 构造 Service。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// NormalizeEmail 统一邮箱大小写与空白，作为唯一键使用。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var emailValidator = validator.New()

// validEmail 规范化后校验邮箱格式。
func validEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if err := emailValidator.Var(email, "required,email,max=255"); err != nil {
		return "", fmt.Errorf("%w: invalid email %q", errcode.ErrValidation, email)
	}
	return email, nil
}

// Registration 是注册所需的字段。
type Registration struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Location string
	Bio      string
}

// ProfileUpdate 中为 nil 的字段保持不变。
type ProfileUpdate struct {
	FullName          *string
	Phone             *string
	Location          *string
	Bio               *string
	ProfilePictureURL *string
}

// Register 创建账号；邮箱已存在时返回 ErrConflict。
func (s *Service) Register(ctx context.Context, in Registration) (*database.User, error) {
	email, err := validEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %w", errcode.ErrValidation, err)
		}
		return nil, err
	}
	return s.create(ctx, database.User{
		Email:        email,
		PasswordHash: hashed,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		Location:     strings.TrimSpace(in.Location),
		Bio:          strings.TrimSpace(in.Bio),
	})
}

// Provision 以随机口令创建账号并要求首次登录改密，返回明文口令。
func (s *Service) Provision(ctx context.Context, email, fullName string) (*database.User, string, error) {
	email, err := validEmail(email)
	if err != nil {
		return nil, "", err
	}

	password, err := randomPassword(24)
	if err != nil {
		return nil, "", err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user, err := s.create(ctx, database.User{
		Email:              email,
		PasswordHash:       hashed,
		MustChangePassword: true,
		FullName:           strings.TrimSpace(fullName),
	})
	if err != nil {
		return nil, "", err
	}
	return user, password, nil
}

func (s *Service) create(ctx context.Context, user database.User) (*database.User, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&database.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return nil, errcode.Storage("lookup user", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: email already registered", errcode.ErrConflict)
	}

	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already registered", errcode.ErrConflict)
		}
		return nil, errcode.Storage("create user", err)
	}
	return &user, nil
}

// Authenticate 校验邮箱与口令。两者任一不符都返回 ErrUnauthorized。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unknown email", errcode.ErrUnauthorized)
	}
	if err != nil {
		return nil, errcode.Storage("lookup user", err)
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, fmt.Errorf("%w: password mismatch", errcode.ErrUnauthorized)
	}
	return &user, nil
}

// Get 返回用户；令牌指向已删除的账号时返回 ErrUnauthorized。
func (s *Service) Get(ctx context.Context, userID uint) (*database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d not found", errcode.ErrUnauthorized, userID)
	}
	if err != nil {
		return nil, errcode.Storage("load user", err)
	}
	return &user, nil
}

// UpdateProfile 修改资料字段并返回最新记录。
func (s *Service) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*database.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	set := func(column string, value *string) {
		if value != nil {
			updates[column] = strings.TrimSpace(*value)
		}
	}
	set("full_name", in.FullName)
	set("phone", in.Phone)
	set("location", in.Location)
	set("bio", in.Bio)
	set("profile_picture_url", in.ProfilePictureURL)
	if name, ok := updates["full_name"]; ok && name == "" {
		return nil, fmt.Errorf("%w: full_name cannot be blank", errcode.ErrValidation)
	}
	if len(updates) == 0 {
		return user, nil
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(user).Updates(updates).Error; err != nil {
		return nil, errcode.Storage("update profile", err)
	}
	if err := db.First(user, userID).Error; err != nil {
		return nil, errcode.Storage("reload profile", err)
	}
	return user, nil
}

// ChangePassword 校验当前口令后写入新口令，并清除强制改密标记。
func (s *Service) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPasswordHash(current, user.PasswordHash) {
		return fmt.Errorf("%w: current password mismatch", errcode.ErrUnauthorized)
	}
	if strings.TrimSpace(current) == strings.TrimSpace(next) {
		return fmt.Errorf("%w: new password must be different from current password", errcode.ErrValidation)
	}

	hashed, err := auth.HashPassword(next)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %w", errcode.ErrValidation, err)
		}
		return err
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		return errcode.Storage("update password", err)
	}
	return nil
}

func randomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
