package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ store.Accounts = (*GormStore)(nil)

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Wrap(apperrors.ErrAlreadyExists, err).WithDetail("resource", "user")
	}
	return translate(err, "user")
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (s *GormStore) UpdateProfile(ctx context.Context, id uint, username, phone string) (*models.User, error) {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if username != "" {
		updates["username"] = username
	}
	if phone != "" {
		updates["phone_number"] = phone
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, apperrors.Wrap(apperrors.ErrAlreadyExists, res.Error).WithDetail("resource", "user")
	}
	if res.Error != nil {
		return nil, translate(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.NotFound("user")
	}
	return s.GetUser(ctx, id)
}

func (s *GormStore) SetPushToken(ctx context.Context, id uint, token string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("fcm_token", token)
	if res.Error != nil {
		return translate(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("user")
	}
	return nil
}

func (s *GormStore) Preferences(ctx context.Context, userID uint) (*models.NotificationPreference, error) {
	var p models.NotificationPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.DefaultPreferences(userID), nil
	case err != nil:
		return nil, translate(err, "notification preferences")
	}
	return &p, nil
}

func (s *GormStore) SavePreferences(ctx context.Context, p *models.NotificationPreference) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"push_enabled", "booking_alerts", "ride_status_alerts", "updated_at"}),
	}).Create(p).Error
	return translate(err, "notification preferences")
}
