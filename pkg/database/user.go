// pkg/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dewei/DocRadar/pkg/model"
)

type UserDB struct {
	db *gorm.DB
}

func (d *DB) Users() *UserDB {
	return &UserDB{db: d.db}
}

// GetSettings 获取用户通知偏好，没有记录时返回默认偏好
func (u *UserDB) GetSettings(ctx context.Context, userID string) (model.NotificationSettings, error) {
	var settings model.NotificationSettings
	err := u.db.WithContext(ctx).First(&settings, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.DefaultSettings(userID), nil
		}
		return model.NotificationSettings{}, fmt.Errorf("获取通知偏好失败: %w", err)
	}
	return settings, nil
}

func (u *UserDB) SaveSettings(ctx context.Context, settings *model.NotificationSettings) error {
	if err := u.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("保存通知偏好失败: %w", err)
	}
	return nil
}
