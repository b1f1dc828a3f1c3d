// pkg/database/document.go
package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dewei/DocRadar/pkg/model"
)

type DocumentDB struct {
	db *gorm.DB
}

func (d *DB) Documents() *DocumentDB {
	return &DocumentDB{db: d.db}
}

func (s *DocumentDB) SaveDocument(ctx context.Context, doc *model.Document) error {
	if err := s.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("保存证件失败: %w", err)
	}
	return nil
}

// GetDocument 按ID获取证件，软删除的证件返回 model.ErrNotFound
func (s *DocumentDB) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("获取证件失败: %w", err)
	}
	return &doc, nil
}

func (s *DocumentDB) DeleteDocument(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Document{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("删除证件失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *DocumentDB) SaveBike(ctx context.Context, bike *model.Bike) error {
	if err := s.db.WithContext(ctx).Save(bike).Error; err != nil {
		return fmt.Errorf("保存车辆失败: %w", err)
	}
	return nil
}

func (s *DocumentDB) GetBike(ctx context.Context, id string) (*model.Bike, error) {
	var bike model.Bike
	err := s.db.WithContext(ctx).First(&bike, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("获取车辆失败: %w", err)
	}
	return &bike, nil
}
