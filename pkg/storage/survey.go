package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Survey is a lead capture record.
type Survey struct {
	ID        string    `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Nombre   string `gorm:"not null;default:''"`
	Telefono string `gorm:"not null;default:''"`
	Correo   string `gorm:"not null;default:''"`
	Empresa  string `gorm:"not null;default:''"`
	Cargo    string `gorm:"not null;default:''"`
	TaskID   string `gorm:"index;not null;default:''"`
}

func (s *Survey) TableName() string {
	return "encuestas"
}

func (s *Store) CreateSurvey(ctx context.Context, v *Survey) error {
	if v.ID == "" {
		v.ID = ulid.Make().String()
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("storage: failed to create survey %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) GetSurvey(ctx context.Context, id string) (*Survey, error) {
	var v Survey
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get survey %s: %w", id, err)
	}
	return &v, nil
}

// ListSurveys returns surveys ordered by creation date, newest first. A size
// of zero or less returns every record.
func (s *Store) ListSurveys(ctx context.Context, page, size int, filter ...Filter) ([]*Survey, error) {
	if page < 1 {
		page = 1
	}
	vs := []*Survey{}

	q := s.db.WithContext(ctx)
	if size > 0 {
		q = q.Offset((page - 1) * size).Limit(size)
	}
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	q = q.Order("created_at desc").Order("id desc")
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list surveys: %w", err)
	}
	return vs, nil
}

func (s *Store) CountSurveys(ctx context.Context, filter ...Filter) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Survey{})
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("storage: failed to count surveys: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteSurvey(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Survey{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete survey %s: %w", id, err)
	}
	return nil
}
