package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Task is the last observed snapshot of an upstream generation task.
type Task struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Model          string  `gorm:"not null;default:''"`
	Style          string  `gorm:"not null;default:''"`
	Title          string  `gorm:"not null;default:''"`
	Status         string  `gorm:"index;not null;default:''"`
	StreamAudioURL string  `gorm:"not null;default:''"`
	AudioURL       string  `gorm:"not null;default:''"`
	ImageURL       string  `gorm:"not null;default:''"`
	Duration       float64 `gorm:"not null;default:0"`
	Archived       bool    `gorm:"not null;default:false"`
}

func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var v Task
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get task %s: %w", id, err)
	}
	return &v, nil
}

// UpsertTask creates the task or updates the non empty fields of an existing
// one.
func (s *Store) UpsertTask(ctx context.Context, v *Task) error {
	now := time.Now().UTC()
	v.UpdatedAt = now
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	cols := []string{"updated_at"}
	add := func(col string, set bool) {
		if set {
			cols = append(cols, col)
		}
	}
	add("model", v.Model != "")
	add("style", v.Style != "")
	add("title", v.Title != "")
	add("status", v.Status != "")
	add("stream_audio_url", v.StreamAudioURL != "")
	add("audio_url", v.AudioURL != "")
	add("image_url", v.ImageURL != "")
	add("duration", v.Duration != 0)
	add("archived", v.Archived)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("storage: failed to upsert task %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, page, size int, filter ...Filter) ([]*Task, error) {
	if page < 1 {
		page = 1
	}
	vs := []*Task{}
	q := s.db.WithContext(ctx)
	if size > 0 {
		q = q.Offset((page - 1) * size).Limit(size)
	}
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	if err := q.Order("created_at desc").Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list tasks: %w", err)
	}
	return vs, nil
}
