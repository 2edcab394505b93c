package storage

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// Migration keeps the schema version applied by customMigrate.
type Migration struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Version int `gorm:"not null;default:0"`
}

func (m *Migration) TableName() string {
	return "schema_migrations"
}

// migrations are applied in order; the schema version is the index of the
// last applied step plus one.
var migrations = []struct {
	name string
	run  func(db *gorm.DB) error
}{
	{
		name: "add task id to surveys",
		run: func(db *gorm.DB) error {
			m := db.Migrator()
			if !m.HasTable(&Survey{}) || m.HasColumn(&Survey{}, "task_id") {
				return nil
			}
			return m.AddColumn(&Survey{}, "TaskID")
		},
	},
}

func runMigrations(db *gorm.DB, from int) (int, error) {
	version := from
	for i := from; i < len(migrations); i++ {
		step := migrations[i]
		log.Printf("storage: migration %d: %s\n", i+1, step.name)
		if err := step.run(db); err != nil {
			return version, fmt.Errorf("storage: migration %d (%s): %w", i+1, step.name, err)
		}
		version = i + 1
	}
	return version, nil
}
