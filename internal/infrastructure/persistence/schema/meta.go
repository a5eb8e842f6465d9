package schema

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"goalsync/internal/errs"
	"goalsync/internal/infrastructure/persistence/sqlite/model"
)

// Version is bumped whenever a model changes shape.
const Version = "1"

const versionKey = "schema_version"

type Meta struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Key       string    `gorm:"column:key;type:text;uniqueIndex;not null"`
	Value     string    `gorm:"column:value;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (Meta) TableName() string {
	return "schema_meta"
}

// Migrate creates or updates every table and stamps the schema version.
func Migrate(ctx context.Context, db *gorm.DB) error {
	models := append(model.All(), &Meta{})
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	row := Meta{Key: versionKey, Value: Version}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "stamp schema version")
	}
	return nil
}

// CurrentVersion returns the stamped version; found is false before the
// first migration.
func CurrentVersion(ctx context.Context, db *gorm.DB) (string, bool, error) {
	if !db.WithContext(ctx).Migrator().HasTable(&Meta{}) {
		return "", false, nil
	}
	var row Meta
	if err := db.WithContext(ctx).Where("key = ?", versionKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "read schema version")
	}
	return strings.TrimSpace(row.Value), true, nil
}
