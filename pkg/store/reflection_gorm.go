package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reverie/pkg/domain"
)

// GormReflectionArchive implements ReflectionArchive on GORM + Postgres for
// deployments that want reflections durable beyond the cache. The owner +
// created_at index plays the role the Redis sorted set plays elsewhere.
type GormReflectionArchive struct {
	db *gorm.DB
}

// NewGormReflectionArchive opens the DB and runs auto-migrations.
func NewGormReflectionArchive(dsn string) (*GormReflectionArchive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&ReflectionModel{}); err != nil {
		return nil, fmt.Errorf("migrate reflections: %w", err)
	}
	return &GormReflectionArchive{db: db}, nil
}

func (a *GormReflectionArchive) SaveReflection(ctx context.Context, rec domain.ReflectionRecord) error {
	model, err := toReflectionModel(rec)
	if err != nil {
		return err
	}
	return a.db.WithContext(ctx).Save(&model).Error
}

func (a *GormReflectionArchive) GetReflection(ctx context.Context, id string) (domain.ReflectionRecord, bool, error) {
	var model ReflectionModel
	err := a.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ReflectionRecord{}, false, nil
	}
	if err != nil {
		return domain.ReflectionRecord{}, false, err
	}
	rec, err := fromReflectionModel(model)
	if err != nil {
		return domain.ReflectionRecord{}, false, err
	}
	return rec, true, nil
}

func (a *GormReflectionArchive) GetReflections(ctx context.Context, ids []string) ([]domain.ReflectionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []ReflectionModel
	if err := a.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]domain.ReflectionRecord, 0, len(models))
	for _, model := range models {
		rec, err := fromReflectionModel(model)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *GormReflectionArchive) ListReflectionIDs(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	var ids []string
	err := a.db.WithContext(ctx).
		Model(&ReflectionModel{}).
		Where("owner_id = ? AND created_at >= ? AND created_at <= ?", userID, from, to).
		Order("created_at DESC").
		Pluck("id", &ids).Error
	return ids, err
}

func (a *GormReflectionArchive) SetEnrichment(ctx context.Context, id string, e domain.Enrichment) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal enrichment: %w", err)
	}
	now := time.Now().UTC()
	// Enrichment is exactly-once: the WHERE clause refuses a second write.
	res := a.db.WithContext(ctx).
		Model(&ReflectionModel{}).
		Where("id = ? AND enrichment IS NULL", id).
		Updates(map[string]any{"enrichment": datatypes.JSON(raw), "enriched_at": &now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := a.db.WithContext(ctx).Model(&ReflectionModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("reflection %s not found", id)
		}
		return ErrEnrichmentExists
	}
	return nil
}

func toReflectionModel(rec domain.ReflectionRecord) (ReflectionModel, error) {
	model := ReflectionModel{
		ID:        rec.ID,
		OwnerID:   rec.OwnerID,
		Text:      rec.Text,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Enrichment != nil {
		raw, err := json.Marshal(rec.Enrichment)
		if err != nil {
			return ReflectionModel{}, fmt.Errorf("marshal enrichment: %w", err)
		}
		model.Enrichment = datatypes.JSON(raw)
	}
	return model, nil
}

func fromReflectionModel(model ReflectionModel) (domain.ReflectionRecord, error) {
	rec := domain.ReflectionRecord{
		ID:        model.ID,
		OwnerID:   model.OwnerID,
		Text:      model.Text,
		CreatedAt: model.CreatedAt,
	}
	if len(model.Enrichment) > 0 {
		var e domain.Enrichment
		if err := json.Unmarshal(model.Enrichment, &e); err != nil {
			return domain.ReflectionRecord{}, fmt.Errorf("unmarshal enrichment: %w", err)
		}
		rec.Enrichment = &e
	}
	return rec, nil
}
