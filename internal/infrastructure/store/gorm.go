package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MappingRecord is the table row of a mapping
type MappingRecord struct {
	ID          uint      `gorm:"primaryKey"`
	SKU         string    `gorm:"column:sku;size:128;uniqueIndex;not null"`
	RemoteID    string    `gorm:"column:remote_id;size:64;not null"`
	Description string    `gorm:"column:description;size:512"`
	MatchType   string    `gorm:"column:match_type;size:32;not null"`
	ConfirmedAt time.Time `gorm:"column:confirmed_at"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName implements gorm's tabler
func (MappingRecord) TableName() string { return "sige_mappings" }

func toRecord(m domain.Mapping) MappingRecord {
	return MappingRecord{
		SKU:         m.SKU,
		RemoteID:    m.RemoteID,
		Description: m.Description,
		MatchType:   string(m.MatchType),
		ConfirmedAt: m.ConfirmedAt.UTC(),
	}
}

func (r MappingRecord) toDomain() domain.Mapping {
	return domain.Mapping{
		SKU:         r.SKU,
		RemoteID:    r.RemoteID,
		Description: r.Description,
		MatchType:   domain.MatchType(r.MatchType),
		ConfirmedAt: r.ConfirmedAt,
	}
}

// GormStore persists mappings in a SQL table, unique on sku
type GormStore struct {
	db *gorm.DB
}

// OpenMySQL connects to MySQL and migrates the mapping table
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

// NewGormStore creates the store and migrates its table
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&MappingRecord{}); err != nil {
		return nil, fmt.Errorf("migrate mappings: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) ListMappings(ctx context.Context) ([]domain.Mapping, error) {
	var rows []MappingRecord
	if err := s.db.WithContext(ctx).Order("sku").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	out := make([]domain.Mapping, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *GormStore) GetMapping(ctx context.Context, sku string) (*domain.Mapping, error) {
	var row MappingRecord
	err := s.db.WithContext(ctx).Where("sku = ?", sku).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	m := row.toDomain()
	return &m, nil
}

func (s *GormStore) UpsertMapping(ctx context.Context, m domain.Mapping) error {
	return s.UpsertMappings(ctx, []domain.Mapping{m})
}

// insertBatchSize bounds the rows of one INSERT and the SKUs of one IN list
const insertBatchSize = 500

func toRecords(ms []domain.Mapping) ([]MappingRecord, error) {
	rows := make([]MappingRecord, len(ms))
	for i, m := range ms {
		if err := validMapping(m); err != nil {
			return nil, err
		}
		rows[i] = toRecord(m)
	}
	return rows, nil
}

func upsertRecords(tx *gorm.DB, rows []MappingRecord) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"remote_id", "description", "match_type", "confirmed_at", "updated_at"}),
	}).CreateInBatches(rows, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert mappings: %w", err)
	}
	return nil
}

// UpsertMappings writes the mappings in one transaction, replacing rows with the same sku
func (s *GormStore) UpsertMappings(ctx context.Context, ms []domain.Mapping) error {
	if len(ms) == 0 {
		return nil
	}
	rows, err := toRecords(ms)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertRecords(tx, rows)
	})
}

// MergeAutomaticMappings upserts ms in one transaction, skipping skus whose stored row is
// Manual. On MySQL the existing rows are locked so a concurrent manual write waits.
func (s *GormStore) MergeAutomaticMappings(ctx context.Context, ms []domain.Mapping) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	rows, err := toRecords(ms)
	if err != nil {
		return 0, err
	}

	written := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		manual, err := manualSKUs(tx, rows)
		if err != nil {
			return err
		}
		keep := rows[:0]
		for _, r := range rows {
			if !manual[r.SKU] {
				keep = append(keep, r)
			}
		}
		if len(keep) == 0 {
			return nil
		}
		if err := upsertRecords(tx, keep); err != nil {
			return err
		}
		written = len(keep)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// manualSKUs returns which of the rows' skus are stored as Manual
func manualSKUs(tx *gorm.DB, rows []MappingRecord) (map[string]bool, error) {
	manual := make(map[string]bool)
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		skus := make([]string, 0, end-start)
		for _, r := range rows[start:end] {
			skus = append(skus, r.SKU)
		}

		q := tx.Model(&MappingRecord{}).Select("sku", "match_type").Where("sku IN ?", skus)
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing []MappingRecord
		if err := q.Find(&existing).Error; err != nil {
			return nil, fmt.Errorf("read existing mappings: %w", err)
		}
		for _, e := range existing {
			if domain.MatchType(e.MatchType) == domain.MatchManual {
				manual[e.SKU] = true
			}
		}
	}
	return manual, nil
}

// ReplaceAllMappings deletes every row and writes ms in one transaction
func (s *GormStore) ReplaceAllMappings(ctx context.Context, ms []domain.Mapping) error {
	rows, err := toRecords(ms)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&MappingRecord{}).Error; err != nil {
			return fmt.Errorf("delete all mappings: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		return upsertRecords(tx, rows)
	})
}

func (s *GormStore) DeleteMapping(ctx context.Context, sku string) error {
	res := s.db.WithContext(ctx).Where("sku = ?", sku).Delete(&MappingRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete mapping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMappingNotFound
	}
	return nil
}

func (s *GormStore) DeleteAllMappings(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&MappingRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete all mappings: %w", err)
	}
	return nil
}
