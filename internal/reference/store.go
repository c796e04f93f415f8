// Package reference adapts to the authoritative product-row database the
// workflow's compare.against_reference node diffs scanned records
// against. It is an external collaborator rather than a system this
// spec owns (spec §1 non-goals): the GORM/Postgres implementation here is
// the adapter, not the source of truth.
package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormLogger "gorm.io/gorm/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/platform/logger"
)

// ErrNotFound is returned when no reference row exists for a product id.
var ErrNotFound = errors.New("reference: product not found")

// Row is the authoritative product record this system compares scans
// against. Column names follow the teacher's GORM tagging convention.
type Row struct {
	ID              string    `gorm:"primaryKey;column:id"`
	Platform        string    `gorm:"column:platform;index"`
	ProductName     string    `gorm:"column:product_name"`
	ThumbnailURL    string    `gorm:"column:thumbnail_url"`
	OriginalPrice   int64     `gorm:"column:original_price"`
	DiscountedPrice int64     `gorm:"column:discounted_price"`
	SaleStatus      string    `gorm:"column:sale_status"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (Row) TableName() string { return "reference_products" }

// Store is a read-only accessor over the reference_products table.
type Store interface {
	Get(ctx context.Context, platform domain.Platform, productID string) (*Row, error)
	ListTargets(ctx context.Context, platform domain.Platform, limit int) ([]Row, error)
}

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// Config mirrors the teacher's environment-driven Postgres connection
// shape (host/port/user/password/db name, sslmode disabled for local/dev
// deployments).
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func Open(cfg Config, log *logger.Logger) (*GormStore, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("reference: connect postgres: %w", err)
	}
	return &GormStore{db: db, log: log.With("component", "ReferenceStore")}, nil
}

// AutoMigrate creates/updates the reference_products table shape. The
// reference data's own write path lives outside this system; this only
// guarantees the schema this system reads from exists for local/dev runs.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Row{})
}

func (s *GormStore) Get(ctx context.Context, platform domain.Platform, productID string) (*Row, error) {
	var row Row
	err := s.db.WithContext(ctx).
		Where("platform = ? AND id = ?", string(platform), productID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.NewTaxonomyError(domain.RepositoryError, "", err)
	}
	return &row, nil
}

func (s *GormStore) ListTargets(ctx context.Context, platform domain.Platform, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Row
	err := s.db.WithContext(ctx).
		Where("platform = ?", string(platform)).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domain.NewTaxonomyError(domain.RepositoryError, "", err)
	}
	return rows, nil
}
