// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/drewmudry/cadence-api/models"
)

// NewDB opens an isolated in-memory sqlite database with every model
// migrated. The connection pool is pinned to one connection so the memory
// database outlives individual queries.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=0", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// SeedBrand inserts an active brand with one subcategory.
func SeedBrand(t *testing.T, db *gorm.DB, name, tz string) (models.Brand, models.Subcategory) {
	t.Helper()

	brand := models.Brand{Name: name, Timezone: tz, IsActive: true}
	require.NoError(t, db.Create(&brand).Error)

	sub := models.Subcategory{BrandID: brand.ID, Name: name + " tips", Prompt: "Short practical tips"}
	require.NoError(t, db.Create(&sub).Error)
	return brand, sub
}
