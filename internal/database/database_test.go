package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"reelvault/internal/config"
	"reelvault/internal/models"
	"reelvault/internal/test"
	"reelvault/internal/utils"
)

func TestNewDatabaseManager_SQLiteFile(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "nested", "reelvault.db"),
	}

	manager, err := NewDatabaseManager(cfg, nil)
	require.NoError(t, err)
	defer manager.Close()

	require.NoError(t, NewMigrationManager(manager.GetGormDB(), nil).Migrate())

	_, err = os.Stat(cfg.Path)
	assert.NoError(t, err, "database file should be created")

	for _, model := range models.All() {
		assert.True(t, manager.GetGormDB().Migrator().HasTable(model))
	}
}

func TestDialector_UnknownDriver(t *testing.T) {
	_, err := Dialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(&config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "reelvault", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=reelvault sslmode=disable", dsn)
}

func TestDatabaseManager_Ping(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	manager := NewDatabaseManagerFromExisting(gormDB, sqlDB)

	mock.ExpectPing()
	_, err = manager.Ping(context.Background())
	assert.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	_, err = manager.Ping(context.Background())
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed_Defaults(t *testing.T) {
	db := test.GetTestDB(t)

	require.NoError(t, Seed(db, nil, nil))

	var admin models.User
	require.NoError(t, db.Where("username = ?", "admin").First(&admin).Error)
	assert.True(t, admin.IsAdmin)
	assert.NoError(t, utils.CheckPasswordHash("admin123", admin.PasswordHash))

	var entries []models.IPWhitelistEntry
	require.NoError(t, db.Order("id").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "127.0.0.1", entries[0].IPAddress)
	assert.Equal(t, "::1", entries[1].IPAddress)
	assert.True(t, entries[0].IsActive)

	// seeding again leaves existing data alone
	require.NoError(t, Seed(db, nil, nil))
	assert.Equal(t, int64(1), test.CountRows(t, db, &models.User{}))
	assert.Equal(t, int64(2), test.CountRows(t, db, &models.IPWhitelistEntry{}))
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
admin:
  username: root
  password: hunter22
whitelist:
  - ip: 192.168.1.10
    description: living room
`), 0644))

	seed, err := LoadSeedFile(valid)
	require.NoError(t, err)
	assert.Equal(t, "root", seed.Admin.Username)
	require.Len(t, seed.Whitelist, 1)
	assert.Equal(t, "living room", seed.Whitelist[0].Description)

	db := test.GetTestDB(t)
	require.NoError(t, Seed(db, seed, nil))
	assert.Equal(t, int64(1), test.CountRows(t, db, &models.IPWhitelistEntry{}))

	invalid := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
whitelist:
  - ip: not-an-ip
`), 0644))
	_, err = LoadSeedFile(invalid)
	assert.Error(t, err)

	_, err = LoadSeedFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
