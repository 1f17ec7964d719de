package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/config"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	cfg := config.Config{DBDriver: DriverSQLite, DBPath: filepath.Join(t.TempDir(), "tickerfox.db")}

	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	assert.True(t, db.Migrator().HasTable(&models.EventWebhook{}))
	assert.True(t, db.Migrator().HasTable(&models.UserAlert{}))
	assert.True(t, db.Migrator().HasIndex(&models.UserAlert{}, "ux_user_alerts_user_market"))

	first := &models.User{Name: "alice", Email: "alice@example.com", Status: models.STATUS_ACTIVE}
	require.NoError(t, db.Create(first).Error)

	err = db.Create(&models.User{Name: "alice2", Email: "alice@example.com"}).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyError(err))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.Config{DBDriver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestIsDuplicateKeyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: gorm.ErrDuplicatedKey, want: true},
		{name: "postgres unique violation", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "postgres other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "mysql duplicate entry", err: &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, want: true},
		{name: "mysql other", err: &mysqldriver.MySQLError{Number: 1452}, want: false},
		{name: "not found", err: gorm.ErrRecordNotFound, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateKeyError(tt.err))
		})
	}
}
