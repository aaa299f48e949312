package user

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tileverse/core/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.UserModel{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	svc := NewService(setupTestDB(t))

	first, err := svc.Register(&RegisterDTO{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Role)
	assert.Equal(t, "alice", first.Name, "name falls back to username")
	assert.NotEqual(t, "secret123", first.Password, "password stored hashed")

	second, err := svc.Register(&RegisterDTO{Username: "bob", Email: "bob@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, second.Role)
}

func TestRegisterDuplicate(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Register(&RegisterDTO{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Register(&RegisterDTO{Username: "alice", Email: "other@example.com", Password: "secret123"})
	require.EqualError(t, err, "username or email already taken")

	_, err = svc.Register(&RegisterDTO{Username: "other", Email: "alice@example.com", Password: "secret123"})
	require.EqualError(t, err, "username or email already taken")
}

func TestLogin(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Register(&RegisterDTO{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	token, u, err := svc.Login("alice", "secret123", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotNil(t, u.LastLoginTime)

	// Email works as the login identifier too.
	_, _, err = svc.Login("alice@example.com", "secret123", "127.0.0.1")
	require.NoError(t, err)

	_, _, err = svc.Login("alice", "wrongpass", "127.0.0.1")
	require.EqualError(t, err, "wrong password")

	_, _, err = svc.Login("nobody", "secret123", "127.0.0.1")
	require.EqualError(t, err, "user not found")
}

func TestChangePassword(t *testing.T) {
	svc := NewService(setupTestDB(t))

	u, err := svc.Register(&RegisterDTO{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.EqualError(t, svc.ChangePassword(u.ID, "wrong", "newsecret"), "wrong password")
	require.NoError(t, svc.ChangePassword(u.ID, "secret123", "newsecret"))

	_, _, err = svc.Login("alice", "newsecret", "127.0.0.1")
	require.NoError(t, err)
}
