package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDialectorFor(t *testing.T) {
	d, isSQLite, err := dialectorFor("postgres://u:p@localhost/lager")
	require.NoError(t, err)
	assert.False(t, isSQLite)
	assert.Equal(t, "postgres", d.Name())

	d, isSQLite, err = dialectorFor("sqlite://inventory.db")
	require.NoError(t, err)
	assert.True(t, isSQLite)
	assert.Equal(t, "sqlite", d.Name())

	d, isSQLite, err = dialectorFor("mysql://root@localhost/lager")
	require.NoError(t, err)
	assert.False(t, isSQLite)
	assert.Equal(t, "mysql", d.Name())

	_, _, err = dialectorFor("mongodb://localhost/lager")
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	assert.Equal(t, "lager:secret@tcp(db:3306)/stock?charset=utf8mb4&parseTime=True&loc=UTC",
		mysqlDSN("mysql://lager:secret@db:3306/stock"))
	assert.Equal(t, "root@tcp(localhost)/lager?parseTime=true",
		mysqlDSN("mariadb://root@localhost/lager?parseTime=true"))
	assert.Equal(t, "tcp(localhost:3306)/lager?charset=utf8mb4&parseTime=True&loc=UTC",
		mysqlDSN("mysql://localhost:3306/lager"))
}

func TestConnectSQLiteMemory(t *testing.T) {
	db, err := Connect("file:database_test?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestConnectRedisEmptyURL(t *testing.T) {
	client, err := ConnectRedis("", zap.NewNop())
	assert.NoError(t, err)
	assert.Nil(t, client)
}
