package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "vault",
		Password: "secret",
		Name:     "fieldvault",
		Host:     "db.internal",
		Port:     5433,
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db.internal")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "user=vault")
	require.Contains(t, dsn, "dbname=fieldvault")
	require.Contains(t, dsn, "sslmode=disable")
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{Host: "localhost"})
	require.Error(t, err)
}

func TestBuildPostgresDSNOverride(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{DSN: "postgres://explicit"})
	require.NoError(t, err)
	require.Equal(t, "postgres://explicit", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "vault",
		Password: "secret",
		Name:     "fieldvault",
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "vault:secret@tcp(127.0.0.1:3306)/fieldvault")
	require.Contains(t, dsn, "parseTime=True")
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := buildMySQLDSN(Config{})
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}
