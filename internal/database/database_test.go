package database

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, migrationsDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, e := range entries {
		body, err := fs.ReadFile(Migrations, migrationsDir+"/"+e.Name())
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", e.Name())
		assert.Contains(t, string(body), "-- +goose Down", e.Name())
	}
}

func TestActiveJobIndexMigration(t *testing.T) {
	body, err := fs.ReadFile(Migrations, migrationsDir+"/00002_active_analysis_job_index.sql")
	require.NoError(t, err)
	sql := string(body)
	assert.True(t, strings.Contains(sql, "CREATE UNIQUE INDEX"))
	assert.Contains(t, sql, "'PENDING', 'TRIGGERED', 'PROCESSING'")
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
