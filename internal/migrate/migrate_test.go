package migrate

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, Validate(migrations))
}

func TestInitMigrationContainsConstraints(t *testing.T) {
	matches, err := fs.Glob(migrations, Dir+"/*_init.sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := fs.ReadFile(migrations, matches[0])
	require.NoError(t, err)
	content := string(data)

	checks := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist",
		"CREATE TABLE IF NOT EXISTS reservations",
		"EXCLUDE USING gist",
		"tstzrange(reservation_time, reservation_time + interval '2 hours') WITH &&",
		"WHERE (status = 'ACTIVE')",
		"CREATE TABLE IF NOT EXISTS waitlist_entries",
		"CREATE TABLE IF NOT EXISTS confirmation_codes",
		"DROP TABLE IF EXISTS reservations",
	}
	for _, sub := range checks {
		assert.Contains(t, content, sub)
	}

	up := strings.Index(content, "-- +goose Up")
	down := strings.Index(content, "-- +goose Down")
	assert.True(t, up >= 0 && down > up, "Up section must precede Down")
}

func TestValidateRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name:  "bad filename",
			files: fstest.MapFS{"migrations/init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
			want:  "invalid migration filename",
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"migrations/20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
				"migrations/20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			},
			want: "duplicate migration version",
		},
		{
			name:  "missing down",
			files: fstest.MapFS{"migrations/20260101000000_a.sql": {Data: []byte("-- +goose Up\n")}},
			want:  "missing \"-- +goose Down\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.files)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunRequiresDB(t *testing.T) {
	assert.EqualError(t, Run(context.Background(), nil, "up"), "db is required")
}
