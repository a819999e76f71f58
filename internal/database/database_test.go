package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDriver(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		want    string
		wantErr bool
	}{
		{name: "postgres", driver: "postgres", want: DriverPostgres},
		{name: "postgresql alias", driver: "postgresql", want: DriverPostgres},
		{name: "pgx alias", driver: "pgx", want: DriverPostgres},
		{name: "mysql", driver: "mysql", want: DriverMySQL},
		{name: "unknown", driver: "sqlite", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDriver(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrationsDir(t *testing.T) {
	dir, err := MigrationsDir("postgres")
	assert.NoError(t, err)
	assert.Equal(t, "postgresql", dir)

	dir, err = MigrationsDir("mysql")
	assert.NoError(t, err)
	assert.Equal(t, "mysql", dir)

	_, err = MigrationsDir("oracle")
	assert.Error(t, err)
}
