package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tellusko/tellusko/internal/config"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, o config.Overrides)
	}{
		{
			name: "no flags",
			args: []string{},
			check: func(t *testing.T, o config.Overrides) {
				assert.Nil(t, o.DatabaseURL)
				assert.Nil(t, o.Transport)
				assert.False(t, o.OTelEnabled)
				assert.Empty(t, o.AuditLog)
				assert.Empty(t, o.Migrations)
			},
		},
		{
			name: "database url",
			args: []string{"--database-url", "postgres://localhost/app"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.DatabaseURL)
				assert.Equal(t, "postgres://localhost/app", *o.DatabaseURL)
			},
		},
		{
			name: "transport and addr",
			args: []string{"--transport", "stdio", "--http-addr", ":9090"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.Transport)
				assert.Equal(t, "stdio", *o.Transport)
				require.NotNil(t, o.HTTPAddr)
				assert.Equal(t, ":9090", *o.HTTPAddr)
			},
		},
		{
			name: "query timeout",
			args: []string{"--query-timeout", "30s"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.QueryTimeout)
				assert.Equal(t, 30*time.Second, *o.QueryTimeout)
			},
		},
		{
			name: "otel and audit log",
			args: []string{"--otel", "--audit-log", "/var/log/queries.ndjson"},
			check: func(t *testing.T, o config.Overrides) {
				assert.True(t, o.OTelEnabled)
				assert.Equal(t, "/var/log/queries.ndjson", o.AuditLog)
			},
		},
		{
			name: "migrations path",
			args: []string{"--migrations", "migrations"},
			check: func(t *testing.T, o config.Overrides) {
				assert.Equal(t, "migrations", o.Migrations)
			},
		},
		{
			name: "table and dictionary",
			args: []string{"--table", "sales", "--dictionary", "dict.yaml"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.TableName)
				assert.Equal(t, "sales", *o.TableName)
				require.NotNil(t, o.Dictionary)
				assert.Equal(t, "dict.yaml", *o.Dictionary)
			},
		},
		{
			name:    "unknown flag",
			args:    []string{"--nope"},
			wantErr: true,
		},
		{
			name:    "bad duration",
			args:    []string{"--query-timeout", "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}
