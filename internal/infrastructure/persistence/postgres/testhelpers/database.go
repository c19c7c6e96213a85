package testhelpers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/harborpay/charge-connector/internal/config"
	"github.com/harborpay/charge-connector/internal/infrastructure/persistence/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const schema = `
CREATE TABLE IF NOT EXISTS charges (
	external_id            TEXT PRIMARY KEY,
	status                 TEXT NOT NULL,
	gateway_transaction_id TEXT,
	amount_cents           BIGINT NOT NULL DEFAULT 0,
	provider               TEXT NOT NULL,
	gateway_account_id     TEXT NOT NULL,
	authorisation_mode     TEXT NOT NULL DEFAULT 'web',
	delayed_capture        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS charge_events (
	id                 UUID PRIMARY KEY,
	charge_external_id TEXT NOT NULL REFERENCES charges (external_id),
	status             TEXT NOT NULL,
	occurred_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type TestDatabase struct {
	Container testcontainers.Container
	DB        *postgres.DB
	Config    *config.DatabaseConfig
}

func SetupTestDatabase(t *testing.T) *TestDatabase {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbConfig := &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "testuser",
		Password:        "testpass",
		Name:            "testdb",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	db, err := postgres.Connect(ctx, dbConfig, logger)
	require.NoError(t, err)

	_, err = db.Pool.Exec(ctx, schema)
	require.NoError(t, err)

	return &TestDatabase{
		Container: container,
		DB:        db,
		Config:    dbConfig,
	}
}

func (td *TestDatabase) CleanTables(t *testing.T) {
	_, err := td.DB.Pool.Exec(context.Background(),
		`TRUNCATE charge_events, charges CASCADE`)
	require.NoError(t, err)
}

func (td *TestDatabase) Cleanup(t *testing.T) {
	td.DB.Close()
	require.NoError(t, td.Container.Terminate(context.Background()))
}
