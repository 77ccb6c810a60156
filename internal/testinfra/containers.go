// Package testinfra starts throwaway databases for integration tests.
package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
)

const (
	PostgresImage    = "postgres:13"
	PostgresUser     = "root"
	PostgresPassword = "root"
	PostgresDB       = "ny_taxi"
)

type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnString string
	Host       string
	Port       int
}

// TargetConfig returns connection settings for the container.
func (c *PostgresContainer) TargetConfig() *dbconfig.TargetConfig {
	return &dbconfig.TargetConfig{
		Type:     "postgres",
		Host:     c.Host,
		Port:     c.Port,
		Database: PostgresDB,
		User:     PostgresUser,
		Password: PostgresPassword,
		Schema:   "public",
		SSLMode:  "disable",
	}
}

func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	ctr, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		postgres.WithDatabase(PostgresDB),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get host: %w", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: ctr,
		ConnString:        connStr,
		Host:              host,
		Port:              port.Int(),
	}, nil
}
