package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationDir = "migrations"

// Migrate applies the embedded schema migrations. command is one of up, down or status.
func Migrate(ctx context.Context, databaseURL, command string, logger zerolog.Logger) error {
	const op = "db.migrate"

	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("%s: open: %w", op, err)
	}
	defer conn.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch strings.ToLower(strings.TrimSpace(command)) {
	case "", "up":
		err = goose.UpContext(ctx, conn, migrationDir)
		if errors.Is(err, goose.ErrNoNextVersion) {
			logger.Info().Msg("no migrations to apply")
			return nil
		}
	case "down":
		err = goose.DownContext(ctx, conn, migrationDir)
	case "status":
		err = goose.StatusContext(ctx, conn, migrationDir)
	default:
		return fmt.Errorf("%s: unknown command %q", op, command)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info().Msgf(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Fatal().Msgf(strings.TrimSpace(format), v...)
}
