// Package pgstore keeps the dialogues of tlxbot in PostgreSQL. Dialogues are stored
// as JSON, so the dialogue type must survive a round trip through encoding/json.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"
	"github.com/renbou/tlxdispatch/dispatching/dialogue"
	"github.com/renbou/tlxdispatch/tlxlog"
)

//go:embed migrations/*.sql
var migrations embed.FS

const connectTimeout = time.Second * 5

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Connect opens a connection pool to the database and verifies connectivity.
func Connect(ctx context.Context, dsn string, maxConns int) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	return db, nil
}

// Migrate applies all migrations of the dialogues table. dsn must be a postgres:// URL.
func Migrate(dsn string, logger tlxlog.Logger) error {
	logger = tlxlog.With(logger, "component", "pgstore")

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	fromVer, _, _ := m.Version()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration execution failed: %w", err)
	}
	toVer, _, _ := m.Version()

	logger.Info("Migrations applied", "from_ver", fromVer, "to_ver", toVer)
	return nil
}

// Storage keeps dialogues of type D keyed by chat ID.
type Storage[D any] struct {
	db *sqlx.DB
}

var _ dialogue.Storage[int64, struct{}] = (*Storage[struct{}])(nil)

func New[D any](db *sqlx.DB) *Storage[D] {
	return &Storage[D]{db: db}
}

func (s *Storage[D]) Get(ctx context.Context, chatID int64) (D, bool, error) {
	var (
		d   D
		raw []byte
	)
	err := s.db.GetContext(ctx, &raw, `SELECT state FROM dialogues WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return d, false, nil
	} else if err != nil {
		return d, false, fmt.Errorf("selecting dialogue of chat %d: %w", chatID, err)
	}

	if err := json.Unmarshal(raw, &d); err != nil {
		return d, false, fmt.Errorf("decoding dialogue of chat %d: %w", chatID, err)
	}
	return d, true, nil
}

func (s *Storage[D]) Update(ctx context.Context, chatID int64, d D) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding dialogue of chat %d: %w", chatID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dialogues (chat_id, state) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		chatID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("storing dialogue of chat %d: %w", chatID, err)
	}
	return nil
}

func (s *Storage[D]) Remove(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dialogues WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("removing dialogue of chat %d: %w", chatID, err)
	}
	return nil
}
