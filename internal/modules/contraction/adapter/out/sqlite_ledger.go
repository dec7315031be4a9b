package out

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"laborwatch/internal/modules/contraction/domain"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	apperrors "laborwatch/internal/platform/errors"
	"laborwatch/internal/platform/sqlitemigrate"

	_ "modernc.org/sqlite"
)

// fixed width so lexical order in SQLite equals chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations/*.sql
var migrationFS embed.FS

type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrationFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Append(ctx context.Context, event domain.Event) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	const stmt = `
INSERT INTO contractions (started_at, duration_seconds, recorded_at, status)
VALUES (?, ?, ?, ?);
`
	res, err := l.db.ExecContext(ctx, stmt,
		event.StartedAt.UTC().Format(timeLayout),
		event.Seconds(),
		event.RecordedAt.UTC().Format(timeLayout),
		event.Status.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("append contraction: %w: %w", apperrors.ErrStorageFailure, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read contraction id: %w: %w", apperrors.ErrStorageFailure, err)
	}
	return id, nil
}

const selectContractions = `SELECT id, started_at, duration_seconds, recorded_at, status FROM contractions`

func (l *SQLiteLedger) List(ctx context.Context, order contractionout.Order) ([]domain.Event, error) {
	query := selectContractions + ` ORDER BY recorded_at ASC, id ASC`
	if order == contractionout.NewestFirst {
		query = selectContractions + ` ORDER BY recorded_at DESC, id DESC`
	}
	return l.query(ctx, query)
}

func (l *SQLiteLedger) ListSince(ctx context.Context, afterID int64) ([]domain.Event, error) {
	return l.query(ctx, selectContractions+` WHERE id > ? ORDER BY id ASC`, afterID)
}

func (l *SQLiteLedger) query(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contractions: %w: %w", apperrors.ErrStorageFailure, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			id                    int64
			startedAt, recordedAt string
			seconds               float64
			status                string
		)
		if err := rows.Scan(&id, &startedAt, &seconds, &recordedAt, &status); err != nil {
			return nil, fmt.Errorf("scan contraction: %w: %w", apperrors.ErrStorageFailure, err)
		}
		event, err := decodeRow(id, startedAt, seconds, recordedAt, status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageFailure, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contractions: %w: %w", apperrors.ErrStorageFailure, err)
	}
	return events, nil
}

func decodeRow(id int64, startedAt string, seconds float64, recordedAt, status string) (domain.Event, error) {
	started, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return domain.Event{}, fmt.Errorf("decode started_at of contraction %d: %w", id, err)
	}
	recorded, err := time.Parse(timeLayout, recordedAt)
	if err != nil {
		return domain.Event{}, fmt.Errorf("decode recorded_at of contraction %d: %w", id, err)
	}
	level, err := domain.ParseUrgency(status)
	if err != nil {
		return domain.Event{}, fmt.Errorf("decode status of contraction %d: %w", id, err)
	}
	return domain.Event{
		ID:         id,
		StartedAt:  started,
		Duration:   time.Duration(math.Round(seconds * float64(time.Second))),
		RecordedAt: recorded,
		Status:     level,
	}, nil
}
