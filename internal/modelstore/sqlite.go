package modelstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reclink/internal/failure"
	"reclink/internal/linkage"
	"reclink/internal/logging"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps the training set and settings in one SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	codec  linkage.ModelCodec
	fields []linkage.FieldSpec
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{
		db:     db,
		path:   path,
		codec:  opts.Codec,
		fields: opts.Fields,
		logger: storeLogger(opts.Logger, "sqlite"),
	}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) HasSettings(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM settings WHERE id = 1").Scan(&count); err != nil {
		return false, fmt.Errorf("check settings: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (linkage.TrainedModel, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT model FROM settings WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, failure.Wrap(failure.ErrCorruptSettings, "store", "load settings", s.path+": no settings stored", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	model, err := decodeSettings(s.codec, s.fields, s.path, data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("settings loaded",
		logging.String("path", s.path),
		logging.Int("examples", model.Examples()),
		logging.String(logging.FieldEventType, "settings_loaded"),
	)
	return model, nil
}

func (s *SQLiteStore) LoadTrainingExamples(ctx context.Context) ([]linkage.LabeledExample, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT left_id, right_id, judgment, left_record, right_record, labeled_at FROM training_examples ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query training examples: %w", err)
	}
	defer rows.Close()

	examples := []linkage.LabeledExample{}
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			return nil, failure.Wrap(failure.ErrMalformedInput, "store", "load training", s.path, err)
		}
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training examples: %w", err)
	}
	return examples, nil
}

func scanExample(scanner interface{ Scan(dest ...any) error }) (linkage.LabeledExample, error) {
	var (
		ex                      linkage.LabeledExample
		leftID, rightID         string
		judgment                string
		leftRecord, rightRecord string
		labeledAt               string
	)
	if err := scanner.Scan(&leftID, &rightID, &judgment, &leftRecord, &rightRecord, &labeledAt); err != nil {
		return ex, err
	}
	var err error
	if ex.Left, err = linkage.ParseRecordID(leftID); err != nil {
		return ex, err
	}
	if ex.Right, err = linkage.ParseRecordID(rightID); err != nil {
		return ex, err
	}
	ex.Judgment = linkage.Judgment(judgment)
	if err := json.Unmarshal([]byte(leftRecord), &ex.LeftRecord); err != nil {
		return ex, fmt.Errorf("decode left record: %w", err)
	}
	if err := json.Unmarshal([]byte(rightRecord), &ex.RightRecord); err != nil {
		return ex, fmt.Errorf("decode right record: %w", err)
	}
	if ex.LabeledAt, err = time.Parse(time.RFC3339Nano, labeledAt); err != nil {
		return ex, fmt.Errorf("parse labeled_at: %w", err)
	}
	return ex, nil
}

func (s *SQLiteStore) SaveTrainingExamples(ctx context.Context, examples []linkage.LabeledExample) error {
	if err := validateExamples(examples); err != nil {
		return failure.Wrap(nil, "store", "save training", s.path, err)
	}
	err := retryOnBusy(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "DELETE FROM training_examples"); err != nil {
				return fmt.Errorf("clear training examples: %w", err)
			}
			stmt, err := tx.PrepareContext(ctx,
				"INSERT INTO training_examples (left_id, right_id, judgment, left_record, right_record, labeled_at) VALUES (?, ?, ?, ?, ?, ?)")
			if err != nil {
				return fmt.Errorf("prepare insert: %w", err)
			}
			defer stmt.Close()
			for _, ex := range examples {
				left, err := json.Marshal(ex.LeftRecord)
				if err != nil {
					return fmt.Errorf("encode left record: %w", err)
				}
				right, err := json.Marshal(ex.RightRecord)
				if err != nil {
					return fmt.Errorf("encode right record: %w", err)
				}
				if _, err := stmt.ExecContext(ctx, ex.Left.String(), ex.Right.String(), string(ex.Judgment),
					string(left), string(right), ex.LabeledAt.UTC().Format(time.RFC3339Nano)); err != nil {
					return fmt.Errorf("insert example: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return failure.Wrap(nil, "store", "save training", s.path, err)
	}
	s.logger.Info("training examples saved",
		logging.String("path", s.path),
		logging.Int("examples", len(examples)),
		logging.String(logging.FieldEventType, "training_saved"),
	)
	return nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, model linkage.TrainedModel) error {
	data, err := s.codec.SerializeModel(model)
	if err != nil {
		return failure.Wrap(nil, "store", "save settings", "serialize model", err)
	}
	err = retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (id, model, examples, saved_at) VALUES (1, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET model = excluded.model, examples = excluded.examples, saved_at = excluded.saved_at`,
			data, model.Examples(), time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return failure.Wrap(nil, "store", "save settings", s.path, err)
	}
	s.logger.Info("settings saved",
		logging.String("path", s.path),
		logging.Int("examples", model.Examples()),
		logging.String(logging.FieldEventType, "settings_saved"),
	)
	return nil
}

func (s *SQLiteStore) ClearTrainingExamples(ctx context.Context) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM training_examples")
		return err
	})
}

func (s *SQLiteStore) Location() string {
	return "database=" + s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
