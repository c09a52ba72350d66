package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// expires_at em unix nanos; NULL = sem expiração.
const schemaKV = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	expires_at INTEGER
)`

// bancos criados antes de expires_at existir
const migrateKVExpiry = `ALTER TABLE kv ADD COLUMN expires_at INTEGER`

// SQL implementa KV sobre database/sql usando o driver libsql.
// Aceita arquivo local (path) ou banco remoto (libsql://, com auth token).
type SQL struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQL abre o banco, valida a conexão e garante a tabela kv.
func OpenSQL(ctx context.Context, cfg Config) (*SQL, error) {
	dsn, err := buildLibsqlDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverLibsql, dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}
	return NewSQL(ctx, db)
}

// NewSQL usa um *sql.DB existente (ex: testes).
func NewSQL(ctx context.Context, db *sql.DB) (*SQL, error) {
	if _, err := db.ExecContext(ctx, schemaKV); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate kv table: %w", err)
	}
	if _, err := db.ExecContext(ctx, migrateKVExpiry); err != nil &&
		!strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
		_ = db.Close()
		return nil, fmt.Errorf("migrate kv expiry: %w", err)
	}
	return &SQL{db: db, now: time.Now}, nil
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixNano()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ioErr("get", key, err)
	}
	return v, true, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	return s.upsert(ctx, key, value, nil)
}

// SetWithTTL grava com prazo; a linha some das leituras ao vencer e é
// apagada de fato por Sweep.
func (s *SQL) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.upsert(ctx, key, value, nil)
	}
	at := s.now().Add(ttl).UnixNano()
	return s.upsert(ctx, key, value, &at)
}

func (s *SQL) upsert(ctx context.Context, key, value string, expiresAt *int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		   updated_at = excluded.updated_at, expires_at = excluded.expires_at`,
		key, value, s.now().UTC().Format(time.RFC3339Nano), expiresAt)
	if err != nil {
		return ioErr("set", key, err)
	}
	return nil
}

// Sweep apaga as linhas vencidas e devolve quantas saíram.
func (s *SQL) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, ioErr("sweep", "*", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQL) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return ioErr("remove", key, err)
	}
	return nil
}

func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildLibsqlDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		return addAuthToken(dsn, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("storage path or url is required for libsql")
	case path == ":memory:":
		return path, nil
	case strings.HasPrefix(path, "libsql:"):
		return path, nil
	case strings.HasPrefix(path, "file:"):
		local := strings.TrimPrefix(path, "file:")
		if i := strings.IndexByte(local, '?'); i >= 0 {
			local = local[:i]
		}
		if err := ensureDir(local); err != nil {
			return "", err
		}
		return path, nil
	}

	if err := ensureDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func addAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid storage url: %w", err)
	}
	q := u.Query()
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return nil
}
