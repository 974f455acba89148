package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sumanthpn07/lazyApply/internal/logger"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// Dialect selects SQL differences between the supported drivers.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

const selectColumns = `ref, target, url, title, company, status, reason, fields, updated_at`

// SQLStore is a Store backed by database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.SugaredLogger
	now     func() time.Time
}

// Open connects to the database and migrates the schema.
func Open(ctx context.Context, driver, dsn string, log *zap.SugaredLogger) (*SQLStore, error) {
	log = logger.OrNop(log)
	dialect := Dialect(driver)

	switch dialect {
	case DialectSQLite:
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn")
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	default:
		return nil, errors.WithHint(errors.Newf("unsupported store driver %q", driver),
			"use sqlite3 or mysql")
	}

	log.Debugw("Opening job store", "driver", driver)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open job store")
	}
	if dialect == DialectSQLite {
		// one connection: keeps :memory: databases shared and serialises writers
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, errors.Wrapf(err, "apply %s", pragma)
			}
		}
	}

	s := New(db, dialect, log)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Infow("Job store opened", "driver", driver)
	return s, nil
}

// New wraps an open database. The schema is not touched.
func New(db *sql.DB, dialect Dialect, log *zap.SugaredLogger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		log:     logger.OrNop(log),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the jobs table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case DialectMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS jobs (
			ref        VARCHAR(191) NOT NULL PRIMARY KEY,
			target     VARCHAR(64)  NOT NULL,
			url        TEXT         NOT NULL,
			title      TEXT         NOT NULL,
			company    TEXT         NOT NULL,
			status     VARCHAR(32)  NOT NULL,
			reason     TEXT         NOT NULL,
			fields     TEXT         NULL,
			updated_at DATETIME(6)  NOT NULL,
			INDEX idx_jobs_status (status)
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS jobs (
			ref        TEXT PRIMARY KEY,
			target     TEXT NOT NULL,
			url        TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			company    TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT '',
			reason     TEXT NOT NULL DEFAULT '',
			fields     TEXT,
			updated_at DATETIME NOT NULL
		)`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "create jobs table")
	}
	if s.dialect == DialectSQLite {
		if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`); err != nil {
			return errors.Wrap(err, "create status index")
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, ref types.JobRef) (types.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM jobs WHERE ref = ?`, string(ref))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, notFound(ref)
	}
	if err != nil {
		return types.Job{}, errors.Wrapf(err, "get job %s", ref)
	}
	return job, nil
}

// UpdateStatus implements Store.
func (s *SQLStore) UpdateStatus(ctx context.Context, ref types.JobRef, status types.JobStatus, reason string) error {
	if !status.Valid() {
		return errors.Newf("unknown status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, reason = ?, fields = NULL, updated_at = ? WHERE ref = ?`,
		string(status), reason, s.now(), string(ref))
	if err != nil {
		return errors.Wrapf(err, "update status of %s", ref)
	}
	return s.expectOne(res, ref)
}

// SetNeedsInput implements Store.
func (s *SQLStore) SetNeedsInput(ctx context.Context, ref types.JobRef, fields []types.Field) error {
	if fields == nil {
		fields = []types.Field{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "encode fields")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, reason = '', fields = ?, updated_at = ? WHERE ref = ?`,
		string(types.StatusNeedsInput), string(raw), s.now(), string(ref))
	if err != nil {
		return errors.Wrapf(err, "set needs-input on %s", ref)
	}
	return s.expectOne(res, ref)
}

// Upsert implements Store.
func (s *SQLStore) Upsert(ctx context.Context, job types.Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	var stmt string
	switch s.dialect {
	case DialectMySQL:
		stmt = `INSERT INTO jobs (ref, target, url, title, company, status, reason, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, '', ?)
			ON DUPLICATE KEY UPDATE target = VALUES(target), url = VALUES(url),
				title = VALUES(title), company = VALUES(company), updated_at = VALUES(updated_at)`
	default:
		stmt = `INSERT INTO jobs (ref, target, url, title, company, status, reason, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, '', ?)
			ON CONFLICT(ref) DO UPDATE SET target = excluded.target, url = excluded.url,
				title = excluded.title, company = excluded.company, updated_at = excluded.updated_at`
	}
	_, err := s.db.ExecContext(ctx, stmt,
		string(job.Ref), job.Target, job.URL, job.Title, job.Company,
		string(job.Status), s.now())
	if err != nil {
		return errors.Wrapf(err, "upsert job %s", job.Ref)
	}
	return nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, status types.JobStatus) ([]types.Job, error) {
	query := `SELECT ` + selectColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY ref`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		out = append(out, job)
	}
	return out, errors.Wrap(rows.Err(), "list jobs")
}

func (s *SQLStore) expectOne(res sql.Result, ref types.JobRef) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(ref)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (types.Job, error) {
	var (
		job    types.Job
		ref    string
		status string
		fields sql.NullString
	)
	err := row.Scan(&ref, &job.Target, &job.URL, &job.Title, &job.Company,
		&status, &job.Reason, &fields, &job.UpdatedAt)
	if err != nil {
		return types.Job{}, err
	}
	job.Ref = types.JobRef(ref)
	job.Status = types.JobStatus(status)
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &job.Fields); err != nil {
			return types.Job{}, errors.Wrapf(err, "decode fields of %s", ref)
		}
		if len(job.Fields) == 0 {
			job.Fields = nil
		}
	}
	return job, nil
}
