package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"

	"pgsentry/internal/domain"
)

// Opener opens a database handle. It matches sql.Open.
type Opener func(driverName, dsn string) (*sql.DB, error)

// SQLRunner executes SQL steps. A fresh handle is opened from the target's
// connection string for every call and closed before returning.
type SQLRunner struct {
	open    Opener
	timeout time.Duration
	logger  *slog.Logger
}

// NewSQLRunner creates a runner that opens connections with sql.Open.
func NewSQLRunner(timeout time.Duration, logger *slog.Logger) *SQLRunner {
	return &SQLRunner{open: sql.Open, timeout: timeout, logger: logger}
}

// WithOpener returns a copy of the runner that opens handles with open.
func (r *SQLRunner) WithOpener(open Opener) *SQLRunner {
	copied := *r
	copied.open = open
	return &copied
}

// Kind implements StepRunner.
func (r *SQLRunner) Kind() domain.StepKind {
	return domain.StepSQL
}

// Run implements StepRunner.
func (r *SQLRunner) Run(ctx context.Context, step domain.Step, args map[string]any, target *domain.Target, mode Mode) ([]Row, error) {
	if mode == ModeRead {
		return r.Query(ctx, step.Query, args, target)
	}
	return nil, r.Exec(ctx, step.Query, args, target)
}

// Exec runs a statement inside a transaction and commits it.
func (r *SQLRunner) Exec(ctx context.Context, query string, args map[string]any, target *domain.Target) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, style, err := r.connect(target)
	if err != nil {
		return err
	}
	defer db.Close()

	nq := compileNamed(query, style)
	params, err := bindParams(nq, args)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return r.sqlError(ctx, err)
	}
	if _, err := tx.ExecContext(ctx, nq.SQL, params...); err != nil {
		_ = tx.Rollback()
		return r.sqlError(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return r.sqlError(ctx, err)
	}

	r.logger.Debug("sql statement committed", "target", target.Alias, "db", redactedHost(target.DBURL))
	return nil
}

// Query runs a read-only query and returns normalized rows. When the query
// references neither :limit nor :offset, paging is applied to the fetched rows.
func (r *SQLRunner) Query(ctx context.Context, query string, args map[string]any, target *domain.Target) ([]Row, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, style, err := r.connect(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	nq := compileNamed(query, style)
	params, err := bindParams(nq, args)
	if err != nil {
		return nil, err
	}

	// A statement that pages itself with either name is trusted with both.
	limit, offset := -1, 0
	if !nq.Referenced[ArgLimit] && !nq.Referenced[ArgOffset] {
		if v, ok := args[ArgLimit].(int64); ok {
			limit = int(v)
		}
		if v, ok := args[ArgOffset].(int64); ok {
			offset = int(v)
		}
	}

	rows, err := db.QueryContext(ctx, nq.SQL, params...)
	if err != nil {
		return nil, r.sqlError(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, r.sqlError(ctx, err)
	}

	result := []Row{}
	for seen := 0; rows.Next(); seen++ {
		if seen < offset {
			continue
		}
		if limit >= 0 && len(result) >= limit {
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, r.sqlError(ctx, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = NormalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, r.sqlError(ctx, err)
	}

	r.logger.Debug("sql query finished", "target", target.Alias, "db", redactedHost(target.DBURL), "rows", len(result))
	return result, nil
}

func (r *SQLRunner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *SQLRunner) connect(target *domain.Target) (*sql.DB, placeholderStyle, error) {
	driver, dsn, style, err := resolveDriver(target.DBURL)
	if err != nil {
		return nil, 0, err
	}
	db, err := r.open(driver, dsn)
	if err != nil {
		return nil, 0, domain.NewSQLError("could not open connection: %v", err)
	}
	return db, style, nil
}

func (r *SQLRunner) sqlError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewSQLError("statement timed out after %s", r.timeout)
	}
	return domain.NewSQLError("%s", err.Error())
}

func bindParams(nq namedQuery, args map[string]any) ([]any, error) {
	params := make([]any, len(nq.Params))
	for i, name := range nq.Params {
		v, ok := args[name]
		if !ok {
			return nil, domain.NewSQLError("no value for parameter :%s", name)
		}
		params[i] = v
	}
	return params, nil
}

// resolveDriver picks the database/sql driver from the connection URL
// scheme. A "+driver" suffix on the scheme is ignored.
func resolveDriver(dbURL string) (driver, dsn string, style placeholderStyle, err error) {
	if dbURL == "" {
		return "", "", 0, domain.NewSQLError("target has no database configured")
	}
	u, parseErr := url.Parse(dbURL)
	if parseErr != nil || u.Scheme == "" {
		// The parse error echoes the URL, which may carry a password.
		return "", "", 0, domain.NewSQLError("invalid database connection string")
	}

	scheme, _, _ := strings.Cut(strings.ToLower(u.Scheme), "+")
	switch scheme {
	case "postgres", "postgresql":
		u.Scheme = scheme
		return "pgx", u.String(), placeholderDollar, nil
	case "mysql":
		return "mysql", mysqlDSN(u), placeholderQuestion, nil
	case "sqlserver", "mssql":
		u.Scheme = "sqlserver"
		return "sqlserver", u.String(), placeholderAtP, nil
	default:
		return "", "", 0, domain.NewSQLError("unsupported database scheme %q", u.Scheme)
	}
}

func mysqlDSN(u *url.URL) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.ParseTime = true

	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "3306"
	}
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = strings.TrimPrefix(u.Path, "/")

	if q := u.Query(); len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}
	return cfg.FormatDSN()
}

// redactedHost returns scheme and host of a connection URL for logging.
func redactedHost(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "?"
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
