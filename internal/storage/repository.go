package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"conti/internal/core"
)

// Dialect selects the SQL flavour and migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLRepository implements every store port on top of database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the SQLite database at dbPath and migrates it.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectSQLite, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: DialectSQLite, now: time.Now}, nil
}

// NewPostgresRepository connects to Postgres through pgx and migrates the schema.
func NewPostgresRepository(ctx context.Context, dsn string) (*SQLRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: DialectPostgres, now: time.Now}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const transactionColumns = `id, user_id, category_id, title, amount_cents, notes, date, status,
	recurrence_type, recurrence_day, is_recurring, source_template_id, created_at, updated_at`

// CreateTransaction stores a user-entered transaction or template.
func (r *SQLRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	saved, _, err := r.insertTransaction(ctx, t, false)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction saved",
		"id", saved.ID,
		"user_id", saved.UserID,
		"title", saved.Title,
		"amount_cents", saved.Amount.Cents,
		"date", saved.Date.String(),
		"is_recurring", saved.IsRecurring)
	return saved, nil
}

// CreateGeneratedTransaction inserts a materialized instance; the unique index on
// generated rows turns a duplicate into core.ErrConflict instead of a second row.
func (r *SQLRepository) CreateGeneratedTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	saved, inserted, err := r.insertTransaction(ctx, t, true)
	if err != nil {
		return core.Transaction{}, err
	}
	if !inserted {
		return core.Transaction{}, fmt.Errorf("generated transaction %q on %s: %w", t.Title, t.Date, core.ErrConflict)
	}
	return saved, nil
}

func (r *SQLRepository) insertTransaction(ctx context.Context, t core.Transaction, ignoreConflict bool) (core.Transaction, bool, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	q := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if ignoreConflict {
		q += ` ON CONFLICT DO NOTHING`
	}

	res, err := r.db.ExecContext(ctx, r.rebind(q),
		t.ID, t.UserID, t.CategoryID, t.Title, t.Amount.Cents, t.Notes, t.Date,
		string(t.Status), string(t.RecurrenceType), t.RecurrenceDay, t.IsRecurring,
		t.SourceTemplateID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("insert transaction: %w", r.mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("insert transaction rows affected: %w", err)
	}
	return t, n > 0, nil
}

func (r *SQLRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+transactionColumns+`
		FROM transactions WHERE id = ? AND user_id = ?`), id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLRepository) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if f.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		where = append(where, "date <= ?")
		args = append(args, *f.EndDate)
	}
	if f.RecurringOnly {
		where = append(where, "is_recurring = ?")
		args = append(args, true)
	}

	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date, id`
	if f.Limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE transactions SET
			category_id = ?, title = ?, amount_cents = ?, notes = ?, date = ?, status = ?,
			recurrence_type = ?, recurrence_day = ?, is_recurring = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`),
		t.CategoryID, t.Title, t.Amount.Cents, t.Notes, t.Date, string(t.Status),
		string(t.RecurrenceType), t.RecurrenceDay, t.IsRecurring, r.now().UTC(),
		t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", r.mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	return r.GetTransaction(ctx, t.UserID, t.ID)
}

// DeleteTransaction removes a row. Instances generated from it keep existing
// and lose their back-reference.
func (r *SQLRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE transactions SET source_template_id = NULL
			WHERE source_template_id = ? AND user_id = ?`), id, userID); err != nil {
			return fmt.Errorf("detach generated transactions: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM transactions WHERE id = ? AND user_id = ?`), id, userID)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

// ListRecurringTemplates returns the user's rows flagged is_recurring.
func (r *SQLRepository) ListRecurringTemplates(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.ListTransactions(ctx, userID, core.TransactionFilter{RecurringOnly: true})
}

// ExistsTransaction reports whether the user has a non-template transaction with
// title on day; categoryID narrows the match only when set.
func (r *SQLRepository) ExistsTransaction(ctx context.Context, userID, title string, categoryID *string, day core.Date) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM transactions WHERE user_id = ? AND title = ? AND date = ? AND is_recurring = ?`
	args := []any{userID, title, core.DateOf(day.Time), false}
	if categoryID != nil {
		q += ` AND category_id = ?`
		args = append(args, *categoryID)
	}
	q += `)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, r.rebind(q), args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check transaction exists: %w", err)
	}
	return exists, nil
}

func (r *SQLRepository) ListUsersWithTemplates(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT DISTINCT user_id FROM transactions
		WHERE is_recurring = ? ORDER BY user_id`), true)
	if err != nil {
		return nil, fmt.Errorf("list users with templates: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *SQLRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO categories (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)`), c.ID, c.UserID, c.Name, c.CreatedAt)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", r.mapError(err))
	}

	slog.InfoContext(ctx, "Category saved", "id", c.ID, "user_id", c.UserID, "name", c.Name)
	return c, nil
}

func (r *SQLRepository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id, user_id, name, created_at
		FROM categories WHERE id = ? AND user_id = ?`), id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT id, user_id, name, created_at
		FROM categories WHERE user_id = ? ORDER BY name`), userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory removes the category and nulls category_id on its transactions.
func (r *SQLRepository) DeleteCategory(ctx context.Context, userID, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE transactions SET category_id = NULL
			WHERE category_id = ? AND user_id = ?`), id, userID); err != nil {
			return fmt.Errorf("detach transactions: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM categories WHERE id = ? AND user_id = ?`), id, userID)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *SQLRepository) rebind(q string) string {
	if r.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// mapError turns unique violations of either driver into core.ErrConflict.
func (r *SQLRepository) mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", core.ErrConflict, pgErr.ConstraintName)
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch code := sqliteErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"):
			return fmt.Errorf("%w: %s", core.ErrConflict, sqliteErr.Error())
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t             core.Transaction
		categoryID    sql.NullString
		sourceID      sql.NullString
		recurrenceDay sql.NullInt64
		status, rtype string
	)
	err := s.Scan(&t.ID, &t.UserID, &categoryID, &t.Title, &t.Amount.Cents, &t.Notes, &t.Date,
		&status, &rtype, &recurrenceDay, &t.IsRecurring, &sourceID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Status = core.Status(status)
	t.RecurrenceType = core.RecurrenceType(rtype)
	if categoryID.Valid {
		t.CategoryID = &categoryID.String
	}
	if sourceID.Valid {
		t.SourceTemplateID = &sourceID.String
	}
	if recurrenceDay.Valid {
		day := int(recurrenceDay.Int64)
		t.RecurrenceDay = &day
	}
	return t, nil
}
