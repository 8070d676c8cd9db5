// Package sqlite is the persistent record store backed by modernc.org/sqlite.
// The schema is managed by embedded golang-migrate migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Store implements port.RecordStore and port.UserStore.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates the database directory if needed, opens the database, runs
// migrations and seeds the default categories.
func Open(ctx context.Context, dbPath string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.seedCategories(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store ready", zap.String("path", dbPath))
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) seedCategories(ctx context.Context) error {
	for _, name := range domain.DefaultCategories {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO categories (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
			uuid.NewString(), name)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", name, err)
		}
	}
	return nil
}

// ============================================================
// Expenses
// ============================================================

const expenseColumns = `e.id, e.owner_id, e.amount, e.date, e.description, e.created_at, c.id, c.name`

func (s *Store) CreateExpense(ctx context.Context, e *domain.Expense) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, owner_id, category_id, amount, date, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, categoryID(e.Category), e.Amount.String(),
		e.Date.Format(dateLayout), e.Description, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (s *Store) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET category_id = ?, amount = ?, date = ?, description = ?
		 WHERE id = ? AND owner_id = ?`,
		categoryID(e.Category), e.Amount.String(), e.Date.Format(dateLayout), e.Description,
		e.ID, e.OwnerID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireAffected(res, "expense", e.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireAffected(res, "expense", id)
}

func (s *Store) GetExpense(ctx context.Context, ownerID, id string) (*domain.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses e LEFT JOIN categories c ON c.id = e.category_id
		 WHERE e.id = ? AND e.owner_id = ?`, id, ownerID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "expense", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Expense, error) {
	where, args := filterClause("e", ownerID, f)
	if f.CategoryID != "" {
		where += " AND e.category_id = ?"
		args = append(args, f.CategoryID)
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses e LEFT JOIN categories c ON c.id = e.category_id
		WHERE ` + where + ` ORDER BY e.date DESC, e.created_at DESC` + limitClause(f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ============================================================
// Incomes
// ============================================================

func (s *Store) CreateIncome(ctx context.Context, i *domain.Income) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incomes (id, owner_id, amount, date, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.OwnerID, i.Amount.String(), i.Date.Format(dateLayout), i.Description, formatTime(i.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	return nil
}

func (s *Store) DeleteIncome(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return requireAffected(res, "income", id)
}

func (s *Store) ListIncomes(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Income, error) {
	where, args := filterClause("i", ownerID, f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.owner_id, i.amount, i.date, i.description, i.created_at FROM incomes i
		 WHERE `+where+` ORDER BY i.date DESC, i.created_at DESC`+limitClause(f), args...)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Income, 0)
	for rows.Next() {
		var (
			in              domain.Income
			date, createdAt string
		)
		if err := rows.Scan(&in.ID, &in.OwnerID, &in.Amount, &date, &in.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if in.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse income date: %w", err)
		}
		in.CreatedAt = parseTime(createdAt)
		out = append(out, in)
	}
	return out, rows.Err()
}

// ============================================================
// Categories
// ============================================================

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "category", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrConflict{Message: "category already exists: " + c.Name}
	}
	return nil
}

// ============================================================
// Users
// ============================================================

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		u.ID, u.Username, u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrConflict{Message: "username already taken"}
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, `username = ?`, username)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, cond, arg string) (*domain.User, error) {
	var (
		u         domain.User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE `+cond, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: arg}
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// ============================================================
// Helpers
// ============================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*domain.Expense, error) {
	var (
		e               domain.Expense
		date, createdAt string
		catID, catName  sql.NullString
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Amount, &date, &e.Description, &createdAt, &catID, &catName); err != nil {
		return nil, err
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse expense date: %w", err)
	}
	e.Date = d
	e.CreatedAt = parseTime(createdAt)
	if catID.Valid {
		e.Category = &domain.Category{ID: catID.String, Name: catName.String}
	}
	return &e, nil
}

func filterClause(alias, ownerID string, f domain.ListFilter) (string, []any) {
	var b strings.Builder
	args := []any{ownerID}
	b.WriteString(alias + ".owner_id = ?")
	if !f.From.IsZero() {
		b.WriteString(" AND " + alias + ".date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		b.WriteString(" AND " + alias + ".date <= ?")
		args = append(args, f.To.Format(dateLayout))
	}
	return b.String(), args
}

func limitClause(f domain.ListFilter) string {
	if f.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", f.Limit)
}

func categoryID(c *domain.Category) any {
	if c == nil || c.ID == "" {
		return nil
	}
	return c.ID
}

func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
