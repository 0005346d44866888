// Package storage is the SQLite implementation of the remote data service.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/dataservice"

	_ "modernc.org/sqlite"
)

// Fixed-width so that timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var _ dataservice.Service = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer avoids SQLITE_BUSY between the API and background deletes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const expenseColumns = `id, month, description, amount, date, person_id, shared, pct1, pct2,
	counterparty_email, user_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                   core.Expense
		month, amount, date string
		created, updated    string
		shared              int
	)
	err := row.Scan(&e.ID, &month, &e.Description, &amount, &date, &e.PersonID, &shared,
		&e.Pct1, &e.Pct2, &e.CounterpartyEmail, &e.UserID, &created, &updated)
	if err != nil {
		return core.Expense{}, err
	}
	e.Month = core.Month(month)
	e.Shared = shared == 1
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s amount %q: %w", e.ID, amount, err)
	}
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	e.CreatedAt, _ = time.Parse(timeLayout, created)
	e.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return e, nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListOwned(ctx context.Context, userID string) ([]core.Expense, error) {
	out, err := r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list owned expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListSharedWith(ctx context.Context, email string) ([]core.Expense, error) {
	if email == "" {
		return nil, nil
	}
	out, err := r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE shared = 1 AND counterparty_email = ? ORDER BY date DESC, created_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list shared expenses: %w", err)
	}
	return out, nil
}

// ListAll returns every expense, oldest first. Used by exports and the sheet mirror.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]core.Expense, error) {
	out, err := r.queryExpenses(ctx, `SELECT `+expenseColumns+` FROM expenses ORDER BY date, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, dataservice.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validation failed: %w", err)
	}
	now := r.now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Month), e.Description, e.Amount.StringFixed(2), e.Date.Format("2006-01-02"),
		e.PersonID, boolToInt(e.Shared), e.Pct1, e.Pct2, e.CounterpartyEmail, e.UserID,
		fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"description", e.Description,
		"amount", e.Amount.StringFixed(2),
		"month", e.Month,
		"shared", e.Shared)

	return e, nil
}

// DeleteExpense removes the row when userID owns it or email is its counterparty.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, email, id string) error {
	e, err := r.GetExpense(ctx, id)
	if errors.Is(err, dataservice.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !e.VisibleTo(userID, email) {
		return dataservice.ErrPermissionDenied
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id, "user_id", userID)
	return nil
}

func scanPerson(row rowScanner) (core.Person, error) {
	var (
		p      core.Person
		salary string
	)
	if err := row.Scan(&p.ID, &p.Name, &salary, &p.Email, &p.UserID); err != nil {
		return core.Person{}, err
	}
	s, err := decimal.NewFromString(salary)
	if err != nil {
		return core.Person{}, fmt.Errorf("person %s salary %q: %w", p.ID, salary, err)
	}
	p.Salary = s
	return p, nil
}

func (r *SQLiteRepository) ListPeople(ctx context.Context, userID string) ([]core.Person, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, salary, email, user_id FROM people WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var out []core.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetPerson(ctx context.Context, id string) (core.Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx,
		`SELECT id, name, salary, email, user_id FROM people WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Person{}, dataservice.ErrNotFound
	}
	if err != nil {
		return core.Person{}, fmt.Errorf("get person %s: %w", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) CreatePerson(ctx context.Context, p core.Person) (core.Person, error) {
	if err := p.Validate(); err != nil {
		return core.Person{}, fmt.Errorf("validation failed: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO people (id, name, salary, email, user_id) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Salary.StringFixed(2), p.Email, p.UserID)
	if err != nil {
		return core.Person{}, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) UpdatePersonSalary(ctx context.Context, id string, salary decimal.Decimal) error {
	return r.updatePerson(ctx, `UPDATE people SET salary = ? WHERE id = ?`, salary.StringFixed(2), id)
}

func (r *SQLiteRepository) UpdatePersonName(ctx context.Context, id, name string) error {
	return r.updatePerson(ctx, `UPDATE people SET name = ? WHERE id = ?`, name, id)
}

func (r *SQLiteRepository) updatePerson(ctx context.Context, query string, value any, id string) error {
	res, err := r.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update person %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dataservice.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) EmailForPerson(ctx context.Context, personID string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM people WHERE id = ?`, personID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && email == "") {
		return "", dataservice.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("email for person %s: %w", personID, err)
	}
	return email, nil
}

func (r *SQLiteRepository) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", dataservice.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("user id by email: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpsertUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name`,
		u.ID, u.Email, u.Name, fmtTime(r.now()))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx, `SELECT id, email, name FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Email, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, dataservice.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (r *SQLiteRepository) InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message, read, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Message, boolToInt(n.Read), fmtTime(n.CreatedAt))
	if err != nil {
		return core.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListNotifications(ctx context.Context, userID string) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, message, read, created_at FROM notifications
		WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n       core.Notification
			read    int
			created string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &read, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Read = read == 1
		n.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dataservice.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetPreferences(ctx context.Context, userID string) (core.Preferences, bool, error) {
	var p core.Preferences
	err := r.db.QueryRowContext(ctx,
		`SELECT currency, theme, language FROM preferences WHERE user_id = ?`, userID).
		Scan(&p.Currency, &p.Theme, &p.Language)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultPreferences(), false, nil
	}
	if err != nil {
		return core.Preferences{}, false, fmt.Errorf("get preferences: %w", err)
	}
	return p.WithDefaults(), true, nil
}

func (r *SQLiteRepository) SetPreferences(ctx context.Context, userID string, p core.Preferences) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO preferences (user_id, currency, theme, language) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET currency = excluded.currency, theme = excluded.theme, language = excluded.language`,
		userID, string(p.Currency), string(p.Theme), p.Language)
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
