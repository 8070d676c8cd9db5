package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

const (
	dateLayout    = "2006-01-02"
	expenseSelect = "id,owner_id,amount,date,description,created_at,category:categories(id,name)"
	incomeSelect  = "id,owner_id,amount,date,description,created_at"
)

// expenseRow maps the expenses table plus the embedded category.
type expenseRow struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
	Category    *domain.Category `json:"category,omitempty"`
}

type incomeRow struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (r expenseRow) toDomain() (domain.Expense, error) {
	d, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("parse expense date %q: %w", r.Date, err)
	}
	return domain.Expense{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Amount:      r.Amount,
		Date:        d,
		Category:    r.Category,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func (r incomeRow) toDomain() (domain.Income, error) {
	d, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return domain.Income{}, fmt.Errorf("parse income date %q: %w", r.Date, err)
	}
	return domain.Income{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Amount:      r.Amount,
		Date:        d,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// writeExpense is the column set sent on insert and update.
func writeExpense(e *domain.Expense) map[string]any {
	row := map[string]any{
		"id":          e.ID,
		"owner_id":    e.OwnerID,
		"amount":      e.Amount,
		"date":        e.Date.Format(dateLayout),
		"description": e.Description,
		"created_at":  e.CreatedAt,
		"category_id": nil,
	}
	if e.Category != nil {
		row["category_id"] = e.Category.ID
	}
	return row
}

// ownedRow filters a table to one row of one owner.
func ownedRow(ownerID, id string) url.Values {
	return url.Values{
		"id":       {"eq." + id},
		"owner_id": {"eq." + ownerID},
	}
}

// listQuery applies the shared list filter. Rows come back newest first.
func listQuery(sel, ownerID string, f domain.ListFilter) url.Values {
	q := url.Values{
		"select":   {sel},
		"owner_id": {"eq." + ownerID},
		"order":    {"date.desc,created_at.desc"},
	}
	if !f.From.IsZero() {
		q.Add("date", "gte."+f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		q.Add("date", "lte."+f.To.Format(dateLayout))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// ============================================================
// Expenses
// ============================================================

func (c *Client) CreateExpense(ctx context.Context, e *domain.Expense) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateExpense")
	defer span.End()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, err := c.call(ctx, http.MethodPost, "expenses", nil, writeExpense(e), preferMinimal); err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (c *Client) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateExpense")
	defer span.End()
	span.SetAttributes(attribute.String("expense.id", e.ID))

	q := ownedRow(e.OwnerID, e.ID)
	q.Set("select", "id")
	body, err := c.call(ctx, http.MethodPatch, "expenses", q, writeExpense(e), preferRepresentation)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	rows, err := decodeRows[expenseRow](body, "expenses")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "expense", ID: e.ID}
	}
	return nil
}

func (c *Client) DeleteExpense(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteExpense")
	defer span.End()
	span.SetAttributes(attribute.String("expense.id", id))

	q := ownedRow(ownerID, id)
	q.Set("select", "id")
	body, err := c.call(ctx, http.MethodDelete, "expenses", q, nil, preferRepresentation)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	rows, err := decodeRows[expenseRow](body, "expenses")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "expense", ID: id}
	}
	return nil
}

func (c *Client) GetExpense(ctx context.Context, ownerID, id string) (*domain.Expense, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetExpense")
	defer span.End()
	span.SetAttributes(attribute.String("expense.id", id))

	q := ownedRow(ownerID, id)
	q.Set("select", expenseSelect)
	q.Set("limit", "1")
	body, err := c.call(ctx, http.MethodGet, "expenses", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	rows, err := decodeRows[expenseRow](body, "expenses")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "expense", ID: id}
	}
	e, err := rows[0].toDomain()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) ListExpenses(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Expense, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListExpenses")
	defer span.End()

	q := listQuery(expenseSelect, ownerID, f)
	if f.CategoryID != "" {
		q.Set("category_id", "eq."+f.CategoryID)
	}
	body, err := c.call(ctx, http.MethodGet, "expenses", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	rows, err := decodeRows[expenseRow](body, "expenses")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Expense, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	span.SetAttributes(attribute.Int("expenses.count", len(out)))
	return out, nil
}

// ============================================================
// Incomes
// ============================================================

func (c *Client) CreateIncome(ctx context.Context, i *domain.Income) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateIncome")
	defer span.End()

	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	row := map[string]any{
		"id":          i.ID,
		"owner_id":    i.OwnerID,
		"amount":      i.Amount,
		"date":        i.Date.Format(dateLayout),
		"description": i.Description,
		"created_at":  i.CreatedAt,
	}
	if _, err := c.call(ctx, http.MethodPost, "incomes", nil, row, preferMinimal); err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	return nil
}

func (c *Client) DeleteIncome(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteIncome")
	defer span.End()

	q := ownedRow(ownerID, id)
	q.Set("select", "id")
	body, err := c.call(ctx, http.MethodDelete, "incomes", q, nil, preferRepresentation)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	rows, err := decodeRows[incomeRow](body, "incomes")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "income", ID: id}
	}
	return nil
}

func (c *Client) ListIncomes(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Income, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListIncomes")
	defer span.End()

	body, err := c.call(ctx, http.MethodGet, "incomes", listQuery(incomeSelect, ownerID, f), nil, "")
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	rows, err := decodeRows[incomeRow](body, "incomes")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Income, 0, len(rows))
	for _, r := range rows {
		i, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}
