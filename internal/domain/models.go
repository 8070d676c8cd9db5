// Package domain defines the core entities of the finance tracker.
// These models are independent of storage and transport and represent the
// canonical data structures shared by the engine, services and handlers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedName is the bucket used for expenses without a category.
const UncategorizedName = "Uncategorized"

// MaxDescriptionLength bounds free-text descriptions on records.
const MaxDescriptionLength = 500

// MaxCategoryNameLength bounds category names.
const MaxCategoryNameLength = 50

// DefaultCategories are seeded into a fresh record store.
var DefaultCategories = []string{"Food", "Rent", "Transport", "Utilities", "Entertainment", "Health", "Shopping"}

// DatedAmount is the capability shared by incomes and expenses: a calendar
// date and a non-negative amount. The period aggregator works on it.
type DatedAmount interface {
	RecordDate() time.Time
	RecordAmount() decimal.Decimal
}

// ============================================================
// Categories
// ============================================================

// Category is an expense category. Categories are shared by all users.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ============================================================
// Transactions
// ============================================================

// Income is money received by a user.
type Income struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (i Income) RecordDate() time.Time         { return i.Date }
func (i Income) RecordAmount() decimal.Decimal { return i.Amount }

// Expense is money spent by a user, optionally tagged with a category.
type Expense struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Category    *Category       `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (e Expense) RecordDate() time.Time         { return e.Date }
func (e Expense) RecordAmount() decimal.Decimal { return e.Amount }

// CategoryName returns the category name, or UncategorizedName when the
// expense has no category.
func (e Expense) CategoryName() string {
	if e.Category == nil {
		return UncategorizedName
	}
	return e.Category.Name
}

// ============================================================
// Write-side inputs
// ============================================================

// ExpenseInput is the body for POST/PUT /v1/expenses.
type ExpenseInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"` // YYYY-MM-DD
	CategoryID  string          `json:"category_id,omitempty"`
	Description string          `json:"description,omitempty"`
}

// IncomeInput is the body for POST /v1/incomes.
type IncomeInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"` // YYYY-MM-DD
	Description string          `json:"description,omitempty"`
}

// CategoryInput is the body for POST /v1/categories.
type CategoryInput struct {
	Name string `json:"name"`
}

// ListFilter narrows record listings. Zero values mean "no bound".
type ListFilter struct {
	From       time.Time
	To         time.Time
	CategoryID string
	Limit      int
}

// Matches reports whether a record dated d falls inside the filter window.
func (f ListFilter) Matches(d time.Time) bool {
	if !f.From.IsZero() && d.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To) {
		return false
	}
	return true
}
