// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// PrefixCache is a Cache that can also drop every key under a prefix.
type PrefixCache[T any] interface {
	Cache[T]
	DeletePrefix(prefix string) int
}

// ExpenseStore persists expenses. Reads are scoped by owner: a record that
// belongs to someone else is reported as *domain.ErrNotFound.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e *domain.Expense) error
	UpdateExpense(ctx context.Context, e *domain.Expense) error
	DeleteExpense(ctx context.Context, ownerID, id string) error
	GetExpense(ctx context.Context, ownerID, id string) (*domain.Expense, error)
	// ListExpenses returns the owner's expenses, newest first.
	ListExpenses(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Expense, error)
}

// IncomeStore persists incomes with the same scoping rules as ExpenseStore.
type IncomeStore interface {
	CreateIncome(ctx context.Context, i *domain.Income) error
	DeleteIncome(ctx context.Context, ownerID, id string) error
	ListIncomes(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Income, error)
}

// CategoryStore persists the shared category list.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	// CreateCategory fails with *domain.ErrConflict when the name is taken
	// (case-insensitive).
	CreateCategory(ctx context.Context, c *domain.Category) error
}

// RecordStore is the full record store used by the ledger and report services.
type RecordStore interface {
	ExpenseStore
	IncomeStore
	CategoryStore
	Ping(ctx context.Context) error
}

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser fails with *domain.ErrConflict when the username is taken.
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}
