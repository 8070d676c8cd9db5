// Package memory provides an in-process record store used by default in
// development and by tests. Data is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// Store implements port.RecordStore and port.UserStore over maps guarded by
// a single RWMutex. Returned records are copies.
type Store struct {
	mu         sync.RWMutex
	expenses   map[string]domain.Expense
	incomes    map[string]domain.Income
	categories []domain.Category
	users      map[string]domain.User
}

// NewStore creates a store seeded with domain.DefaultCategories.
func NewStore() *Store {
	s := &Store{
		expenses: make(map[string]domain.Expense),
		incomes:  make(map[string]domain.Income),
		users:    make(map[string]domain.User),
	}
	for _, name := range domain.DefaultCategories {
		s.categories = append(s.categories, domain.Category{ID: uuid.NewString(), Name: name})
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// ============================================================
// Expenses
// ============================================================

func (s *Store) CreateExpense(_ context.Context, e *domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.expenses[e.ID] = cloneExpense(*e)
	return nil
}

func (s *Store) UpdateExpense(_ context.Context, e *domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[e.ID]
	if !ok || cur.OwnerID != e.OwnerID {
		return &domain.ErrNotFound{Resource: "expense", ID: e.ID}
	}
	s.expenses[e.ID] = cloneExpense(*e)
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[id]
	if !ok || cur.OwnerID != ownerID {
		return &domain.ErrNotFound{Resource: "expense", ID: id}
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) GetExpense(_ context.Context, ownerID, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.expenses[id]
	if !ok || cur.OwnerID != ownerID {
		return nil, &domain.ErrNotFound{Resource: "expense", ID: id}
	}
	e := cloneExpense(cur)
	return &e, nil
}

func (s *Store) ListExpenses(_ context.Context, ownerID string, f domain.ListFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	out := make([]domain.Expense, 0)
	for _, e := range s.expenses {
		if e.OwnerID != ownerID || !f.Matches(e.Date) {
			continue
		}
		if f.CategoryID != "" && (e.Category == nil || e.Category.ID != f.CategoryID) {
			continue
		}
		out = append(out, cloneExpense(e))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i].Date, out[j].Date, out[i].CreatedAt, out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ============================================================
// Incomes
// ============================================================

func (s *Store) CreateIncome(_ context.Context, i *domain.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	s.incomes[i.ID] = *i
	return nil
}

func (s *Store) DeleteIncome(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.incomes[id]
	if !ok || cur.OwnerID != ownerID {
		return &domain.ErrNotFound{Resource: "income", ID: id}
	}
	delete(s.incomes, id)
	return nil
}

func (s *Store) ListIncomes(_ context.Context, ownerID string, f domain.ListFilter) ([]domain.Income, error) {
	s.mu.RLock()
	out := make([]domain.Income, 0)
	for _, i := range s.incomes {
		if i.OwnerID == ownerID && f.Matches(i.Date) {
			out = append(out, i)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return newerFirst(out[a].Date, out[b].Date, out[a].CreatedAt, out[b].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ============================================================
// Categories
// ============================================================

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, len(s.categories))
	copy(out, s.categories)
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "category", ID: id}
}

func (s *Store) CreateCategory(_ context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return &domain.ErrConflict{Message: "category already exists: " + c.Name}
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.categories = append(s.categories, *c)
	return nil
}

// ============================================================
// Users
// ============================================================

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return &domain.ErrConflict{Message: "username already taken"}
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			u := u
			return &u, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: username}
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}
	return &u, nil
}

func cloneExpense(e domain.Expense) domain.Expense {
	if e.Category != nil {
		c := *e.Category
		e.Category = &c
	}
	return e
}

func newerFirst(da, db, ca, cb time.Time) bool {
	if !da.Equal(db) {
		return da.After(db)
	}
	return ca.After(cb)
}
