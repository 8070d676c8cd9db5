package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// userRow maps the users table. Username uniqueness is enforced by a
// unique index on lower(username).
type userRow struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// ============================================================
// Categories
// ============================================================

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCategories")
	defer span.End()

	q := url.Values{"select": {"id,name"}}
	body, err := c.call(ctx, http.MethodGet, "categories", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	cats, err := decodeRows[domain.Category](body, "categories")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cats, func(i, j int) bool { return strings.ToLower(cats[i].Name) < strings.ToLower(cats[j].Name) })
	if cats == nil {
		cats = []domain.Category{}
	}
	return cats, nil
}

func (c *Client) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCategory")
	defer span.End()

	q := url.Values{"select": {"id,name"}, "id": {"eq." + id}, "limit": {"1"}}
	body, err := c.call(ctx, http.MethodGet, "categories", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	cats, err := decodeRows[domain.Category](body, "categories")
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, &domain.ErrNotFound{Resource: "category", ID: id}
	}
	return &cats[0], nil
}

// CreateCategory relies on a unique index on lower(name); PostgREST answers
// 409 on violation.
func (c *Client) CreateCategory(ctx context.Context, cat *domain.Category) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCategory")
	defer span.End()

	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	row := map[string]any{"id": cat.ID, "name": cat.Name}
	if _, err := c.call(ctx, http.MethodPost, "categories", nil, row, preferMinimal); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// ============================================================
// Users
// ============================================================

func (c *Client) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := map[string]any{
		"id":            u.ID,
		"username":      u.Username,
		"password_hash": u.PasswordHash,
		"created_at":    u.CreatedAt,
	}
	if _, err := c.call(ctx, http.MethodPost, "users", nil, row, preferMinimal); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (c *Client) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByUsername")
	defer span.End()

	q := url.Values{"select": {"*"}, "username": {"ilike." + escapeLike(username)}, "limit": {"1"}}
	return c.getUser(ctx, q, username)
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByID")
	defer span.End()

	q := url.Values{"select": {"*"}, "id": {"eq." + id}, "limit": {"1"}}
	return c.getUser(ctx, q, id)
}

func (c *Client) getUser(ctx context.Context, q url.Values, key string) (*domain.User, error) {
	body, err := c.call(ctx, http.MethodGet, "users", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	rows, err := decodeRows[userRow](body, "users")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "user", ID: key}
	}
	r := rows[0]
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}, nil
}
