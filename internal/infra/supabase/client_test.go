package supabase_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/resilience"
	"github.com/boddenberg/finance-tracker-go/internal/infra/supabase"
	"github.com/boddenberg/finance-tracker-go/internal/port"
)

var (
	_ port.RecordStore = (*supabase.Client)(nil)
	_ port.UserStore   = (*supabase.Client)(nil)
)

func newClient(t *testing.T, h http.HandlerFunc) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 1}
	return supabase.NewClient(srv.Client(), srv.URL+"/", "anon", "service-role",
		resilience.NewCircuitBreaker("supabase-test"), cfg, zap.NewNop())
}

func TestListExpenses_BuildsQueryAndDecodes(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/expenses", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-role", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "eq.user-1", q.Get("owner_id"))
		assert.Equal(t, []string{"gte.2024-01-01", "lte.2024-01-31"}, q["date"])
		assert.Equal(t, "eq.cat-food", q.Get("category_id"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "date.desc,created_at.desc", q.Get("order"))

		w.Write([]byte(`[
			{"id":"e2","owner_id":"user-1","amount":12.5,"date":"2024-01-20","description":"",
			 "created_at":"2024-01-20T10:00:00Z","category":{"id":"cat-food","name":"Food"}},
			{"id":"e1","owner_id":"user-1","amount":"600","date":"2024-01-05","description":"rent share",
			 "created_at":"2024-01-05T10:00:00Z","category":null}
		]`))
	})

	f := domain.ListFilter{
		From:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		CategoryID: "cat-food",
		Limit:      5,
	}
	got, err := client.ListExpenses(context.Background(), "user-1", f)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "Food", got[0].CategoryName())
	assert.Equal(t, domain.UncategorizedName, got[1].CategoryName())
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), got[1].Date)
}

func TestDeleteExpense_NoRowIsNotFound(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "eq.someone-else", r.URL.Query().Get("owner_id"))
		w.Write([]byte(`[]`))
	})

	err := client.DeleteExpense(context.Background(), "someone-else", "e1")

	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCreateExpense_SendsRow(t *testing.T) {
	var payload map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusCreated)
	})

	e := &domain.Expense{
		OwnerID:  "user-1",
		Amount:   decimal.RequireFromString("49.90"),
		Date:     time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		Category: &domain.Category{ID: "cat-1", Name: "Food"},
	}
	require.NoError(t, client.CreateExpense(context.Background(), e))

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, e.ID, payload["id"])
	assert.Equal(t, "2024-03-02", payload["date"])
	assert.Equal(t, "cat-1", payload["category_id"])
	assert.Equal(t, "49.9", payload["amount"])
}

func TestCreateUser_ConflictIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value"}`))
	})

	err := client.CreateUser(context.Background(), &domain.User{Username: "alice"})

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":"c1","name":"Food"}]`))
	})

	cats, err := client.ListCategories(context.Background())

	require.NoError(t, err)
	assert.Len(t, cats, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetUserByUsername_EscapesPattern(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `ilike.a\_b`, r.URL.Query().Get("username"))
		w.Write([]byte(`[{"id":"u1","username":"A_b","password_hash":"x","created_at":"2024-01-01T00:00:00Z"}]`))
	})

	u, err := client.GetUserByUsername(context.Background(), "a_b")

	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "x", u.PasswordHash)
}

func TestGetCategory_Missing(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := client.GetCategory(context.Background(), "nope")

	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}
