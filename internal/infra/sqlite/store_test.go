package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "tracker.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *sqlite.Store, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, PasswordHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOpen_SeedsCategoriesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.db")
	ctx := context.Background()

	s, err := sqlite.Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, len(domain.DefaultCategories))
	assert.NoError(t, s.Ping(ctx))
}

func TestExpenses_RoundTripAndOwnerScoping(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	food := cats[0]

	e := &domain.Expense{
		OwnerID:     alice.ID,
		Amount:      decimal.RequireFromString("12.34"),
		Date:        day(2024, time.March, 2),
		Category:    &food,
		Description: "lunch",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateExpense(ctx, e))
	require.NotEmpty(t, e.ID)

	got, err := s.GetExpense(ctx, alice.ID, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(e.Amount))
	assert.Equal(t, e.Date, got.Date)
	require.NotNil(t, got.Category)
	assert.Equal(t, food.Name, got.Category.Name)

	_, err = s.GetExpense(ctx, bob.ID, e.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	err = s.DeleteExpense(ctx, bob.ID, e.ID)
	assert.ErrorAs(t, err, &nf)

	e.Category = nil
	e.Amount = decimal.NewFromInt(20)
	require.NoError(t, s.UpdateExpense(ctx, e))
	got, err = s.GetExpense(ctx, alice.ID, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Category)
	assert.Equal(t, domain.UncategorizedName, got.CategoryName())

	require.NoError(t, s.DeleteExpense(ctx, alice.ID, e.ID))
	_, err = s.GetExpense(ctx, alice.ID, e.ID)
	assert.ErrorAs(t, err, &nf)
}

func TestListExpenses_FilterAndOrder(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "carol")
	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)

	for i, d := range []time.Time{day(2024, time.January, 5), day(2024, time.March, 1), day(2024, time.February, 10)} {
		c := cats[i%2]
		require.NoError(t, s.CreateExpense(ctx, &domain.Expense{
			OwnerID: u.ID, Amount: decimal.NewFromInt(int64(i + 1)), Date: d, Category: &c,
		}))
	}

	all, err := s.ListExpenses(ctx, u.ID, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, day(2024, time.March, 1), all[0].Date)
	assert.Equal(t, day(2024, time.January, 5), all[2].Date)

	window, err := s.ListExpenses(ctx, u.ID, domain.ListFilter{From: day(2024, time.February, 1), To: day(2024, time.February, 29)})
	require.NoError(t, err)
	require.Len(t, window, 1)

	byCat, err := s.ListExpenses(ctx, u.ID, domain.ListFilter{CategoryID: cats[0].ID})
	require.NoError(t, err)
	assert.Len(t, byCat, 2)

	limited, err := s.ListExpenses(ctx, u.ID, domain.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestIncomes(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "dave")

	in := &domain.Income{OwnerID: u.ID, Amount: decimal.RequireFromString("1500.50"), Date: day(2024, time.April, 1)}
	require.NoError(t, s.CreateIncome(ctx, in))

	list, err := s.ListIncomes(ctx, u.ID, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "1500.5", list[0].Amount.String())

	require.NoError(t, s.DeleteIncome(ctx, u.ID, in.ID))
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, s.DeleteIncome(ctx, u.ID, in.ID), &nf)
}

func TestCategoriesAndUsers_Conflicts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var conflict *domain.ErrConflict
	assert.ErrorAs(t, s.CreateCategory(ctx, &domain.Category{Name: "food"}), &conflict)

	travel := &domain.Category{Name: "Travel"}
	require.NoError(t, s.CreateCategory(ctx, travel))
	got, err := s.GetCategory(ctx, travel.ID)
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Name)

	seedUser(t, s, "erin")
	assert.ErrorAs(t, s.CreateUser(ctx, &domain.User{Username: "ERIN", PasswordHash: "x"}), &conflict)

	u, err := s.GetUserByUsername(ctx, "erin")
	require.NoError(t, err)
	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "erin", byID.Username)
}
