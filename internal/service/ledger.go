package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/port"
)

var ledgerTracer = otel.Tracer("service/ledger")

const dateLayout = "2006-01-02"

// ReportInvalidator drops memoized reports after a user's records change.
type ReportInvalidator interface {
	Invalidate(ownerID string)
}

// LedgerService is the write side of the tracker: it validates and stores
// incomes, expenses and categories, always scoped to the calling user.
type LedgerService struct {
	store       port.RecordStore
	invalidator ReportInvalidator
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewLedgerService creates the ledger service. invalidator may be nil.
func NewLedgerService(store port.RecordStore, invalidator ReportInvalidator, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:       store,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// ============================================================
// Expenses: /v1/expenses
// ============================================================

func (s *LedgerService) AddExpense(ctx context.Context, ownerID string, in *domain.ExpenseInput) (*domain.Expense, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.AddExpense")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	e, err := s.buildExpense(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = s.now().UTC()

	if err := s.store.CreateExpense(ctx, e); err != nil {
		return nil, s.storeError("create_expense", ownerID, err)
	}

	s.written(ownerID, "expense", "create")
	s.logger.Info("expense added",
		zap.String("owner_id", ownerID),
		zap.String("expense_id", e.ID),
		zap.String("category", e.CategoryName()),
	)
	return e, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, ownerID, id string, in *domain.ExpenseInput) (*domain.Expense, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UpdateExpense")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID), attribute.String("expense.id", id))

	current, err := s.store.GetExpense(ctx, ownerID, id)
	if err != nil {
		return nil, s.storeError("get_expense", ownerID, err)
	}

	e, err := s.buildExpense(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}
	e.ID = current.ID
	e.CreatedAt = current.CreatedAt

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return nil, s.storeError("update_expense", ownerID, err)
	}

	s.written(ownerID, "expense", "update")
	return e, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, ownerID, id string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteExpense")
	defer span.End()

	if err := s.store.DeleteExpense(ctx, ownerID, id); err != nil {
		return s.storeError("delete_expense", ownerID, err)
	}

	s.written(ownerID, "expense", "delete")
	s.logger.Info("expense deleted", zap.String("owner_id", ownerID), zap.String("expense_id", id))
	return nil
}

func (s *LedgerService) GetExpense(ctx context.Context, ownerID, id string) (*domain.Expense, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetExpense")
	defer span.End()

	e, err := s.store.GetExpense(ctx, ownerID, id)
	if err != nil {
		return nil, s.storeError("get_expense", ownerID, err)
	}
	return e, nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Expense, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListExpenses")
	defer span.End()

	if err := validateFilter(f); err != nil {
		return nil, err
	}

	list, err := s.store.ListExpenses(ctx, ownerID, f)
	if err != nil {
		return nil, s.storeError("list_expenses", ownerID, err)
	}
	return list, nil
}

// ============================================================
// Incomes: /v1/incomes
// ============================================================

func (s *LedgerService) AddIncome(ctx context.Context, ownerID string, in *domain.IncomeInput) (*domain.Income, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.AddIncome")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	date, err := validateRecord(in.Amount, in.Date, in.Description)
	if err != nil {
		return nil, err
	}

	income := &domain.Income{
		OwnerID:     ownerID,
		Amount:      in.Amount,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateIncome(ctx, income); err != nil {
		return nil, s.storeError("create_income", ownerID, err)
	}

	s.written(ownerID, "income", "create")
	s.logger.Info("income added", zap.String("owner_id", ownerID), zap.String("income_id", income.ID))
	return income, nil
}

func (s *LedgerService) DeleteIncome(ctx context.Context, ownerID, id string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteIncome")
	defer span.End()

	if err := s.store.DeleteIncome(ctx, ownerID, id); err != nil {
		return s.storeError("delete_income", ownerID, err)
	}

	s.written(ownerID, "income", "delete")
	return nil
}

func (s *LedgerService) ListIncomes(ctx context.Context, ownerID string, f domain.ListFilter) ([]domain.Income, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListIncomes")
	defer span.End()

	if err := validateFilter(f); err != nil {
		return nil, err
	}

	list, err := s.store.ListIncomes(ctx, ownerID, f)
	if err != nil {
		return nil, s.storeError("list_incomes", ownerID, err)
	}
	return list, nil
}

// ============================================================
// Categories: /v1/categories
// ============================================================

func (s *LedgerService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListCategories")
	defer span.End()

	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, s.storeError("list_categories", "", err)
	}
	return cats, nil
}

func (s *LedgerService) CreateCategory(ctx context.Context, in *domain.CategoryInput) (*domain.Category, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateCategory")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	case utf8.RuneCountInString(name) > domain.MaxCategoryNameLength:
		return nil, &domain.ErrValidation{Field: "name", Message: fmt.Sprintf("must be at most %d characters", domain.MaxCategoryNameLength)}
	case strings.EqualFold(name, domain.UncategorizedName):
		return nil, &domain.ErrValidation{Field: "name", Message: "is reserved"}
	}

	c := &domain.Category{Name: name}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, s.storeError("create_category", "", err)
	}

	s.metrics.IncrRecordWrite("category", "create")
	s.logger.Info("category created", zap.String("category_id", c.ID), zap.String("name", name))
	return c, nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *LedgerService) buildExpense(ctx context.Context, ownerID string, in *domain.ExpenseInput) (*domain.Expense, error) {
	date, err := validateRecord(in.Amount, in.Date, in.Description)
	if err != nil {
		return nil, err
	}

	e := &domain.Expense{
		OwnerID:     ownerID,
		Amount:      in.Amount,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
	}

	if id := strings.TrimSpace(in.CategoryID); id != "" {
		c, err := s.store.GetCategory(ctx, id)
		if err != nil {
			var nf *domain.ErrNotFound
			if errors.As(err, &nf) {
				return nil, &domain.ErrValidation{Field: "category_id", Message: "unknown category"}
			}
			return nil, s.storeError("get_category", ownerID, err)
		}
		e.Category = c
	}
	return e, nil
}

// storeError passes domain errors through and wraps anything else as a
// record-store failure.
func (s *LedgerService) storeError(op, ownerID string, err error) error {
	if isDomainError(err) {
		return err
	}
	s.metrics.IncrStoreError(op)
	s.logger.Error("record store failure",
		zap.String("operation", op),
		zap.String("owner_id", ownerID),
		zap.Error(err),
	)
	return &domain.ErrExternalService{Service: "record-store", Err: err}
}

func (s *LedgerService) written(ownerID, record, action string) {
	s.metrics.IncrRecordWrite(record, action)
	if s.invalidator != nil {
		s.invalidator.Invalidate(ownerID)
	}
}

func validateRecord(amount decimal.Decimal, date, description string) (time.Time, error) {
	if !amount.IsPositive() {
		return time.Time{}, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(description)) > domain.MaxDescriptionLength {
		return time.Time{}, &domain.ErrValidation{
			Field:   "description",
			Message: fmt.Sprintf("must be at most %d characters", domain.MaxDescriptionLength),
		}
	}
	return d, nil
}

// ParseDate parses a required YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &domain.ErrValidation{Field: "date", Message: "is required"}
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: "date", Message: "must be formatted as YYYY-MM-DD"}
	}
	return d, nil
}

func validateFilter(f domain.ListFilter) error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return &domain.ErrValidation{Field: "from", Message: "must not be after 'to'"}
	}
	if f.Limit < 0 {
		return &domain.ErrValidation{Field: "limit", Message: "must not be negative"}
	}
	return nil
}

func isDomainError(err error) bool {
	var (
		nf *domain.ErrNotFound
		ve *domain.ErrValidation
		ce *domain.ErrConflict
		ue *domain.ErrUnauthorized
		co *domain.ErrCircuitOpen
		es *domain.ErrExternalService
		te *domain.ErrTimeout
	)
	return errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &ce) ||
		errors.As(err, &ue) || errors.As(err, &co) || errors.As(err, &es) || errors.As(err, &te)
}
