package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

// ============================================================
// Expenses
// ============================================================

func listExpensesHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/expenses")
		defer span.End()

		filter, err := parseListFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		expenses, err := ledger.ListExpenses(ctx, OwnerIDFromContext(ctx), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		span.SetAttributes(attribute.Int("expenses.count", len(expenses)))
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Expense]{Data: expenses, Total: len(expenses)})
	}
}

func addExpenseHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/expenses")
		defer span.End()

		var in domain.ExpenseInput
		if !decodeJSON(w, r, &in) {
			return
		}

		exp, err := ledger.AddExpense(ctx, OwnerIDFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, exp)
	}
}

func getExpenseHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/expenses/{expenseId}")
		defer span.End()

		id := chi.URLParam(r, "expenseId")
		span.SetAttributes(attribute.String("expense.id", id))

		exp, err := ledger.GetExpense(ctx, OwnerIDFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, exp)
	}
}

func updateExpenseHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/expenses/{expenseId}")
		defer span.End()

		id := chi.URLParam(r, "expenseId")
		span.SetAttributes(attribute.String("expense.id", id))

		var in domain.ExpenseInput
		if !decodeJSON(w, r, &in) {
			return
		}

		exp, err := ledger.UpdateExpense(ctx, OwnerIDFromContext(ctx), id, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, exp)
	}
}

func deleteExpenseHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/expenses/{expenseId}")
		defer span.End()

		id := chi.URLParam(r, "expenseId")
		if err := ledger.DeleteExpense(ctx, OwnerIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "expense deleted", ID: id})
	}
}

// ============================================================
// Incomes
// ============================================================

func listIncomesHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/incomes")
		defer span.End()

		filter, err := parseListFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		incomes, err := ledger.ListIncomes(ctx, OwnerIDFromContext(ctx), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Income]{Data: incomes, Total: len(incomes)})
	}
}

func addIncomeHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/incomes")
		defer span.End()

		var in domain.IncomeInput
		if !decodeJSON(w, r, &in) {
			return
		}

		inc, err := ledger.AddIncome(ctx, OwnerIDFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, inc)
	}
}

func deleteIncomeHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/incomes/{incomeId}")
		defer span.End()

		id := chi.URLParam(r, "incomeId")
		if err := ledger.DeleteIncome(ctx, OwnerIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "income deleted", ID: id})
	}
}

// ============================================================
// Categories
// ============================================================

func listCategoriesHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/categories")
		defer span.End()

		cats, err := ledger.ListCategories(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Category]{Data: cats, Total: len(cats)})
	}
}

func createCategoryHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/categories")
		defer span.End()

		var in domain.CategoryInput
		if !decodeJSON(w, r, &in) {
			return
		}

		cat, err := ledger.CreateCategory(ctx, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, cat)
	}
}
