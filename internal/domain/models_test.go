package domain_test

import (
	"testing"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

func TestExpense_CategoryName(t *testing.T) {
	tests := []struct {
		name     string
		category *domain.Category
		want     string
	}{
		{"no category", nil, domain.UncategorizedName},
		{"named", &domain.Category{ID: "c1", Name: "Food"}, "Food"},
		{"blank name kept", &domain.Category{ID: "c2", Name: "  "}, "  "},
		{"empty name kept", &domain.Category{ID: "c3"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := domain.Expense{Category: tt.category}
			if got := e.CategoryName(); got != tt.want {
				t.Errorf("CategoryName() = %q, want %q", got, tt.want)
			}
		})
	}
}
