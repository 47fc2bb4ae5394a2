package pos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kesspos/kesspos/internal/session"
)

func TestDashboard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 18, 0, 0, 0, time.UTC)

	rice := createProduct(t, svc, testScope, "Rice", 8, ProductTypeProduct)
	createProduct(t, svc, testScope, "Oil", 50, ProductTypeProduct)

	_, err := svc.RecordSale(ctx, testScope, SaleDraft{
		Items:         []SaleItem{saleItem(rice, "Rice", 100, 2, ProductTypeProduct)},
		Subtotal:      200,
		Total:         200,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)

	credit := recordCreditSale(t, svc, "cust_1", 300)
	_, err = svc.AddCreditPayment(ctx, testScope, credit.ID, 120, PaymentCash)
	require.NoError(t, err)

	_, err = svc.Create(ctx, testScope, KindExpenses, Expense{
		Description: "Fuel", Amount: 40, Category: ExpenseTransport,
	})
	require.NoError(t, err)

	stats, err := svc.Dashboard(ctx, testScope, now)
	require.NoError(t, err)

	require.InDelta(t, 500.0, stats.RevenueToday, balanceEpsilon)
	require.Equal(t, 2, stats.SalesCountToday)
	require.InDelta(t, 40.0, stats.ExpensesToday, balanceEpsilon)
	require.InDelta(t, 180.0, stats.OutstandingCredits, balanceEpsilon)

	// Rice is down to 6 after the sale; only it sits at or below the
	// low-stock threshold.
	require.Equal(t, 1, stats.LowStockProducts)
	require.InDelta(t, 6*100+50*100+999*100, stats.StockValue, balanceEpsilon)
}

func TestDashboardRequiresScope(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Dashboard(context.Background(), session.Scope{}, time.Now())
	require.ErrorIs(t, err, session.ErrSessionInvalid)
}

func TestLowStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createProduct(t, svc, testScope, "Rice", 3, ProductTypeProduct)
	createProduct(t, svc, testScope, "Oil", 10, ProductTypeProduct)
	createProduct(t, svc, testScope, "Salt", 50, ProductTypeProduct)
	empty := createProduct(t, svc, testScope, "Flour", 0, ProductTypeProduct)
	_, err := svc.Create(ctx, testScope, KindProducts, Product{Name: "Repair", Type: ProductTypeService})
	require.NoError(t, err)

	low, err := svc.LowStock(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, low, 3)
	require.Equal(t, empty, low[0].ID)
	require.Equal(t, "Rice", low[1].Name)
	require.Equal(t, "Oil", low[2].Name)
}

func TestPopularProducts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rice := createProduct(t, svc, testScope, "Rice", 100, ProductTypeProduct)
	oil := createProduct(t, svc, testScope, "Oil", 100, ProductTypeProduct)

	_, err := svc.RecordSale(ctx, testScope, SaleDraft{
		Items: []SaleItem{
			saleItem(rice, "Rice", 100, 5, ProductTypeProduct),
			saleItem(oil, "Oil", 50, 2, ProductTypeProduct),
		},
		Subtotal:      600,
		Total:         600,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, testScope, SaleDraft{
		Items:         []SaleItem{saleItem(oil, "Oil", 50, 1, ProductTypeProduct)},
		Subtotal:      50,
		Total:         50,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)

	ranked, err := svc.PopularProducts(ctx, testScope, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	require.Equal(t, rice, ranked[0].ProductID)
	require.Equal(t, 5, ranked[0].Quantity)
	require.InDelta(t, 500.0, ranked[0].Revenue, balanceEpsilon)
	require.Equal(t, oil, ranked[1].ProductID)
	require.Equal(t, 3, ranked[1].Quantity)

	top1, err := svc.PopularProducts(ctx, testScope, 1)
	require.NoError(t, err)
	require.Len(t, top1, 1)
	require.Equal(t, rice, top1[0].ProductID)
}
