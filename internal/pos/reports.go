package pos

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kesspos/kesspos/internal/session"
)

// lowStockThreshold marks products running out.
const lowStockThreshold = 10

// DashboardStats aggregates the scoped figures shown on the dashboard.
type DashboardStats struct {
	RevenueToday       float64 `json:"revenueToday"`
	SalesCountToday    int     `json:"salesCountToday"`
	ExpensesToday      float64 `json:"expensesToday"`
	StockValue         float64 `json:"stockValue"`
	LowStockProducts   int     `json:"lowStockProducts"`
	OutstandingCredits float64 `json:"outstandingCredits"`
}

// PopularProduct ranks a product by quantity sold.
type PopularProduct struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Revenue   float64 `json:"revenue"`
}

// Dashboard computes the dashboard read model from the scoped
// collections. now anchors "today" in UTC.
func (s *Service) Dashboard(ctx context.Context, scope session.Scope, now time.Time) (DashboardStats, error) {
	if !scope.Valid() {
		return DashboardStats{}, session.ErrSessionInvalid
	}

	saleDocs, err := s.List(ctx, scope, KindSales)
	if err != nil {
		return DashboardStats{}, err
	}
	sales, err := DecodeAll[Sale](saleDocs)
	if err != nil {
		return DashboardStats{}, err
	}

	productDocs, err := s.List(ctx, scope, KindProducts)
	if err != nil {
		return DashboardStats{}, err
	}
	products, err := DecodeAll[Product](productDocs)
	if err != nil {
		return DashboardStats{}, err
	}

	expenseDocs, err := s.List(ctx, scope, KindExpenses)
	if err != nil {
		return DashboardStats{}, err
	}
	expenses, err := DecodeAll[Expense](expenseDocs)
	if err != nil {
		return DashboardStats{}, err
	}

	today := now.UTC().Format("2006-01-02")
	var stats DashboardStats
	for _, sale := range sales {
		if strings.HasPrefix(sale.CreatedAt, today) {
			stats.RevenueToday += sale.Total
			stats.SalesCountToday++
		}
		if sale.Status == SaleStatusUnpaid {
			paid, err := s.paidAmountStore(ctx, scope, sale.ID)
			if err != nil {
				return DashboardStats{}, err
			}
			if balance := sale.Total - paid; balance > balanceEpsilon {
				stats.OutstandingCredits += balance
			}
		}
	}
	for _, product := range products {
		stats.StockValue += product.Price * float64(product.Stock)
		if product.Type == ProductTypeProduct && product.Stock > 0 && product.Stock <= lowStockThreshold {
			stats.LowStockProducts++
		}
	}
	for _, expense := range expenses {
		if strings.HasPrefix(expense.CreatedAt, today) {
			stats.ExpensesToday += expense.Amount
		}
	}
	return stats, nil
}

// LowStock lists the stocked products at or below the low-stock
// threshold, lowest first. Out-of-stock products are included here even
// though the dashboard counter skips them.
func (s *Service) LowStock(ctx context.Context, scope session.Scope) ([]Product, error) {
	if !scope.Valid() {
		return nil, session.ErrSessionInvalid
	}

	docs, err := s.List(ctx, scope, KindProducts)
	if err != nil {
		return nil, err
	}
	products, err := DecodeAll[Product](docs)
	if err != nil {
		return nil, err
	}

	var low []Product
	for _, product := range products {
		if product.Type == ProductTypeProduct && product.Stock <= lowStockThreshold {
			low = append(low, product)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].Stock != low[j].Stock {
			return low[i].Stock < low[j].Stock
		}
		return low[i].Name < low[j].Name
	})
	return low, nil
}

// PopularProducts ranks products by quantity sold across all scoped
// sales, descending, limited to n entries.
func (s *Service) PopularProducts(ctx context.Context, scope session.Scope, n int) ([]PopularProduct, error) {
	if !scope.Valid() {
		return nil, session.ErrSessionInvalid
	}

	saleDocs, err := s.List(ctx, scope, KindSales)
	if err != nil {
		return nil, err
	}
	sales, err := DecodeAll[Sale](saleDocs)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string]*PopularProduct)
	for _, sale := range sales {
		for _, item := range sale.Items {
			entry, ok := byProduct[item.ID]
			if !ok {
				entry = &PopularProduct{ProductID: item.ID, Name: item.Name}
				byProduct[item.ID] = entry
			}
			entry.Quantity += item.Quantity
			entry.Revenue += item.Price * float64(item.Quantity)
		}
	}

	ranked := make([]PopularProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		return ranked[i].Name < ranked[j].Name
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}
