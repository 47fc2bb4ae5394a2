package pos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kesspos/kesspos/internal/session"
)

func saleItem(id, name string, price float64, qty int, typ ProductType) SaleItem {
	return SaleItem{ID: id, Name: name, Price: price, Quantity: qty, Type: typ}
}

func recordCreditSale(t *testing.T, svc *Service, customerID string, total float64) Sale {
	t.Helper()
	productID := createProduct(t, svc, testScope, "Credit Item", 1000, ProductTypeProduct)
	sale, err := svc.RecordSale(context.Background(), testScope, SaleDraft{
		Items:         []SaleItem{saleItem(productID, "Credit Item", total, 1, ProductTypeProduct)},
		Subtotal:      total,
		Total:         total,
		PaymentMethod: PaymentCredit,
		CustomerID:    customerID,
	})
	require.NoError(t, err)
	return sale
}

func TestRecordSaleDecrementsStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	productID := createProduct(t, svc, testScope, "Rice", 10, ProductTypeProduct)

	sale, err := svc.RecordSale(ctx, testScope, SaleDraft{
		Items:         []SaleItem{saleItem(productID, "Rice", 100, 3, ProductTypeProduct)},
		Subtotal:      300,
		Total:         300,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)
	require.Equal(t, SaleStatusPaid, sale.Status)
	require.Equal(t, SyncPending, sale.SyncStatus)

	product := getTyped[Product](t, svc, KindProducts, productID)
	require.Equal(t, 7, product.Stock)
}

func TestRecordSaleInsufficientStockRollsBack(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	okID := createProduct(t, svc, testScope, "Rice", 10, ProductTypeProduct)
	lowID := createProduct(t, svc, testScope, "Oil", 1, ProductTypeProduct)

	_, err := svc.RecordSale(ctx, testScope, SaleDraft{
		Items: []SaleItem{
			saleItem(okID, "Rice", 100, 3, ProductTypeProduct),
			saleItem(lowID, "Oil", 50, 2, ProductTypeProduct),
		},
		Subtotal:      400,
		Total:         400,
		PaymentMethod: PaymentCash,
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.ErrorIs(t, err, ErrInvalidState)

	// Nothing is partially applied: no sale, no decrement on either line.
	sales, listErr := svc.List(ctx, testScope, KindSales)
	require.NoError(t, listErr)
	require.Empty(t, sales)
	require.Equal(t, 10, getTyped[Product](t, svc, KindProducts, okID).Stock)
	require.Equal(t, 1, getTyped[Product](t, svc, KindProducts, lowID).Stock)
}

func TestRecordSaleUnknownProductRollsBack(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, testScope, SaleDraft{
		Items:         []SaleItem{saleItem("prod_missing", "Ghost", 100, 1, ProductTypeProduct)},
		Subtotal:      100,
		Total:         100,
		PaymentMethod: PaymentCash,
	})
	require.ErrorIs(t, err, ErrEntityNotFound)

	sales, err := svc.List(ctx, testScope, KindSales)
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestRecordSaleServiceItemsSkipStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	serviceID, err := svc.Create(ctx, testScope, KindProducts, Product{
		Name: "Repair", Price: 50, Type: ProductTypeService,
	})
	require.NoError(t, err)

	sale, err := svc.RecordSale(ctx, testScope, SaleDraft{
		Items:         []SaleItem{saleItem(serviceID, "Repair", 50, 4, ProductTypeService)},
		Subtotal:      200,
		Total:         200,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)
	require.Equal(t, SaleStatusPaid, sale.Status)
	require.Equal(t, 0, getTyped[Product](t, svc, KindProducts, serviceID).Stock)
}

func TestRecordSaleCreditRequiresCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	productID := createProduct(t, svc, testScope, "Rice", 10, ProductTypeProduct)

	_, err := svc.RecordSale(context.Background(), testScope, SaleDraft{
		Items:         []SaleItem{saleItem(productID, "Rice", 100, 1, ProductTypeProduct)},
		Subtotal:      100,
		Total:         100,
		PaymentMethod: PaymentCredit,
	})
	require.ErrorIs(t, err, ErrInvalidOperation)
}

func TestRecordSaleCreditStartsUnpaid(t *testing.T) {
	svc, _ := newTestService(t)
	sale := recordCreditSale(t, svc, "cust_1", 500)
	require.Equal(t, SaleStatusUnpaid, sale.Status)
	require.Equal(t, "cust_1", sale.CustomerID)
}

func TestRecordSaleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	productID := createProduct(t, svc, testScope, "Rice", 10, ProductTypeProduct)

	_, err := svc.RecordSale(ctx, testScope, SaleDraft{PaymentMethod: PaymentCash})
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = svc.RecordSale(ctx, testScope, SaleDraft{
		Items:         []SaleItem{saleItem(productID, "Rice", 100, 0, ProductTypeProduct)},
		PaymentMethod: PaymentCash,
	})
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = svc.RecordSale(ctx, testScope, SaleDraft{
		Items:         []SaleItem{saleItem(productID, "Rice", 100, 1, ProductTypeProduct)},
		PaymentMethod: PaymentMethod("barter"),
	})
	require.ErrorIs(t, err, ErrInvalidOperation)
}

func TestAdjustStockRecordsMovement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	productID := createProduct(t, svc, testScope, "Rice", 10, ProductTypeProduct)

	newStock, err := svc.AdjustStock(ctx, testScope, productID, 15, "delivery received")
	require.NoError(t, err)
	require.Equal(t, 25, newStock)

	newStock, err = svc.AdjustStock(ctx, testScope, productID, -5, "spoilage")
	require.NoError(t, err)
	require.Equal(t, 20, newStock)

	docs, err := svc.List(ctx, testScope, KindStockMovements)
	require.NoError(t, err)
	movements, err := DecodeAll[StockMovement](docs)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, movement := range movements {
		require.Equal(t, productID, movement.ProductID)
		require.Equal(t, movement.ID, movement.MovementID)
	}
}

func TestAdjustStockZeroIsNoOp(t *testing.T) {
	svc, signal := newTestService(t)
	ctx := context.Background()

	productID := createProduct(t, svc, testScope, "Rice", 10, ProductTypeProduct)
	before := signal.count()

	newStock, err := svc.AdjustStock(ctx, testScope, productID, 0, "recount")
	require.NoError(t, err)
	require.Equal(t, 10, newStock)

	docs, err := svc.List(ctx, testScope, KindStockMovements)
	require.NoError(t, err)
	require.Empty(t, docs)
	require.Equal(t, before, signal.count())
}

func TestAdjustStockGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	productID := createProduct(t, svc, testScope, "Rice", 10, ProductTypeProduct)
	_, err := svc.AdjustStock(ctx, testScope, productID, -11, "loss")
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Equal(t, 10, getTyped[Product](t, svc, KindProducts, productID).Stock)

	serviceID, err := svc.Create(ctx, testScope, KindProducts, Product{Name: "Repair", Type: ProductTypeService})
	require.NoError(t, err)
	_, err = svc.AdjustStock(ctx, testScope, serviceID, 5, "delivery")
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = svc.AdjustStock(ctx, session.Scope{}, productID, 1, "delivery")
	require.ErrorIs(t, err, session.ErrSessionInvalid)
}

func TestAddCreditPaymentFlipsSaleWhenSettled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sale := recordCreditSale(t, svc, "cust_1", 500)

	payment, err := svc.AddCreditPayment(ctx, testScope, sale.ID, 200, PaymentCash)
	require.NoError(t, err)
	require.Equal(t, payment.ID, payment.PaymentID)
	require.Equal(t, SaleStatusUnpaid, getTyped[Sale](t, svc, KindSales, sale.ID).Status)

	_, err = svc.AddCreditPayment(ctx, testScope, sale.ID, 300, PaymentMobileMoney)
	require.NoError(t, err)
	require.Equal(t, SaleStatusPaid, getTyped[Sale](t, svc, KindSales, sale.ID).Status)
}

func TestAddCreditPaymentRejectsOverpayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sale := recordCreditSale(t, svc, "cust_1", 500)

	_, err := svc.AddCreditPayment(ctx, testScope, sale.ID, 600, PaymentCash)
	require.ErrorIs(t, err, ErrOverpayment)

	_, err = svc.AddCreditPayment(ctx, testScope, sale.ID, 400, PaymentCash)
	require.NoError(t, err)
	_, err = svc.AddCreditPayment(ctx, testScope, sale.ID, 200, PaymentCash)
	require.ErrorIs(t, err, ErrOverpayment)

	// The rejected payment left no record behind.
	docs, err := svc.List(ctx, testScope, KindCreditPayments)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestAddCreditPaymentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sale := recordCreditSale(t, svc, "cust_1", 500)

	_, err := svc.AddCreditPayment(ctx, testScope, sale.ID, 0, PaymentCash)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.AddCreditPayment(ctx, testScope, sale.ID, 100, PaymentCredit)
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = svc.AddCreditPayment(ctx, testScope, "sale_missing", 100, PaymentCash)
	require.ErrorIs(t, err, ErrEntityNotFound)
}

func TestSettleCustomerCreditOldestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := recordCreditSale(t, svc, "cust_1", 300)
	second := recordCreditSale(t, svc, "cust_1", 200)
	recordCreditSale(t, svc, "cust_2", 999)

	allocations, err := svc.SettleCustomerCredit(ctx, testScope, "cust_1", 400, PaymentCash)
	require.NoError(t, err)
	require.Equal(t, []Allocation{
		{SaleID: first.ID, Amount: 300},
		{SaleID: second.ID, Amount: 100},
	}, allocations)

	require.Equal(t, SaleStatusPaid, getTyped[Sale](t, svc, KindSales, first.ID).Status)
	require.Equal(t, SaleStatusUnpaid, getTyped[Sale](t, svc, KindSales, second.ID).Status)

	// Settling the remainder closes the second sale too.
	allocations, err = svc.SettleCustomerCredit(ctx, testScope, "cust_1", 100, PaymentCash)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{SaleID: second.ID, Amount: 100}}, allocations)
	require.Equal(t, SaleStatusPaid, getTyped[Sale](t, svc, KindSales, second.ID).Status)
}

func TestSettleCustomerCreditRejectsOverpayment(t *testing.T) {
	svc, _ := newTestService(t)

	recordCreditSale(t, svc, "cust_1", 300)

	_, err := svc.SettleCustomerCredit(context.Background(), testScope, "cust_1", 500, PaymentCash)
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestDeleteSupplierUnlinksProducts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	supplierID, err := svc.Create(ctx, testScope, KindSuppliers, Supplier{Name: "Acme Wholesale"})
	require.NoError(t, err)
	linked, err := svc.Create(ctx, testScope, KindProducts, Product{
		Name: "Rice", Stock: 10, Type: ProductTypeProduct, SupplierID: supplierID,
	})
	require.NoError(t, err)
	unlinked := createProduct(t, svc, testScope, "Oil", 5, ProductTypeProduct)

	require.NoError(t, svc.DeleteSupplier(ctx, testScope, supplierID))

	supplier := getTyped[Supplier](t, svc, KindSuppliers, supplierID)
	require.True(t, supplier.Deleted)

	// The product survives with the reference cleared and goes back to
	// pending so the unlink syncs.
	product := getTyped[Product](t, svc, KindProducts, linked)
	require.Empty(t, product.SupplierID)
	require.False(t, product.Deleted)
	require.Equal(t, SyncPending, product.SyncStatus)
	require.Equal(t, "Oil", getTyped[Product](t, svc, KindProducts, unlinked).Name)
}

func TestDeleteCustomerUnlinksSales(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	customerID, err := svc.Create(ctx, testScope, KindCustomers, Customer{Name: "Ama Mensah"})
	require.NoError(t, err)
	sale := recordCreditSale(t, svc, customerID, 100)

	require.NoError(t, svc.DeleteCustomer(ctx, testScope, customerID))

	require.True(t, getTyped[Customer](t, svc, KindCustomers, customerID).Deleted)
	require.Empty(t, getTyped[Sale](t, svc, KindSales, sale.ID).CustomerID)
}
