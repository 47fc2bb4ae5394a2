package pos

import (
	"context"
	"errors"
	"fmt"

	"github.com/kesspos/kesspos/internal/platform/store"
	"github.com/kesspos/kesspos/internal/session"
)

// balanceEpsilon absorbs float drift when comparing currency amounts.
const balanceEpsilon = 0.01

// SaleDraft is the caller-computed input to RecordSale. Line items are
// snapshots; totals are already computed by the cart.
type SaleDraft struct {
	Items          []SaleItem
	Subtotal       float64
	Discount       float64
	VAT            float64
	Total          float64
	PaymentMethod  PaymentMethod
	PaymentDetails PaymentDetails
	CustomerID     string
}

func validPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentCash, PaymentMobileMoney, PaymentCard, PaymentCredit:
		return true
	}
	return false
}

// RecordSale persists the sale and decrements stock for every
// product-typed line item in one transaction. A missing product aborts
// everything: no partial decrement, no orphan sale.
func (s *Service) RecordSale(ctx context.Context, scope session.Scope, draft SaleDraft) (Sale, error) {
	if !scope.Valid() {
		return Sale{}, session.ErrSessionInvalid
	}
	if len(draft.Items) == 0 {
		return Sale{}, fmt.Errorf("%w: sale needs at least one line item", ErrInvalidOperation)
	}
	if !validPaymentMethod(draft.PaymentMethod) {
		return Sale{}, fmt.Errorf("%w: unknown payment method %q", ErrInvalidOperation, draft.PaymentMethod)
	}
	for _, item := range draft.Items {
		if item.Quantity <= 0 {
			return Sale{}, fmt.Errorf("%w: line item %q needs a positive quantity", ErrInvalidOperation, item.Name)
		}
	}

	status := SaleStatusPaid
	if draft.PaymentMethod == PaymentCredit {
		if draft.CustomerID == "" {
			return Sale{}, fmt.Errorf("%w: credit sales require a customer", ErrInvalidOperation)
		}
		status = SaleStatusUnpaid
	}

	now := s.clock()
	sale := Sale{
		Meta: Meta{
			ID:         newID(KindSales, now),
			CompanyID:  scope.CompanyID,
			PosID:      scope.PosID,
			CreatedAt:  formatTime(now),
			UpdatedAt:  formatTime(now),
			SyncStatus: SyncPending,
		},
		Items:          draft.Items,
		Subtotal:       draft.Subtotal,
		Discount:       draft.Discount,
		VAT:            draft.VAT,
		Total:          draft.Total,
		PaymentMethod:  draft.PaymentMethod,
		PaymentDetails: draft.PaymentDetails,
		Status:         status,
		CustomerID:     draft.CustomerID,
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		doc, err := toDoc(sale)
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, KindSales.Collection(), doc); err != nil {
			return err
		}

		for _, item := range sale.Items {
			// Services never move stock; only the snapshotted type counts.
			if item.Type != ProductTypeProduct {
				continue
			}
			product, err := s.getProduct(ctx, tx, scope, item.ID)
			if err != nil {
				return err
			}
			newStock := product.Stock - item.Quantity
			if newStock < 0 {
				return fmt.Errorf("%w: %s", ErrNegativeStock, product.Name)
			}
			if err := s.applyPatch(ctx, tx, scope, KindProducts, item.ID, store.Doc{"stock": newStock}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	s.observeMutation(KindSales, "record_sale")
	s.fireSignal()
	return sale, nil
}

// AdjustStock is the single path for all stock changes outside of sale
// processing: receiving, loss, inventory correction. Returns the new
// stock level. A zero change is a no-op, not an error.
func (s *Service) AdjustStock(ctx context.Context, scope session.Scope, productID string, quantityChange int, reason string) (int, error) {
	if !scope.Valid() {
		return 0, session.ErrSessionInvalid
	}

	var newStock int
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		product, err := s.getProduct(ctx, tx, scope, productID)
		if err != nil {
			return err
		}
		if product.Type != ProductTypeProduct {
			return fmt.Errorf("%w: cannot adjust stock of service %q", ErrInvalidOperation, product.Name)
		}

		newStock = product.Stock + quantityChange
		if quantityChange == 0 {
			return nil
		}
		if newStock < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeStock, product.Name)
		}

		if err := s.applyPatch(ctx, tx, scope, KindProducts, productID, store.Doc{"stock": newStock}); err != nil {
			return err
		}

		now := s.clock()
		movement := StockMovement{
			Meta: Meta{
				ID:         newID(KindStockMovements, now),
				CompanyID:  scope.CompanyID,
				PosID:      scope.PosID,
				CreatedAt:  formatTime(now),
				UpdatedAt:  formatTime(now),
				SyncStatus: SyncPending,
			},
			ProductID:      productID,
			QuantityChange: quantityChange,
			Reason:         reason,
		}
		movement.MovementID = movement.ID
		doc, err := toDoc(movement)
		if err != nil {
			return err
		}
		return tx.Insert(ctx, KindStockMovements.Collection(), doc)
	})
	if err != nil {
		return 0, err
	}

	if quantityChange != 0 {
		s.observeMutation(KindStockMovements, "adjust_stock")
		s.fireSignal()
	}
	return newStock, nil
}

// AddCreditPayment settles part of exactly one credit sale. Overpayment
// beyond the sale's outstanding balance is rejected here rather than
// trusted to callers. When the payments reach the sale total the sale
// flips to paid in the same transaction.
func (s *Service) AddCreditPayment(ctx context.Context, scope session.Scope, saleID string, amount float64, method PaymentMethod) (CreditPayment, error) {
	if !scope.Valid() {
		return CreditPayment{}, session.ErrSessionInvalid
	}
	if amount <= 0 {
		return CreditPayment{}, fmt.Errorf("%w: payment amount must be positive", ErrInvalidState)
	}
	if method == PaymentCredit || !validPaymentMethod(method) {
		return CreditPayment{}, fmt.Errorf("%w: payment method %q cannot settle credit", ErrInvalidOperation, method)
	}

	var payment CreditPayment
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		sale, err := s.getSale(ctx, tx, scope, saleID)
		if err != nil {
			return err
		}

		paid, err := s.paidAmount(ctx, tx, scope, saleID)
		if err != nil {
			return err
		}
		outstanding := sale.Total - paid
		if amount > outstanding+balanceEpsilon {
			return fmt.Errorf("%w: sale %s", ErrOverpayment, saleID)
		}

		now := s.clock()
		payment = CreditPayment{
			Meta: Meta{
				ID:         newID(KindCreditPayments, now),
				CompanyID:  scope.CompanyID,
				PosID:      scope.PosID,
				CreatedAt:  formatTime(now),
				UpdatedAt:  formatTime(now),
				SyncStatus: SyncPending,
			},
			SaleID:        saleID,
			Amount:        amount,
			PaymentMethod: method,
		}
		payment.PaymentID = payment.ID
		doc, err := toDoc(payment)
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, KindCreditPayments.Collection(), doc); err != nil {
			return err
		}

		if paid+amount >= sale.Total-balanceEpsilon && sale.Status != SaleStatusPaid {
			return s.applyPatch(ctx, tx, scope, KindSales, saleID, store.Doc{"status": string(SaleStatusPaid)})
		}
		return nil
	})
	if err != nil {
		return CreditPayment{}, err
	}

	s.observeMutation(KindCreditPayments, "add_credit_payment")
	s.fireSignal()
	return payment, nil
}

// Allocation reports how a lump payment was split across sales.
type Allocation struct {
	SaleID string  `json:"saleId"`
	Amount float64 `json:"amount"`
}

// SettleCustomerCredit allocates a lump payment across the customer's
// unpaid sales oldest-first, applying AddCreditPayment per sale until the
// amount is exhausted.
func (s *Service) SettleCustomerCredit(ctx context.Context, scope session.Scope, customerID string, amount float64, method PaymentMethod) ([]Allocation, error) {
	if !scope.Valid() {
		return nil, session.ErrSessionInvalid
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrInvalidState)
	}

	docs, err := s.store.List(ctx, KindSales.Collection(), store.Query{
		CompanyID: scope.CompanyID,
		PosID:     scope.PosID,
		Where:     map[string]any{"customer_id": customerID, "status": string(SaleStatusUnpaid)},
		OrderBy:   "created_at",
	})
	if err != nil {
		return nil, err
	}
	sales, err := DecodeAll[Sale](docs)
	if err != nil {
		return nil, err
	}

	type due struct {
		saleID  string
		balance float64
	}
	var dues []due
	var totalDue float64
	for _, sale := range sales {
		paid, err := s.paidAmountStore(ctx, scope, sale.ID)
		if err != nil {
			return nil, err
		}
		balance := sale.Total - paid
		if balance > balanceEpsilon {
			dues = append(dues, due{saleID: sale.ID, balance: balance})
			totalDue += balance
		}
	}
	if amount > totalDue+balanceEpsilon {
		return nil, fmt.Errorf("%w: customer %s", ErrOverpayment, customerID)
	}

	var allocations []Allocation
	remaining := amount
	for _, d := range dues {
		if remaining <= balanceEpsilon {
			break
		}
		apply := remaining
		if d.balance < apply {
			apply = d.balance
		}
		if _, err := s.AddCreditPayment(ctx, scope, d.saleID, apply, method); err != nil {
			return allocations, err
		}
		allocations = append(allocations, Allocation{SaleID: d.saleID, Amount: apply})
		remaining -= apply
	}
	return allocations, nil
}

// DeleteSupplier soft-deletes the supplier and clears the reference from
// every product pointing at it, in one transaction. References are
// non-owning: products survive, unlinked.
func (s *Service) DeleteSupplier(ctx context.Context, scope session.Scope, supplierID string) error {
	return s.deleteContact(ctx, scope, KindSuppliers, supplierID, KindProducts, "supplier_id", "supplierId", "delete_supplier")
}

// DeleteCustomer soft-deletes the customer and unlinks referencing sales.
func (s *Service) DeleteCustomer(ctx context.Context, scope session.Scope, customerID string) error {
	return s.deleteContact(ctx, scope, KindCustomers, customerID, KindSales, "customer_id", "customerId", "delete_customer")
}

func (s *Service) deleteContact(ctx context.Context, scope session.Scope, kind Kind, id string, refKind Kind, refColumn, refKey, op string) error {
	if !scope.Valid() {
		return session.ErrSessionInvalid
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := s.applyPatch(ctx, tx, scope, kind, id, store.Doc{"_deleted": true}); err != nil {
			return err
		}

		refs, err := tx.List(ctx, refKind.Collection(), store.Query{
			CompanyID: scope.CompanyID,
			PosID:     scope.PosID,
			Where:     map[string]any{refColumn: id},
		})
		if err != nil {
			return err
		}
		for _, ref := range refs {
			refID, _ := ref["id"].(string)
			if err := s.applyPatch(ctx, tx, scope, refKind, refID, store.Doc{refKey: nil}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.observeMutation(kind, op)
	s.fireSignal()
	return nil
}

func (s *Service) getProduct(ctx context.Context, tx *store.Tx, scope session.Scope, id string) (Product, error) {
	doc, err := tx.Get(ctx, KindProducts.Collection(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Product{}, fmt.Errorf("%w: product %s", ErrEntityNotFound, id)
		}
		return Product{}, err
	}
	if !scopeMatches(doc, scope) || docBoolValue(doc, "_deleted") {
		return Product{}, fmt.Errorf("%w: product %s", ErrEntityNotFound, id)
	}
	return decodeDoc[Product](doc)
}

func (s *Service) getSale(ctx context.Context, tx *store.Tx, scope session.Scope, id string) (Sale, error) {
	doc, err := tx.Get(ctx, KindSales.Collection(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Sale{}, fmt.Errorf("%w: sale %s", ErrEntityNotFound, id)
		}
		return Sale{}, err
	}
	if !scopeMatches(doc, scope) || docBoolValue(doc, "_deleted") {
		return Sale{}, fmt.Errorf("%w: sale %s", ErrEntityNotFound, id)
	}
	return decodeDoc[Sale](doc)
}

func (s *Service) paidAmount(ctx context.Context, tx *store.Tx, scope session.Scope, saleID string) (float64, error) {
	docs, err := tx.List(ctx, KindCreditPayments.Collection(), store.Query{
		CompanyID: scope.CompanyID,
		PosID:     scope.PosID,
		Where:     map[string]any{"sale_id": saleID},
	})
	if err != nil {
		return 0, err
	}
	return sumPayments(docs), nil
}

func (s *Service) paidAmountStore(ctx context.Context, scope session.Scope, saleID string) (float64, error) {
	docs, err := s.store.List(ctx, KindCreditPayments.Collection(), store.Query{
		CompanyID: scope.CompanyID,
		PosID:     scope.PosID,
		Where:     map[string]any{"sale_id": saleID},
	})
	if err != nil {
		return 0, err
	}
	return sumPayments(docs), nil
}

func sumPayments(docs []store.Doc) float64 {
	var total float64
	for _, doc := range docs {
		if amount, ok := doc["amount"].(float64); ok {
			total += amount
		}
	}
	return total
}

func docBoolValue(doc store.Doc, key string) bool {
	v, _ := doc[key].(bool)
	return v
}
