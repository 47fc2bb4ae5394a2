// Package pos implements the offline-first mutation core of the
// point-of-sale application: generic entity lifecycle, transactional
// domain mutators, and live tenant-scoped queries over the local store.
package pos

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kesspos/kesspos/internal/platform/store"
)

// SyncStatus tracks whether a record's latest local change has been
// acknowledged by the remote authority.
type SyncStatus string

const (
	// SyncPending means the record has unsynchronized local changes.
	SyncPending SyncStatus = "pending"
	// SyncSynced means the remote authority acknowledged the record.
	SyncSynced SyncStatus = "synced"
	// SyncError marks a record the remote rejected.
	SyncError SyncStatus = "error"
)

// Kind names a synced entity collection. The values are the wire names
// used in sync batches.
type Kind string

const (
	KindProducts       Kind = "products"
	KindSales          Kind = "sales"
	KindStockMovements Kind = "stockMovements"
	KindExpenses       Kind = "expenses"
	KindSuppliers      Kind = "suppliers"
	KindCustomers      Kind = "customers"
	KindCreditPayments Kind = "creditPayments"
)

type kindSpec struct {
	prefix     string
	collection store.Collection
}

var kindSpecs = map[Kind]kindSpec{
	KindProducts: {
		prefix: "prod",
		collection: store.Collection{
			Table: "products",
			Indexed: map[string]string{
				"name":        "name",
				"barcode":     "barcode",
				"supplier_id": "supplierId",
			},
		},
	},
	KindSales: {
		prefix: "sale",
		collection: store.Collection{
			Table: "sales",
			Indexed: map[string]string{
				"customer_id": "customerId",
				"status":      "status",
			},
		},
	},
	KindStockMovements: {
		prefix: "mov",
		collection: store.Collection{
			Table: "stock_movements",
			Indexed: map[string]string{
				"product_id": "productId",
			},
		},
	},
	KindExpenses: {
		prefix: "exp",
		collection: store.Collection{
			Table: "expenses",
			Indexed: map[string]string{
				"category": "category",
			},
		},
	},
	KindSuppliers: {
		prefix: "sup",
		collection: store.Collection{
			Table: "suppliers",
			Indexed: map[string]string{
				"name": "name",
			},
		},
	},
	KindCustomers: {
		prefix: "cust",
		collection: store.Collection{
			Table: "customers",
			Indexed: map[string]string{
				"name": "name",
			},
		},
	},
	KindCreditPayments: {
		prefix: "pay",
		collection: store.Collection{
			Table: "credit_payments",
			Indexed: map[string]string{
				"sale_id": "saleId",
			},
		},
	},
}

// Kinds lists every synced collection in a stable order. The sync engine
// iterates this when gathering pending records.
func Kinds() []Kind {
	return []Kind{
		KindProducts,
		KindSales,
		KindStockMovements,
		KindExpenses,
		KindSuppliers,
		KindCustomers,
		KindCreditPayments,
	}
}

// ParseKind validates a wire or URL kind name.
func ParseKind(name string) (Kind, error) {
	kind := Kind(name)
	if _, ok := kindSpecs[kind]; !ok {
		return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalidOperation, name)
	}
	return kind, nil
}

// Collection returns the store collection backing the kind.
func (k Kind) Collection() store.Collection {
	return kindSpecs[k].collection
}

func (k Kind) prefix() string {
	return kindSpecs[k].prefix
}

// timeLayout keeps millisecond precision and a fixed width so that
// lexicographic ordering of stored timestamps matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// newID builds a client-generated globally unique id:
// {prefix}_{unix-milli}_{random}.
func newID(kind Kind, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", kind.prefix(), now.UnixMilli(), uuid.NewString()[:8])
}

// Meta is the envelope shared by all synced entities.
type Meta struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"companyId"`
	PosID      string     `json:"posId"`
	CreatedAt  string     `json:"createdAt"`
	UpdatedAt  string     `json:"updatedAt"`
	SyncStatus SyncStatus `json:"syncStatus"`
	Deleted    bool       `json:"_deleted,omitempty"`
}

// ProductType distinguishes stocked goods from services.
type ProductType string

const (
	ProductTypeProduct ProductType = "product"
	ProductTypeService ProductType = "service"
)

// Product is a catalog entry. Services always carry zero stock and no
// barcode.
type Product struct {
	Meta
	Name       string      `json:"name"`
	Barcode    string      `json:"barcode"`
	Price      float64     `json:"price"`
	Stock      int         `json:"stock"`
	Type       ProductType `json:"type"`
	SupplierID string      `json:"supplierId,omitempty"`
}

// PaymentMethod enumerates how a sale was settled.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile_money"
	PaymentCard        PaymentMethod = "card"
	PaymentCredit      PaymentMethod = "credit"
)

// PaymentDetails carries method-specific capture data.
type PaymentDetails struct {
	Provider    string  `json:"provider,omitempty"`
	Reference   string  `json:"reference,omitempty"`
	AmountGiven float64 `json:"amountGiven,omitempty"`
	Change      float64 `json:"change,omitempty"`
}

// SaleItem is a snapshot of a product at sale time, never a live
// reference: later product edits do not rewrite history.
type SaleItem struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Price    float64     `json:"price"`
	Quantity int         `json:"quantity"`
	Type     ProductType `json:"type"`
}

// SaleStatus tracks credit settlement.
type SaleStatus string

const (
	SaleStatusPaid   SaleStatus = "paid"
	SaleStatusUnpaid SaleStatus = "unpaid"
)

// Sale is one checkout.
type Sale struct {
	Meta
	Items          []SaleItem     `json:"items"`
	Subtotal       float64        `json:"subtotal"`
	Discount       float64        `json:"discount"`
	VAT            float64        `json:"vat"`
	Total          float64        `json:"total"`
	PaymentMethod  PaymentMethod  `json:"paymentMethod"`
	PaymentDetails PaymentDetails `json:"paymentDetails"`
	Status         SaleStatus     `json:"status"`
	CustomerID     string         `json:"customerId,omitempty"`
}

// StockMovement records one stock change outside of sale processing.
// MovementID mirrors Meta.ID: it is the stable string identity used for
// synchronization, while the table's auto-increment seq stays local.
type StockMovement struct {
	Meta
	MovementID     string `json:"movementId"`
	ProductID      string `json:"productId"`
	QuantityChange int    `json:"quantityChange"`
	Reason         string `json:"reason"`
}

// Supplier is a contact record. Products reference it by id without
// ownership: deleting a supplier unlinks, never cascades.
type Supplier struct {
	Meta
	Name          string `json:"name"`
	ContactPerson string `json:"contactPerson,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
}

// Customer is a contact record referenced by credit sales.
type Customer struct {
	Meta
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// ExpenseCategory enumerates expense buckets.
type ExpenseCategory string

const (
	ExpenseRent      ExpenseCategory = "rent"
	ExpenseSalaries  ExpenseCategory = "salaries"
	ExpenseUtilities ExpenseCategory = "utilities"
	ExpenseSupplies  ExpenseCategory = "supplies"
	ExpenseTransport ExpenseCategory = "transport"
	ExpenseOther     ExpenseCategory = "other"
)

// Expense is an operating cost entry.
type Expense struct {
	Meta
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Category    ExpenseCategory `json:"category"`
}

// CreditPayment settles part of one credit sale. PaymentID mirrors
// Meta.ID as the stable sync identity.
type CreditPayment struct {
	Meta
	PaymentID     string        `json:"paymentId"`
	SaleID        string        `json:"saleId"`
	Amount        float64       `json:"amount"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

// toDoc round-trips a typed value into a store document.
func toDoc(v any) (store.Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pos: encode entity: %w", err)
	}
	var doc store.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("pos: encode entity: %w", err)
	}
	return doc, nil
}

// decodeDoc round-trips a store document into a typed value.
func decodeDoc[T any](doc store.Doc) (T, error) {
	var v T
	raw, err := json.Marshal(doc)
	if err != nil {
		return v, fmt.Errorf("pos: decode entity: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("pos: decode entity: %w", err)
	}
	return v, nil
}

// DecodeAll decodes a document list into typed values.
func DecodeAll[T any](docs []store.Doc) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := decodeDoc[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
