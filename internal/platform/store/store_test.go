package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var testProducts = Collection{
	Table: "products",
	Indexed: map[string]string{
		"name":        "name",
		"barcode":     "barcode",
		"supplier_id": "supplierId",
	},
}

var testSales = Collection{
	Table: "sales",
	Indexed: map[string]string{
		"customer_id": "customerId",
		"status":      "status",
	},
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "kess.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})
	return st
}

func productDoc(id, companyID, posID, name string) Doc {
	return Doc{
		"id":         id,
		"companyId":  companyID,
		"posId":      posID,
		"createdAt":  "2026-08-28T10:00:00.000Z",
		"updatedAt":  "2026-08-28T10:00:00.000Z",
		"syncStatus": "pending",
		"name":       name,
		"price":      10.0,
		"stock":      5.0,
	}
}

func TestOpenMigratesToCurrentVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kess.db")

	st, err := Open(path)
	require.NoError(t, err)
	version, err := st.schemaVersion()
	require.NoError(t, err)
	require.Equal(t, currentSchemaVersion, version)
	require.NoError(t, st.Close())

	// Reopening an already-migrated database must be a no-op.
	st, err = Open(path)
	require.NoError(t, err)
	version, err = st.schemaVersion()
	require.NoError(t, err)
	require.Equal(t, currentSchemaVersion, version)
	require.NoError(t, st.Close())
}

func TestInsertGetPatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	doc := productDoc("prod_1", "comp_a", "pos_a", "Sugar")
	doc["supplierId"] = "sup_1"
	require.NoError(t, st.Insert(ctx, testProducts, doc))

	got, err := st.Get(ctx, testProducts, "prod_1")
	require.NoError(t, err)
	require.Equal(t, "Sugar", got["name"])
	require.Equal(t, "sup_1", got["supplierId"])

	// A nil patch value removes the key entirely.
	got, err = st.Patch(ctx, testProducts, "prod_1", Doc{"stock": 3.0, "supplierId": nil})
	require.NoError(t, err)
	require.Equal(t, 3.0, got["stock"])
	_, ok := got["supplierId"]
	require.False(t, ok)

	got, err = st.Get(ctx, testProducts, "prod_1")
	require.NoError(t, err)
	require.Equal(t, 3.0, got["stock"])
	_, ok = got["supplierId"]
	require.False(t, ok)

	_, err = st.Get(ctx, testProducts, "prod_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMissingRecord(t *testing.T) {
	st := newTestStore(t)
	doc := productDoc("prod_ghost", "comp_a", "pos_a", "Ghost")
	require.ErrorIs(t, st.Update(context.Background(), testProducts, doc), ErrNotFound)
}

func TestListScopeRequired(t *testing.T) {
	st := newTestStore(t)
	_, err := st.List(context.Background(), testProducts, Query{CompanyID: "comp_a"})
	require.Error(t, err)
}

func TestListFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := productDoc("prod_a", "comp_a", "pos_a", "Rice")
	b := productDoc("prod_b", "comp_a", "pos_a", "Oil")
	b["syncStatus"] = "synced"
	c := productDoc("prod_c", "comp_a", "pos_a", "Salt")
	c["_deleted"] = true
	other := productDoc("prod_d", "comp_b", "pos_b", "Rice")
	for _, doc := range []Doc{a, b, c, other} {
		require.NoError(t, st.Insert(ctx, testProducts, doc))
	}

	docs, err := st.List(ctx, testProducts, Query{CompanyID: "comp_a", PosID: "pos_a"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	docs, err = st.List(ctx, testProducts, Query{CompanyID: "comp_a", PosID: "pos_a", IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	docs, err = st.List(ctx, testProducts, Query{CompanyID: "comp_a", PosID: "pos_a", PendingOnly: true, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	docs, err = st.List(ctx, testProducts, Query{CompanyID: "comp_a", PosID: "pos_a", Where: map[string]any{"name": "Rice"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "prod_a", docs[0]["id"])

	_, err = st.List(ctx, testProducts, Query{CompanyID: "comp_a", PosID: "pos_a", Where: map[string]any{"doc": "x"}})
	require.Error(t, err)
}

func TestListOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := productDoc("prod_1", "comp_a", "pos_a", "First")
	first["createdAt"] = "2026-08-28T09:00:00.000Z"
	second := productDoc("prod_2", "comp_a", "pos_a", "Second")
	second["createdAt"] = "2026-08-28T11:00:00.000Z"
	require.NoError(t, st.Insert(ctx, testProducts, second))
	require.NoError(t, st.Insert(ctx, testProducts, first))

	docs, err := st.List(ctx, testProducts, Query{CompanyID: "comp_a", PosID: "pos_a", OrderBy: "created_at"})
	require.NoError(t, err)
	require.Equal(t, "prod_1", docs[0]["id"])
	require.Equal(t, "prod_2", docs[1]["id"])

	docs, err = st.List(ctx, testProducts, Query{CompanyID: "comp_a", PosID: "pos_a", OrderBy: "created_at", Desc: true})
	require.NoError(t, err)
	require.Equal(t, "prod_2", docs[0]["id"])
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testProducts, productDoc("prod_keep", "comp_a", "pos_a", "Keep")))

	boom := context.DeadlineExceeded
	err := st.WithTx(ctx, func(tx *Tx) error {
		sale := Doc{
			"id": "sale_1", "companyId": "comp_a", "posId": "pos_a",
			"createdAt": "2026-08-28T10:00:00.000Z", "updatedAt": "2026-08-28T10:00:00.000Z",
			"syncStatus": "pending", "status": "paid",
		}
		if err := tx.Insert(ctx, testSales, sale); err != nil {
			return err
		}
		if _, err := tx.Patch(ctx, testProducts, "prod_keep", Doc{"stock": 0.0}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Neither table may show the aborted writes.
	_, err = st.Get(ctx, testSales, "sale_1")
	require.ErrorIs(t, err, ErrNotFound)
	doc, err := st.Get(ctx, testProducts, "prod_keep")
	require.NoError(t, err)
	require.Equal(t, 5.0, doc["stock"])
}

func TestWithTxPublishesAfterCommit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sub := st.Subscribe("products", "sales")
	defer sub.Close()

	err := st.WithTx(ctx, func(tx *Tx) error {
		if err := tx.Insert(ctx, testProducts, productDoc("prod_1", "comp_a", "pos_a", "Rice")); err != nil {
			return err
		}
		sale := Doc{
			"id": "sale_1", "companyId": "comp_a", "posId": "pos_a",
			"createdAt": "2026-08-28T10:00:00.000Z", "updatedAt": "2026-08-28T10:00:00.000Z",
			"syncStatus": "pending", "status": "paid",
		}
		return tx.Insert(ctx, testSales, sale)
	})
	require.NoError(t, err)

	select {
	case tables := <-sub.C:
		require.ElementsMatch(t, []string{"products", "sales"}, tables)
	default:
		t.Fatal("expected a change notification after commit")
	}
}

func TestBrokerCoalescesAndFilters(t *testing.T) {
	broker := NewBroker()

	all := broker.Subscribe()
	defer all.Close()
	salesOnly := broker.Subscribe("sales")
	defer salesOnly.Close()

	broker.Publish([]string{"products"})
	broker.Publish([]string{"products"})

	// One queued notification is enough; the second publish coalesces.
	select {
	case <-all.C:
	default:
		t.Fatal("expected a notification")
	}
	select {
	case <-all.C:
		t.Fatal("expected coalesced publishes to queue only once")
	default:
	}

	select {
	case <-salesOnly.C:
		t.Fatal("sales subscriber must not see product changes")
	default:
	}

	broker.Publish([]string{"sales", "products"})
	select {
	case tables := <-salesOnly.C:
		require.Contains(t, tables, "sales")
	default:
		t.Fatal("expected sales notification")
	}
}
