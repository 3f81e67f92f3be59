package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devxankit/neargud-sub001/internal/order"
	"github.com/devxankit/neargud-sub001/internal/store"
)

var (
	testVendorA = order.Actor{ID: "vendor-a", Role: order.RoleVendor}
	testAdmin   = order.Actor{ID: "admin-1", Role: order.RoleAdmin}
)

// buildOrder assembles a valid two-vendor order document in memory. The
// store is responsible only for persisting it; all domain rules were
// already applied.
func buildOrder(t *testing.T, customerID string) *order.Order {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &order.Order{
		ID:            uuid.NewString(),
		OrderCode:     fmt.Sprintf("ORD-%d", time.Now().UnixNano()),
		CustomerID:    customerID,
		PaymentMethod: "card",
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusPending,
		ShippingAddress: order.Address{
			Line1: "1 Main St", City: "Pune", Country: "IN",
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	slices := []struct {
		vendorID string
		items    []order.LineItem
	}{
		{"vendor-a", []order.LineItem{{ProductID: "p1", Name: "Lamp", Price: decimal.NewFromInt(100), Quantity: 1}}},
		{"vendor-b", []order.LineItem{{ProductID: "p2", Name: "Mug", Price: decimal.NewFromInt(25), Quantity: 2}}},
	}

	o.Subtotal = decimal.Zero
	o.Shipping = decimal.Zero
	o.Tax = decimal.Zero
	o.Discount = decimal.Zero
	commissionRate := decimal.NewFromFloat(0.10)
	for _, s := range slices {
		fin, err := order.ComputeSlice(s.items, decimal.Zero, decimal.Zero, decimal.Zero, commissionRate)
		if err != nil {
			t.Fatalf("Compute slice: %v", err)
		}
		o.VendorItems = append(o.VendorItems, order.VendorSlice{
			VendorID:        s.vendorID,
			Items:           s.items,
			SliceFinancials: fin,
			Status:          order.StatusPending,
		})
		o.Subtotal = o.Subtotal.Add(fin.Subtotal)
	}
	o.Total = o.Subtotal

	o.StatusHistory = []order.StatusEntry{{
		Status: order.StatusPending, Timestamp: now, ChangedBy: "system", Role: order.RoleSystem,
	}}

	if err := o.CheckInvariants(); err != nil {
		t.Fatalf("Invariant check: %v", err)
	}
	return o
}

func TestOrderRoundtrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(db)

	o := buildOrder(t, "cust-1")
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("Create order: %v", err)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}

	if got.OrderCode != o.OrderCode {
		t.Errorf("Expected order code %s, got %s", o.OrderCode, got.OrderCode)
	}
	if got.Status != order.StatusPending {
		t.Errorf("Expected status pending, got %s", got.Status)
	}
	if !got.Total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected total 150, got %s", got.Total)
	}
	if len(got.VendorItems) != 2 {
		t.Fatalf("Expected 2 vendor slices, got %d", len(got.VendorItems))
	}
	if !got.VendorItems[0].VendorEarnings.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Expected vendor-a earnings 90, got %s", got.VendorItems[0].VendorEarnings)
	}
	if len(got.StatusHistory) != 1 {
		t.Errorf("Expected 1 history entry, got %d", len(got.StatusHistory))
	}
	if got.Version != 1 {
		t.Errorf("Expected version 1, got %d", got.Version)
	}
	if got.ShippingAddress.City != "Pune" {
		t.Errorf("Expected shipping city Pune, got %s", got.ShippingAddress.City)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s := store.New(db)

	_, err := s.GetOrder(context.Background(), uuid.NewString())
	if !errors.Is(err, order.ErrNotFound) {
		t.Errorf("Expected not found, got: %v", err)
	}
}

func TestUpdateOrderPersistsTransition(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(db)

	o := buildOrder(t, "cust-1")
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if err := o.ApplyTransition("vendor-a", order.StatusProcessing, testVendorA, "packing", time.Now().UTC()); err != nil {
		t.Fatalf("Apply transition: %v", err)
	}
	if err := s.UpdateOrder(ctx, o, 1); err != nil {
		t.Fatalf("Update order: %v", err)
	}
	if o.Version != 2 {
		t.Errorf("Expected in-memory version bumped to 2, got %d", o.Version)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}

	slice, err := got.Slice("vendor-a")
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if slice.Status != order.StatusProcessing {
		t.Errorf("Expected slice status processing, got %s", slice.Status)
	}
	if len(got.StatusHistory) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(got.StatusHistory))
	}
	last := got.StatusHistory[1]
	if last.Status != order.StatusProcessing || last.ChangedBy != "vendor-a" {
		t.Errorf("Unexpected last history entry: %+v", last)
	}
	if got.Version != 2 {
		t.Errorf("Expected stored version 2, got %d", got.Version)
	}
}

func TestUpdateOrderStaleVersionConflicts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(db)

	o := buildOrder(t, "cust-1")
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if err := o.ApplyTransition("vendor-a", order.StatusProcessing, testVendorA, "", time.Now().UTC()); err != nil {
		t.Fatalf("Apply transition: %v", err)
	}
	if err := s.UpdateOrder(ctx, o, 1); err != nil {
		t.Fatalf("First update: %v", err)
	}

	// Second write against the already-consumed version must lose.
	err := s.UpdateOrder(ctx, o, 1)
	if !errors.Is(err, order.ErrConflict) {
		t.Errorf("Expected conflict, got: %v", err)
	}
}

func TestConcurrentUpdatesOneWinner(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(db)

	o := buildOrder(t, "cust-1")
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("Create order: %v", err)
	}

	concurrency := 5
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mine, err := s.GetOrder(ctx, o.ID)
			if err != nil {
				results <- err
				return
			}
			if err := mine.ApplyTransition("vendor-a", order.StatusProcessing, testAdmin, "", time.Now().UTC()); err != nil {
				results <- err
				return
			}
			results <- s.UpdateOrder(ctx, mine, mine.Version)
		}()
	}

	wg.Wait()
	close(results)

	winners, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, order.ErrConflict):
			conflicts++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
	if winners+conflicts != concurrency {
		t.Errorf("Expected %d total outcomes, got %d winners + %d conflicts", concurrency, winners, conflicts)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Expected version 2 after single winning write, got %d", got.Version)
	}
	if len(got.StatusHistory) != 2 {
		t.Errorf("Expected exactly 2 history entries, got %d", len(got.StatusHistory))
	}
}

func TestListOrdersByVendorCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(db)

	total := 15
	for i := 0; i < total; i++ {
		o := buildOrder(t, "cust-1")
		// Spread created_at so the keyset ordering is deterministic.
		o.CreatedAt = o.CreatedAt.Add(time.Duration(i) * time.Millisecond)
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}

	page1, err := s.ListOrdersByVendor(ctx, "vendor-a", store.ListOrdersFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	orders1, ok := page1.Items.([]order.Order)
	if !ok {
		t.Fatalf("Unexpected items type %T", page1.Items)
	}
	if len(orders1) != 10 {
		t.Errorf("Expected 10 orders on page 1, got %d", len(orders1))
	}
	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}
	for i := 1; i < len(orders1); i++ {
		if orders1[i].CreatedAt.After(orders1[i-1].CreatedAt) {
			t.Errorf("Orders not in descending created_at order at index %d", i)
		}
	}

	page2, err := s.ListOrdersByVendor(ctx, "vendor-a", store.ListOrdersFilter{Limit: 10, Cursor: page1.NextCursor})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	orders2 := page2.Items.([]order.Order)
	if len(orders2) != total-10 {
		t.Errorf("Expected %d orders on page 2, got %d", total-10, len(orders2))
	}
	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}

	seen := make(map[string]bool)
	for _, o := range append(orders1, orders2...) {
		if seen[o.ID] {
			t.Errorf("Order %s appeared on both pages", o.ID)
		}
		seen[o.ID] = true
	}

	// A vendor with no slices sees nothing.
	empty, err := s.ListOrdersByVendor(ctx, "vendor-z", store.ListOrdersFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List for unknown vendor: %v", err)
	}
	if orders, ok := empty.Items.([]order.Order); ok && len(orders) != 0 {
		t.Errorf("Expected no orders for unknown vendor, got %d", len(orders))
	}
}

func TestListOrdersByVendorStatusFilter(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(db)

	pending := buildOrder(t, "cust-1")
	if err := s.CreateOrder(ctx, pending); err != nil {
		t.Fatalf("Create pending order: %v", err)
	}

	processing := buildOrder(t, "cust-1")
	processing.CreatedAt = processing.CreatedAt.Add(time.Millisecond)
	if err := s.CreateOrder(ctx, processing); err != nil {
		t.Fatalf("Create second order: %v", err)
	}
	now := time.Now().UTC()
	for _, v := range []string{"vendor-a", "vendor-b"} {
		if err := processing.ApplyTransition(v, order.StatusProcessing, testAdmin, "", now); err != nil {
			t.Fatalf("Apply transition: %v", err)
		}
	}
	if err := s.UpdateOrder(ctx, processing, 1); err != nil {
		t.Fatalf("Update order: %v", err)
	}

	page, err := s.ListOrdersByVendor(ctx, "vendor-a", store.ListOrdersFilter{
		Status: order.StatusProcessing,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	orders := page.Items.([]order.Order)
	if len(orders) != 1 {
		t.Fatalf("Expected 1 processing order, got %d", len(orders))
	}
	if orders[0].ID != processing.ID {
		t.Errorf("Expected order %s, got %s", processing.ID, orders[0].ID)
	}
}
