package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

func TestCartAddItemUsesCatalogProduct(t *testing.T) {
	dev := newDevice(t, &fakeGateway{})
	svc := newFakeCatalog(lamp)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":5,"quantity":2}`))
	rec := serve(CartAddItem(svc, logger.Nop()), dev, req, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}

	var got cartResponse
	decodeData(t, rec.Body, &got)
	if got.Total != "20.00" || got.ItemCount != 2 {
		t.Fatalf("unexpected cart %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Lamp" || got.Items[0].UnitPrice != "10.00" {
		t.Fatalf("unexpected lines %+v", got.Items)
	}
}

func TestCartAddItemDefaultsToOneUnit(t *testing.T) {
	dev := newDevice(t, &fakeGateway{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":5}`))

	rec := serve(CartAddItem(newFakeCatalog(lamp), logger.Nop()), dev, req, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if dev.Cart.ItemCount() != 1 {
		t.Fatalf("expected one unit, got %d", dev.Cart.ItemCount())
	}
}

func TestCartAddItemRefusesBeyondStock(t *testing.T) {
	dev := newDevice(t, &fakeGateway{})
	svc := newFakeCatalog(lamp)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":5,"quantity":3}`))
	if rec := serve(CartAddItem(svc, logger.Nop()), dev, first, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":5,"quantity":2}`))
	rec := serve(CartAddItem(svc, logger.Nop()), dev, second, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if dev.Cart.ItemCount() != 3 {
		t.Fatalf("cart must be unchanged, got %d units", dev.Cart.ItemCount())
	}
}

func TestCartAddItemUnknownProduct(t *testing.T) {
	dev := newDevice(t, &fakeGateway{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":99}`))

	rec := serve(CartAddItem(newFakeCatalog(lamp), logger.Nop()), dev, req, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestCartSetQuantity(t *testing.T) {
	dev := newDevice(t, &fakeGateway{})
	if err := dev.Cart.AddItem(context.Background(), cart.ProductFrom(lamp), 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	params := map[string]string{"productId": "5"}

	t.Run("above stock", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/5", strings.NewReader(`{"quantity":9}`))
		rec := serve(CartSetQuantity(logger.Nop()), dev, req, params)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
		if dev.Cart.ItemCount() != 1 {
			t.Fatalf("quantity must be unchanged")
		}
	})

	t.Run("within stock", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/5", strings.NewReader(`{"quantity":4}`))
		rec := serve(CartSetQuantity(logger.Nop()), dev, req, params)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		var got cartResponse
		decodeData(t, rec.Body, &got)
		if got.Total != "40.00" {
			t.Fatalf("unexpected total %s", got.Total)
		}
	})

	t.Run("zero removes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/5", strings.NewReader(`{"quantity":0}`))
		rec := serve(CartSetQuantity(logger.Nop()), dev, req, params)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		if dev.Cart.Contains(5) {
			t.Fatalf("expected line removed")
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/abc", strings.NewReader(`{"quantity":1}`))
		rec := serve(CartSetQuantity(logger.Nop()), dev, req, map[string]string{"productId": "abc"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})
}

func TestCartRemoveAndClear(t *testing.T) {
	dev := newDevice(t, &fakeGateway{})
	ctx := context.Background()
	if err := dev.Cart.AddItem(ctx, cart.ProductFrom(lamp), 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := dev.Cart.AddItem(ctx, cart.Product{ID: 6, Name: "Desk", Price: "80"}, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/5", nil)
	rec := serve(CartRemoveItem(logger.Nop()), dev, req, map[string]string{"productId": "5"})
	if rec.Code != http.StatusOK || dev.Cart.Contains(5) {
		t.Fatalf("expected lamp removed, status %d", rec.Code)
	}

	rec = serve(CartClear(logger.Nop()), dev, httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var got cartResponse
	decodeData(t, rec.Body, &got)
	if got.ItemCount != 0 || got.Total != "0.00" || len(got.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", got)
	}
}

func TestCartReconcileRefreshesAndDropsProducts(t *testing.T) {
	dev := newDevice(t, &fakeGateway{})
	ctx := context.Background()
	if err := dev.Cart.AddItem(ctx, cart.ProductFrom(lamp), 3); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := dev.Cart.AddItem(ctx, cart.Product{ID: 6, Name: "Desk", Price: "80"}, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}

	repriced := gateway.Product{ID: 5, Name: "Lamp XL", Price: types.ParseMoney("12.00"), Stock: 2}
	rec := serve(CartReconcile(newFakeCatalog(repriced), logger.Nop()), dev, httptest.NewRequest(http.MethodPost, "/api/v1/cart/reconcile", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var got reconcileResponse
	decodeData(t, rec.Body, &got)
	if len(got.Report.Removed) != 1 || got.Report.Removed[0] != 6 {
		t.Fatalf("expected desk removed, got %+v", got.Report.Removed)
	}
	if len(got.Report.Shortages) != 1 || got.Report.Shortages[0].Available != 2 {
		t.Fatalf("expected lamp shortage, got %+v", got.Report.Shortages)
	}
	if got.Cart.Total != "36.00" || got.Cart.Items[0].Name != "Lamp XL" {
		t.Fatalf("unexpected cart %+v", got.Cart)
	}
}
