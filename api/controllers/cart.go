package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type cartLineResponse struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
	Stock     int    `json:"stock"`
}

type cartResponse struct {
	Items     []cartLineResponse `json:"items"`
	ItemCount int                `json:"item_count"`
	Total     string             `json:"total"`
}

func newCartResponse(engine *cart.Engine) cartResponse {
	items := engine.Items()
	lines := make([]cartLineResponse, 0, len(items))
	for _, item := range items {
		lines = append(lines, cartLineResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: cart.FormatAmount(item.UnitPrice),
			Quantity:  item.Quantity,
			Subtotal:  cart.FormatAmount(item.Subtotal()),
			Stock:     item.StockAtAdd,
		})
	}
	return cartResponse{
		Items:     lines,
		ItemCount: engine.ItemCount(),
		Total:     cart.FormatAmount(engine.Total()),
	}
}

type addItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=0"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type reconcileResponse struct {
	Report cart.ReconcileReport `json:"report"`
	Cart   cartResponse         `json:"cart"`
}

// CartFetch returns the cart of the device's active identity.
func CartFetch(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(dev.Cart))
	}
}

// CartAddItem adds a product at the catalog's current name, price and stock.
// Requests the known stock cannot cover are refused before the cart changes.
func CartAddItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity := payload.Quantity
		if quantity < 1 {
			quantity = 1
		}

		product, err := svc.GetProduct(r.Context(), dev.Session, payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if product.Stock > 0 {
			inCart := 0
			for _, item := range dev.Cart.Items() {
				if item.ProductID == product.ID {
					inCart = item.Quantity
				}
			}
			if inCart+quantity > product.Stock {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds available stock").
					WithDetails(map[string]any{
						"product_id": product.ID,
						"available":  product.Stock,
						"requested":  inCart + quantity,
					}))
				return
			}
		}

		if err := dev.Cart.AddItem(r.Context(), cart.ProductFrom(product), quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(dev.Cart))
	}
}

// CartSetQuantity replaces a line's quantity. Zero removes the line.
func CartSetQuantity(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Quantity > 0 {
			if err := dev.Cart.CheckQuantity(productID, payload.Quantity); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if err := dev.Cart.SetQuantity(r.Context(), productID, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(dev.Cart))
	}
}

func CartRemoveItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := dev.Cart.RemoveItem(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(dev.Cart))
	}
}

func CartClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := dev.Cart.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(dev.Cart))
	}
}

// CartReconcile refreshes every line from the catalog and reports what changed.
func CartReconcile(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := dev.Cart.Reconcile(r.Context(), svc.Lookup(dev.Session))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reconcileResponse{Report: report, Cart: newCartResponse(dev.Cart)})
	}
}
