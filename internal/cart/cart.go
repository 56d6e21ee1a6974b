package cart

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storage"
	"github.com/angelmondragon/storefront/pkg/types"
)

const keyPrefix = "cartItems_"

// Product is what a caller knows about a product when adding it. Price is
// raw upstream text; anything non-numeric counts as zero.
type Product struct {
	ID    int64
	Name  string
	Price string
	Stock int
}

// ProductFrom adapts a catalog product.
func ProductFrom(p gateway.Product) Product {
	return Product{ID: p.ID, Name: p.Name, Price: p.Price.String(), Stock: p.Stock}
}

type LineItem struct {
	ProductID  int64           `json:"productId"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Quantity   int             `json:"quantity"`
	StockAtAdd int             `json:"stockAtAdd"`
}

// ProductPrice coerces the product's raw price, yielding zero when it is not a number.
func ProductPrice(p Product) decimal.Decimal {
	return types.ParseMoney(p.Price).Decimal
}

// Subtotal is unitPrice × quantity at full precision.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Key returns the storage key that holds identity's cart.
func Key(identity session.Identity) string {
	return keyPrefix + identity.Scope()
}

// Engine is the authoritative in-memory cart of one device. Every mutation
// writes the full snapshot to the key of the active identity before it
// returns; an empty cart is stored as no key at all.
type Engine struct {
	store storage.Store
	logg  *logger.Logger

	mu    sync.Mutex
	key   string
	items []LineItem
}

// New loads the cart that belongs to identity.
func New(ctx context.Context, store storage.Store, identity session.Identity, logg *logger.Logger) (*Engine, error) {
	e := &Engine{store: store, logg: logg}
	if err := e.Rescope(ctx, identity); err != nil {
		return nil, err
	}
	return e, nil
}

// Rescope swaps the active cart for the one stored under identity. Carts
// are never merged across identities. A mutation already holding the lock
// completes against the old scope first.
func (e *Engine) Rescope(ctx context.Context, identity session.Identity) error {
	key := Key(identity)

	e.mu.Lock()
	items, err := e.load(ctx, key)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.key = key
	e.items = items
	e.mu.Unlock()

	e.logg.Debug(e.logg.WithField(ctx, "cart_key", key), "cart.rescoped")
	return nil
}

// Listener adapts Rescope to session notifications.
func (e *Engine) Listener() session.Listener {
	return func(ctx context.Context, identity session.Identity) {
		if err := e.Rescope(ctx, identity); err != nil {
			e.logg.Error(ctx, "cart.rescope_failed", err)
		}
	}
}

func (e *Engine) load(ctx context.Context, key string) ([]LineItem, error) {
	raw, found, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if !found {
		return nil, nil
	}
	var stored []LineItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "cart_key", key), "cart.load.unreadable")
		return nil, nil
	}
	items := make([]LineItem, 0, len(stored))
	seen := map[int64]bool{}
	for _, item := range stored {
		if item.ProductID <= 0 || item.Quantity < 1 || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		items = append(items, item)
	}
	return items, nil
}

// AddItem increments the line for product or appends a new one. A
// quantity below one adds a single unit.
func (e *Engine) AddItem(ctx context.Context, product Product, quantity int) error {
	if product.ID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		quantity = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.copyItemsLocked()
	if idx := indexOf(next, product.ID); idx >= 0 {
		next[idx].Quantity += quantity
		if product.Stock > 0 {
			next[idx].StockAtAdd = product.Stock
		}
	} else {
		next = append(next, LineItem{
			ProductID:  product.ID,
			Name:       product.Name,
			UnitPrice:  ProductPrice(product),
			Quantity:   quantity,
			StockAtAdd: product.Stock,
		})
	}
	return e.commitLocked(ctx, next)
}

// RemoveItem drops the line for productID. Absent products are ignored.
func (e *Engine) RemoveItem(ctx context.Context, productID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := indexOf(e.items, productID)
	if idx < 0 {
		return nil
	}
	next := e.copyItemsLocked()
	next = append(next[:idx], next[idx+1:]...)
	return e.commitLocked(ctx, next)
}

// SetQuantity replaces the quantity verbatim; zero or less removes the
// line. No upper bound is applied here, see CheckQuantity.
func (e *Engine) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return e.RemoveItem(ctx, productID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := indexOf(e.items, productID)
	if idx < 0 {
		return nil
	}
	next := e.copyItemsLocked()
	next[idx].Quantity = quantity
	return e.commitLocked(ctx, next)
}

// Clear empties the cart and removes its stored record.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked(ctx, nil)
}

// RemoveOrdered takes the ordered quantities out of the cart stored under
// key. Lines added or raised after the order was taken stay behind, and the
// key is removed only when nothing is left. When key is no longer the
// active scope the stored record is updated without touching the active cart.
func (e *Engine) RemoveOrdered(ctx context.Context, key string, ordered []LineItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.key == key {
		return e.commitLocked(ctx, subtractLines(e.copyItemsLocked(), ordered))
	}
	items, err := e.load(ctx, key)
	if err != nil {
		return err
	}
	return e.persist(ctx, key, subtractLines(items, ordered))
}

func subtractLines(items []LineItem, ordered []LineItem) []LineItem {
	for _, line := range ordered {
		idx := indexOf(items, line.ProductID)
		if idx < 0 {
			continue
		}
		if left := items[idx].Quantity - line.Quantity; left > 0 {
			items[idx].Quantity = left
		} else {
			items = append(items[:idx], items[idx+1:]...)
		}
	}
	return items
}

func (e *Engine) Total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := decimal.Zero
	for _, item := range e.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, item := range e.items {
		count += item.Quantity
	}
	return count
}

func (e *Engine) Contains(productID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return indexOf(e.items, productID) >= 0
}

// Items returns a copy of the current lines in insertion order.
func (e *Engine) Items() []LineItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyItemsLocked()
}

// Key reports the storage key of the active scope.
func (e *Engine) Key() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// Snapshot returns the active key and a copy of its lines read under one lock.
func (e *Engine) Snapshot() (string, []LineItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key, e.copyItemsLocked()
}

// CheckQuantity rejects a quantity the last known stock cannot cover.
func (e *Engine) CheckQuantity(productID int64, quantity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := indexOf(e.items, productID)
	if idx < 0 {
		if quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
	}
	return e.items[idx].CheckQuantity(quantity)
}

// CheckQuantity rejects quantity when it is below one or above the line's
// last known stock. Lines whose stock was never reported have no upper bound.
func (l LineItem) CheckQuantity(quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if l.StockAtAdd > 0 && quantity > l.StockAtAdd {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds available stock").
			WithDetails(map[string]any{
				"product_id": l.ProductID,
				"available":  l.StockAtAdd,
				"requested":  quantity,
			})
	}
	return nil
}

func (e *Engine) copyItemsLocked() []LineItem {
	if len(e.items) == 0 {
		return nil
	}
	out := make([]LineItem, len(e.items))
	copy(out, e.items)
	return out
}

// commitLocked persists next and only then makes it the in-memory state.
func (e *Engine) commitLocked(ctx context.Context, next []LineItem) error {
	if err := e.persist(ctx, e.key, next); err != nil {
		return err
	}
	if len(next) == 0 {
		next = nil
	}
	e.items = next
	return nil
}

func (e *Engine) persist(ctx context.Context, key string, items []LineItem) error {
	if len(items) == 0 {
		if err := e.store.Delete(ctx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := e.store.Set(ctx, key, string(encoded)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

func indexOf(items []LineItem, productID int64) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// FormatAmount renders an amount with two fraction digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
