package cart

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const reconcileConcurrency = 4

// Lookup fetches the current catalog view of a product.
type Lookup func(ctx context.Context, productID int64) (Product, error)

// Shortage is a line whose quantity exceeds the stock the catalog now reports.
type Shortage struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type ReconcileReport struct {
	Removed   []int64    `json:"removed"`
	Shortages []Shortage `json:"shortages"`
}

// Reconcile refreshes name, price and stock of every line from lookup.
// Products the catalog no longer knows are dropped. Quantities are left
// alone; lines that now exceed stock are reported instead. Lookups run
// without holding the cart lock, and results are applied only if the
// active scope did not change meanwhile.
func (e *Engine) Reconcile(ctx context.Context, lookup Lookup) (ReconcileReport, error) {
	e.mu.Lock()
	key := e.key
	snapshot := e.copyItemsLocked()
	e.mu.Unlock()

	if len(snapshot) == 0 {
		return ReconcileReport{}, nil
	}

	var (
		mu      sync.Mutex
		fresh   = make(map[int64]Product, len(snapshot))
		missing = map[int64]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, item := range snapshot {
		productID := item.ProductID
		g.Go(func() error {
			product, err := lookup(gctx, productID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				fresh[productID] = product
			case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
				missing[productID] = true
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReconcileReport{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.key != key {
		return ReconcileReport{}, pkgerrors.New(pkgerrors.CodeStateConflict, "cart owner changed during reconciliation")
	}

	report := ReconcileReport{}
	next := make([]LineItem, 0, len(e.items))
	for _, item := range e.items {
		if missing[item.ProductID] {
			report.Removed = append(report.Removed, item.ProductID)
			continue
		}
		if product, ok := fresh[item.ProductID]; ok {
			if product.Name != "" {
				item.Name = product.Name
			}
			item.UnitPrice = ProductPrice(product)
			item.StockAtAdd = product.Stock
			if product.Stock > 0 && item.Quantity > product.Stock {
				report.Shortages = append(report.Shortages, Shortage{
					ProductID: item.ProductID,
					Name:      item.Name,
					Requested: item.Quantity,
					Available: product.Stock,
				})
			}
		}
		next = append(next, item)
	}

	if err := e.commitLocked(ctx, next); err != nil {
		return ReconcileReport{}, err
	}
	return report, nil
}
