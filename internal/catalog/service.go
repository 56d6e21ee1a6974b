package catalog

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// Gateway is the catalog slice of the storefront API.
type Gateway interface {
	ListProducts(ctx context.Context, token string, filter gateway.ProductFilter) ([]gateway.Product, error)
	GetProduct(ctx context.Context, token string, id int64) (gateway.Product, error)
	Recommendations(ctx context.Context, token string, id int64) ([]gateway.Product, error)
	CreateProduct(ctx context.Context, token string, in gateway.ProductInput) (gateway.Product, error)
	UpdateProduct(ctx context.Context, token string, id int64, in gateway.ProductInput) (gateway.Product, error)
	PatchProduct(ctx context.Context, token string, id int64, patch gateway.ProductPatch) (gateway.Product, error)
	DeleteProduct(ctx context.Context, token string, id int64) error

	ListCategories(ctx context.Context, token string) ([]gateway.Category, error)
	GetCategory(ctx context.Context, token string, id int64) (gateway.Category, error)
	CreateCategory(ctx context.Context, token string, in gateway.CategoryInput) (gateway.Category, error)
	UpdateCategory(ctx context.Context, token string, id int64, in gateway.CategoryInput) (gateway.Category, error)
	PatchCategory(ctx context.Context, token string, id int64, patch gateway.CategoryPatch) (gateway.Category, error)
	DeleteCategory(ctx context.Context, token string, id int64) error
}

// Service exposes the shop read path and the admin catalog writes.
type Service interface {
	ListProducts(ctx context.Context, sess session.Current, filter gateway.ProductFilter) ([]gateway.Product, error)
	GetProduct(ctx context.Context, sess session.Current, id int64) (gateway.Product, error)
	Recommendations(ctx context.Context, sess session.Current, id int64) ([]gateway.Product, error)
	ListCategories(ctx context.Context, sess session.Current) ([]gateway.Category, error)
	GetCategory(ctx context.Context, sess session.Current, id int64) (gateway.Category, error)

	CreateProduct(ctx context.Context, sess session.Current, in gateway.ProductInput) (gateway.Product, error)
	UpdateProduct(ctx context.Context, sess session.Current, id int64, in gateway.ProductInput) (gateway.Product, error)
	PatchProduct(ctx context.Context, sess session.Current, id int64, patch gateway.ProductPatch) (gateway.Product, error)
	DeleteProduct(ctx context.Context, sess session.Current, id int64) error
	CreateCategory(ctx context.Context, sess session.Current, in gateway.CategoryInput) (gateway.Category, error)
	UpdateCategory(ctx context.Context, sess session.Current, id int64, in gateway.CategoryInput) (gateway.Category, error)
	PatchCategory(ctx context.Context, sess session.Current, id int64, patch gateway.CategoryPatch) (gateway.Category, error)
	DeleteCategory(ctx context.Context, sess session.Current, id int64) error

	// Lookup adapts GetProduct for cart reconciliation.
	Lookup(sess session.Current) cart.Lookup
}

type service struct {
	gw   Gateway
	logg *logger.Logger
}

func NewService(gw Gateway, logg *logger.Logger) (Service, error) {
	if gw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog gateway required")
	}
	return &service{gw: gw, logg: logg}, nil
}

func (s *service) ListProducts(ctx context.Context, sess session.Current, filter gateway.ProductFilter) ([]gateway.Product, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	token := sess.Snapshot().Token
	products, err := s.gw.ListProducts(ctx, token, filter)
	return products, s.settle(ctx, sess, token, err)
}

func (s *service) GetProduct(ctx context.Context, sess session.Current, id int64) (gateway.Product, error) {
	if err := validateID(id, "product"); err != nil {
		return gateway.Product{}, err
	}
	token := sess.Snapshot().Token
	product, err := s.gw.GetProduct(ctx, token, id)
	return product, s.settle(ctx, sess, token, err)
}

func (s *service) Recommendations(ctx context.Context, sess session.Current, id int64) ([]gateway.Product, error) {
	if err := validateID(id, "product"); err != nil {
		return nil, err
	}
	token := sess.Snapshot().Token
	products, err := s.gw.Recommendations(ctx, token, id)
	return products, s.settle(ctx, sess, token, err)
}

func (s *service) ListCategories(ctx context.Context, sess session.Current) ([]gateway.Category, error) {
	token := sess.Snapshot().Token
	categories, err := s.gw.ListCategories(ctx, token)
	return categories, s.settle(ctx, sess, token, err)
}

func (s *service) GetCategory(ctx context.Context, sess session.Current, id int64) (gateway.Category, error) {
	if err := validateID(id, "category"); err != nil {
		return gateway.Category{}, err
	}
	token := sess.Snapshot().Token
	category, err := s.gw.GetCategory(ctx, token, id)
	return category, s.settle(ctx, sess, token, err)
}

func (s *service) CreateProduct(ctx context.Context, sess session.Current, in gateway.ProductInput) (gateway.Product, error) {
	token, err := requireAdmin(sess)
	if err != nil {
		return gateway.Product{}, err
	}
	in, err = normalizeProductInput(in)
	if err != nil {
		return gateway.Product{}, err
	}
	product, err := s.gw.CreateProduct(ctx, token, in)
	if err == nil {
		s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID), "catalog.product.created")
	}
	return product, s.settle(ctx, sess, token, err)
}

func (s *service) UpdateProduct(ctx context.Context, sess session.Current, id int64, in gateway.ProductInput) (gateway.Product, error) {
	token, err := requireAdmin(sess)
	if err != nil {
		return gateway.Product{}, err
	}
	if err := validateID(id, "product"); err != nil {
		return gateway.Product{}, err
	}
	in, err = normalizeProductInput(in)
	if err != nil {
		return gateway.Product{}, err
	}
	product, err := s.gw.UpdateProduct(ctx, token, id, in)
	return product, s.settle(ctx, sess, token, err)
}

func (s *service) PatchProduct(ctx context.Context, sess session.Current, id int64, patch gateway.ProductPatch) (gateway.Product, error) {
	token, err := requireAdmin(sess)
	if err != nil {
		return gateway.Product{}, err
	}
	if err := validateID(id, "product"); err != nil {
		return gateway.Product{}, err
	}
	patch, err = normalizeProductPatch(patch)
	if err != nil {
		return gateway.Product{}, err
	}
	product, err := s.gw.PatchProduct(ctx, token, id, patch)
	return product, s.settle(ctx, sess, token, err)
}

func (s *service) DeleteProduct(ctx context.Context, sess session.Current, id int64) error {
	token, err := requireAdmin(sess)
	if err != nil {
		return err
	}
	if err := validateID(id, "product"); err != nil {
		return err
	}
	err = s.gw.DeleteProduct(ctx, token, id)
	if err == nil {
		s.logg.Info(s.logg.WithField(ctx, "product_id", id), "catalog.product.deleted")
	}
	return s.settle(ctx, sess, token, err)
}

func (s *service) CreateCategory(ctx context.Context, sess session.Current, in gateway.CategoryInput) (gateway.Category, error) {
	token, err := requireAdmin(sess)
	if err != nil {
		return gateway.Category{}, err
	}
	in, err = normalizeCategoryInput(in)
	if err != nil {
		return gateway.Category{}, err
	}
	category, err := s.gw.CreateCategory(ctx, token, in)
	return category, s.settle(ctx, sess, token, err)
}

func (s *service) UpdateCategory(ctx context.Context, sess session.Current, id int64, in gateway.CategoryInput) (gateway.Category, error) {
	token, err := requireAdmin(sess)
	if err != nil {
		return gateway.Category{}, err
	}
	if err := validateID(id, "category"); err != nil {
		return gateway.Category{}, err
	}
	in, err = normalizeCategoryInput(in)
	if err != nil {
		return gateway.Category{}, err
	}
	category, err := s.gw.UpdateCategory(ctx, token, id, in)
	return category, s.settle(ctx, sess, token, err)
}

func (s *service) PatchCategory(ctx context.Context, sess session.Current, id int64, patch gateway.CategoryPatch) (gateway.Category, error) {
	token, err := requireAdmin(sess)
	if err != nil {
		return gateway.Category{}, err
	}
	if err := validateID(id, "category"); err != nil {
		return gateway.Category{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return gateway.Category{}, fieldError("nombre", "is required")
		}
		patch.Name = &name
	}
	category, err := s.gw.PatchCategory(ctx, token, id, patch)
	return category, s.settle(ctx, sess, token, err)
}

func (s *service) DeleteCategory(ctx context.Context, sess session.Current, id int64) error {
	token, err := requireAdmin(sess)
	if err != nil {
		return err
	}
	if err := validateID(id, "category"); err != nil {
		return err
	}
	return s.settle(ctx, sess, token, s.gw.DeleteCategory(ctx, token, id))
}

func (s *service) Lookup(sess session.Current) cart.Lookup {
	return func(ctx context.Context, productID int64) (cart.Product, error) {
		product, err := s.GetProduct(ctx, sess, productID)
		if err != nil {
			return cart.Product{}, err
		}
		return cart.ProductFrom(product), nil
	}
}

// settle applies the 401 policy to a finished gateway call.
func (s *service) settle(ctx context.Context, sess session.Current, token string, err error) error {
	return session.ExpireOnReject(ctx, sess, token, err, s.logg)
}

func requireAdmin(sess session.Current) (string, error) {
	snap := sess.Snapshot()
	if !snap.Identity.Authenticated() || snap.Token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "login required")
	}
	if !snap.Identity.IsAdmin() {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return snap.Token, nil
}

func validateID(id int64, what string) error {
	if id <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid "+what+" id")
	}
	return nil
}

func validateFilter(f gateway.ProductFilter) error {
	if c := strings.TrimSpace(f.CategoryID); c != "" {
		if id, err := strconv.ParseInt(c, 10, 64); err != nil || id <= 0 {
			return fieldError("categoria", "must be a category id")
		}
	}
	lower, err := priceBound(f.MinPrice, "precio__gte")
	if err != nil {
		return err
	}
	upper, err := priceBound(f.MaxPrice, "precio__lte")
	if err != nil {
		return err
	}
	if lower != nil && upper != nil && lower.GreaterThan(*upper) {
		return fieldError("precio__gte", "must not exceed the maximum price")
	}
	return nil
}

func priceBound(raw, field string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return nil, fieldError(field, "must be a non-negative amount")
	}
	return &d, nil
}

func fieldError(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid catalog input").
		WithDetails(map[string]string{field: message})
}
