package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/internal/storefront"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storage"
	"github.com/angelmondragon/storefront/pkg/types"
)

var ana = gateway.User{
	ID:        42,
	Username:  "ana",
	Email:     "ana@example.com",
	FirstName: "Ana",
	LastName:  "Lopez",
	Profile: &gateway.Profile{
		Phone:          "600111222",
		DefaultAddress: "Calle Mayor 1",
		DefaultCity:    "Madrid",
		DefaultCountry: "ES",
	},
}

type fakeGateway struct {
	mu      sync.Mutex
	created []gateway.CreateOrderRequest
}

func (f *fakeGateway) Login(context.Context, gateway.Credentials) (gateway.AuthResult, error) {
	return gateway.AuthResult{Token: "tok-42", User: ana}, nil
}

func (f *fakeGateway) ClientLogin(_ context.Context, creds gateway.Credentials) (gateway.AuthResult, error) {
	if creds.Password != "secret" {
		return gateway.AuthResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid credentials")
	}
	return gateway.AuthResult{Token: "tok-42", User: ana}, nil
}

func (f *fakeGateway) Register(_ context.Context, reg gateway.Registration) (gateway.AuthResult, error) {
	user := gateway.User{ID: 43, Username: reg.Username, Email: reg.Email}
	return gateway.AuthResult{Token: "tok-43", User: user}, nil
}

func (f *fakeGateway) Logout(context.Context, string) error { return nil }

func (f *fakeGateway) CurrentUser(_ context.Context, token string) (gateway.User, error) {
	if token != "tok-42" {
		return gateway.User{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, gateway.ErrSessionExpired, "session expired")
	}
	return ana, nil
}

func (f *fakeGateway) CreateOrder(_ context.Context, _ string, in gateway.CreateOrderRequest) (gateway.PaymentHandshake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return gateway.PaymentHandshake{OrderID: 77, ClientSecret: "pi_77_secret_abc"}, nil
}

func (f *fakeGateway) ConfirmPayment(_ context.Context, _ string, orderID int64, intentID string) (gateway.Order, error) {
	return gateway.Order{ID: orderID, PaymentIntentID: intentID}, nil
}

// fakeCatalog answers the reads the handlers need and records admin writes.
type fakeCatalog struct {
	catalog.Service

	products map[int64]gateway.Product
	filter   gateway.ProductFilter
	created  gateway.ProductInput
	patched  gateway.ProductPatch
	deleted  int64
}

func newFakeCatalog(products ...gateway.Product) *fakeCatalog {
	f := &fakeCatalog{products: map[int64]gateway.Product{}}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCatalog) ListProducts(_ context.Context, _ session.Current, filter gateway.ProductFilter) ([]gateway.Product, error) {
	f.filter = filter
	out := make([]gateway.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, _ session.Current, id int64) (gateway.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return gateway.Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "No encontrado.")
	}
	return p, nil
}

func (f *fakeCatalog) CreateProduct(_ context.Context, _ session.Current, in gateway.ProductInput) (gateway.Product, error) {
	f.created = in
	return gateway.Product{ID: 9, Name: in.Name}, nil
}

func (f *fakeCatalog) PatchProduct(_ context.Context, _ session.Current, id int64, patch gateway.ProductPatch) (gateway.Product, error) {
	f.patched = patch
	return gateway.Product{ID: id}, nil
}

func (f *fakeCatalog) DeleteProduct(_ context.Context, _ session.Current, id int64) error {
	f.deleted = id
	return nil
}

func (f *fakeCatalog) Lookup(sess session.Current) cart.Lookup {
	return func(ctx context.Context, id int64) (cart.Product, error) {
		p, err := f.GetProduct(ctx, sess, id)
		if err != nil {
			return cart.Product{}, err
		}
		return cart.ProductFrom(p), nil
	}
}

var lamp = gateway.Product{ID: 5, Name: "Lamp", Price: types.ParseMoney("10.00"), Stock: 4}

func newDevice(t *testing.T, gw *fakeGateway) *storefront.Device {
	t.Helper()
	reg, err := storefront.NewRegistry(storefront.Options{
		Backend:   storage.NewMemory(),
		Gateway:   gw,
		Processor: payments.NewFake(),
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	dev, err := reg.Device(context.Background(), storefront.NewDeviceID())
	require.NoError(t, err)
	return dev
}

func signIn(t *testing.T, dev *storefront.Device) {
	t.Helper()
	_, err := dev.Session.Login(context.Background(), gateway.Credentials{Identifier: "ana", Password: "secret"})
	require.NoError(t, err)
}

// serve runs handler for a request bound to dev, with params as chi URL params.
func serve(handler http.Handler, dev *storefront.Device, req *http.Request, params map[string]string) *httptest.ResponseRecorder {
	ctx := req.Context()
	if dev != nil {
		ctx = middleware.WithDevice(ctx, dev)
	}
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for k, v := range params {
			routeCtx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeData(t *testing.T, body io.Reader, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeError(t *testing.T, body io.Reader) types.ErrorEnvelope {
	t.Helper()
	var envelope types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	return envelope
}
