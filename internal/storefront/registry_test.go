package storefront

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storage"
)

var ana = gateway.User{ID: 42, Username: "ana", Email: "ana@example.com"}

type fakeGateway struct {
	currentUserCalls atomic.Int32
}

func (f *fakeGateway) Login(context.Context, gateway.Credentials) (gateway.AuthResult, error) {
	return gateway.AuthResult{}, pkgerrors.New(pkgerrors.CodeForbidden, "unused")
}

func (f *fakeGateway) ClientLogin(_ context.Context, creds gateway.Credentials) (gateway.AuthResult, error) {
	if creds.Password != "secret" {
		return gateway.AuthResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid credentials")
	}
	return gateway.AuthResult{Token: "tok-42", User: ana}, nil
}

func (f *fakeGateway) Register(context.Context, gateway.Registration) (gateway.AuthResult, error) {
	return gateway.AuthResult{}, pkgerrors.New(pkgerrors.CodeValidation, "unused")
}

func (f *fakeGateway) Logout(context.Context, string) error { return nil }

func (f *fakeGateway) CurrentUser(_ context.Context, token string) (gateway.User, error) {
	f.currentUserCalls.Add(1)
	if token != "tok-42" {
		return gateway.User{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, gateway.ErrSessionExpired, "session expired")
	}
	return ana, nil
}

func (f *fakeGateway) CreateOrder(context.Context, string, gateway.CreateOrderRequest) (gateway.PaymentHandshake, error) {
	return gateway.PaymentHandshake{}, pkgerrors.New(pkgerrors.CodeDependency, "unused")
}

func (f *fakeGateway) ConfirmPayment(context.Context, string, int64, string) (gateway.Order, error) {
	return gateway.Order{}, pkgerrors.New(pkgerrors.CodeDependency, "unused")
}

func newRegistry(t *testing.T, backend storage.Backend, gw Gateway, max int) *Registry {
	t.Helper()
	reg, err := NewRegistry(Options{
		Backend:    backend,
		Gateway:    gw,
		Processor:  payments.NewFake(),
		MaxDevices: max,
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)
	return reg
}

func TestDeviceRejectsInvalidID(t *testing.T) {
	reg := newRegistry(t, storage.NewMemory(), &fakeGateway{}, 0)
	_, err := reg.Device(context.Background(), "not-a-uuid")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, reg.Len())
}

func TestDeviceIsBuiltOnceAndRestored(t *testing.T) {
	backend := storage.NewMemory()
	id := NewDeviceID()
	require.NoError(t, backend.Set(context.Background(), id, session.KeyToken, "tok-42"))
	gw := &fakeGateway{}
	reg := newRegistry(t, backend, gw, 0)

	var (
		mu   sync.Mutex
		seen = map[*Device]struct{}{}
	)
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			dev, err := reg.Device(context.Background(), id)
			if err != nil {
				return err
			}
			mu.Lock()
			seen[dev] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, 1)
	assert.Equal(t, int32(1), gw.currentUserCalls.Load())

	dev, err := reg.Device(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), dev.Session.Identity().UserID)
	assert.Equal(t, "cartItems_42", dev.Cart.Key())
}

func TestCartFollowsSessionOfItsDevice(t *testing.T) {
	reg := newRegistry(t, storage.NewMemory(), &fakeGateway{}, 0)
	dev, err := reg.Device(context.Background(), NewDeviceID())
	require.NoError(t, err)
	ctx := context.Background()

	require.Equal(t, "cartItems_guest", dev.Cart.Key())
	require.NoError(t, dev.Cart.AddItem(ctx, cart.Product{ID: 1, Name: "Guest mug", Price: "4"}, 1))

	_, err = dev.Session.Login(ctx, gateway.Credentials{Identifier: "ana", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "cartItems_42", dev.Cart.Key())
	assert.Empty(t, dev.Cart.Items())

	require.NoError(t, dev.Session.Logout(ctx))
	assert.True(t, dev.Cart.Contains(1))
}

func TestEvictionKeepsStateInStorage(t *testing.T) {
	backend := storage.NewMemory()
	reg := newRegistry(t, backend, &fakeGateway{}, 2)
	ctx := context.Background()

	first := NewDeviceID()
	dev, err := reg.Device(ctx, first)
	require.NoError(t, err)
	require.NoError(t, dev.Cart.AddItem(ctx, cart.Product{ID: 3, Name: "Lamp", Price: "10"}, 2))

	for i := 0; i < 2; i++ {
		_, err := reg.Device(ctx, NewDeviceID())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, reg.Len())

	again, err := reg.Device(ctx, first)
	require.NoError(t, err)
	assert.NotSame(t, dev, again)
	assert.Equal(t, 2, again.Cart.ItemCount())
}

// heldGateway blocks order creation until release is closed.
type heldGateway struct {
	fakeGateway
	entered chan struct{}
	release chan struct{}
}

func (h *heldGateway) CreateOrder(ctx context.Context, _ string, _ gateway.CreateOrderRequest) (gateway.PaymentHandshake, error) {
	close(h.entered)
	select {
	case <-h.release:
	case <-ctx.Done():
	}
	return gateway.PaymentHandshake{}, pkgerrors.New(pkgerrors.CodeDependency, "orders unavailable")
}

func TestEvictionSkipsDeviceWithCheckoutInFlight(t *testing.T) {
	gw := &heldGateway{entered: make(chan struct{}), release: make(chan struct{})}
	reg := newRegistry(t, storage.NewMemory(), gw, 1)
	ctx := context.Background()

	busyID := NewDeviceID()
	busy, err := reg.Device(ctx, busyID)
	require.NoError(t, err)
	_, err = busy.Session.Login(ctx, gateway.Credentials{Identifier: "ana", Password: "secret"})
	require.NoError(t, err)
	require.NoError(t, busy.Cart.AddItem(ctx, cart.Product{ID: 3, Name: "Lamp", Price: "10", Stock: 5}, 1))

	done := make(chan error, 1)
	go func() {
		_, err := busy.Checkout.Submit(ctx, checkout.Request{
			Billing:         gateway.BillingDetails{Name: "Ana Diaz", Phone: "555-0100", Address: "1 Main St", City: "Springfield", Country: "US"},
			PaymentMethodID: "pm_visa",
		}, nil)
		done <- err
	}()
	<-gw.entered
	require.True(t, busy.Checkout.InFlight())

	for i := 0; i < 2; i++ {
		_, err := reg.Device(ctx, NewDeviceID())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reg.Len())

	again, err := reg.Device(ctx, busyID)
	require.NoError(t, err)
	assert.Same(t, busy, again)

	close(gw.release)
	assert.True(t, pkgerrors.IsCode(<-done, pkgerrors.CodeDependency))
	assert.Equal(t, 1, busy.Cart.ItemCount())
}
