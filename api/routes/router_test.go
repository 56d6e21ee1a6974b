package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/internal/storefront"
	"github.com/angelmondragon/storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/storage"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubGateway struct{}

func (stubGateway) Login(context.Context, gateway.Credentials) (gateway.AuthResult, error) {
	return gateway.AuthResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid credentials")
}

func (stubGateway) ClientLogin(_ context.Context, creds gateway.Credentials) (gateway.AuthResult, error) {
	if creds.Password != "secret" {
		return gateway.AuthResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid credentials")
	}
	return gateway.AuthResult{Token: "tok-42", User: gateway.User{ID: 42, Username: "ana", Email: "ana@example.com"}}, nil
}

func (stubGateway) Register(context.Context, gateway.Registration) (gateway.AuthResult, error) {
	return gateway.AuthResult{}, pkgerrors.New(pkgerrors.CodeValidation, "not implemented")
}

func (stubGateway) Logout(context.Context, string) error { return nil }

func (stubGateway) CurrentUser(_ context.Context, token string) (gateway.User, error) {
	if token != "tok-42" {
		return gateway.User{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, gateway.ErrSessionExpired, "session expired")
	}
	return gateway.User{ID: 42, Username: "ana", Email: "ana@example.com"}, nil
}

func (stubGateway) CreateOrder(context.Context, string, gateway.CreateOrderRequest) (gateway.PaymentHandshake, error) {
	return gateway.PaymentHandshake{}, pkgerrors.New(pkgerrors.CodeDependency, "not implemented")
}

func (stubGateway) ConfirmPayment(context.Context, string, int64, string) (gateway.Order, error) {
	return gateway.Order{}, pkgerrors.New(pkgerrors.CodeDependency, "not implemented")
}

type stubCatalog struct {
	catalog.Service
}

func (stubCatalog) ListCategories(context.Context, session.Current) ([]gateway.Category, error) {
	return []gateway.Category{{ID: 1, Name: "Lighting"}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Env: "test", Port: "0"},
		Device:  config.DeviceConfig{CookieName: "sf_device"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	promRegistry := prometheus.NewRegistry()
	return buildRouter(t, cfg, promRegistry, metrics.NewCheckoutMetrics(promRegistry))
}

func buildRouter(t *testing.T, cfg *config.Config, promRegistry *prometheus.Registry, checkoutMetrics *metrics.CheckoutMetrics) http.Handler {
	t.Helper()
	registry, err := storefront.NewRegistry(storefront.Options{
		Backend:   storage.NewMemory(),
		Gateway:   stubGateway{},
		Processor: payments.NewFake(),
		Metrics:   checkoutMetrics,
		Logger:    logger.Nop(),
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		registry,
		stubCatalog{},
		nil,
		nil,
		map[string]controllers.Pinger{"storage": stubPinger{}},
		promRegistry,
	)
}

func deviceCookie(t *testing.T, resp *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range resp.Result().Cookies() {
		if c.Name == "sf_device" {
			return c
		}
	}
	t.Fatalf("expected device cookie to be set")
	return nil
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig())
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsRouteExposesCheckoutCounters(t *testing.T) {
	promRegistry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(promRegistry)
	checkoutMetrics.IncOutcome("succeeded")
	router := buildRouter(t, testConfig(), promRegistry, checkoutMetrics)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `checkout_attempts_total{outcome="succeeded"} 1`) {
		t.Fatalf("expected checkout metrics in exposition")
	}
}

func TestMetricsRouteDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	router := newTestRouter(t, cfg)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDeviceCookieCarriesSessionAcrossRequests(t *testing.T) {
	router := newTestRouter(t, testConfig())

	login := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"identifier":"ana","password":"secret"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, login)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for login got %d: %s", resp.Code, resp.Body.String())
	}
	cookie := deviceCookie(t, resp)
	if !cookie.HttpOnly {
		t.Fatalf("device cookie must be http only")
	}

	me := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	me.AddCookie(cookie)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, me)
	if !strings.Contains(resp.Body.String(), `"authenticated":true`) {
		t.Fatalf("expected the same device to stay signed in, got %s", resp.Body.String())
	}

	other := httptest.NewRecorder()
	router.ServeHTTP(other, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if !strings.Contains(other.Body.String(), `"authenticated":false`) {
		t.Fatalf("a new device must start as guest, got %s", other.Body.String())
	}
	if deviceCookie(t, other).Value == cookie.Value {
		t.Fatalf("expected a fresh device id")
	}
}

func TestCheckoutRequiresLogin(t *testing.T) {
	router := newTestRouter(t, testConfig())
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(method, "/api/v1/checkout", strings.NewReader(`{}`)))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 for guest got %d", method, resp.Code)
		}
	}
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	router := newTestRouter(t, testConfig())

	guest := httptest.NewRecorder()
	router.ServeHTTP(guest, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/products/5", nil))
	if guest.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for guest got %d", guest.Code)
	}

	login := httptest.NewRecorder()
	router.ServeHTTP(login, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"identifier":"ana","password":"secret"}`)))
	cookie := deviceCookie(t, login)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/products/5", nil)
	req.AddCookie(cookie)
	customer := httptest.NewRecorder()
	router.ServeHTTP(customer, req)
	if customer.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", customer.Code)
	}
}

func TestPublicCatalogRoute(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"nombre":"Lighting"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestUnknownDeviceCookieIsReplaced(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "sf_device", Value: "../../etc"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !storefront.ValidDeviceID(deviceCookie(t, resp).Value) {
		t.Fatalf("expected a freshly minted device id")
	}
}
