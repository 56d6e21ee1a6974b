package storefront

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/storage"
)

const defaultMaxDevices = 10000

// Gateway is everything a device needs from the storefront API.
type Gateway interface {
	session.Authenticator
	checkout.Orders
}

// Device bundles the session, cart and checkout of one browser.
type Device struct {
	ID       string
	Session  *session.Manager
	Cart     *cart.Engine
	Checkout *checkout.Orchestrator
}

type Options struct {
	Backend    storage.Backend
	Gateway    Gateway
	Processor  payments.Processor
	Checkout   config.CheckoutConfig
	MaxDevices int
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
}

// Registry keeps resident devices in memory. All durable state lives in
// the storage backend, so evicting a device only costs a Restore on its
// next request.
type Registry struct {
	opts  Options
	group singleflight.Group

	mu      sync.Mutex
	devices map[string]*list.Element
	recent  *list.List
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Backend == nil || opts.Gateway == nil || opts.Processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "registry requires backend, gateway and processor")
	}
	if opts.MaxDevices <= 0 {
		opts.MaxDevices = defaultMaxDevices
	}
	return &Registry{
		opts:    opts,
		devices: make(map[string]*list.Element),
		recent:  list.New(),
	}, nil
}

// NewDeviceID mints an identifier for a browser that has none yet.
func NewDeviceID() string {
	return uuid.NewString()
}

// ValidDeviceID reports whether id looks like one NewDeviceID produced.
func ValidDeviceID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

// Device returns the bundle for id, building and restoring it on first use.
// Concurrent first requests for the same id share one build.
func (r *Registry) Device(ctx context.Context, id string) (*Device, error) {
	if !ValidDeviceID(id) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid device id")
	}
	if dev := r.lookup(id); dev != nil {
		return dev, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		if dev := r.lookup(id); dev != nil {
			return dev, nil
		}
		dev, err := r.build(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		r.insert(dev)
		return dev, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Device), nil
}

// Len reports how many devices are resident.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

func (r *Registry) build(ctx context.Context, id string) (*Device, error) {
	logg := r.opts.Logger
	ctx = logg.WithDeviceID(ctx, id)

	store, err := storage.Scoped(r.opts.Backend, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid device id")
	}
	sess := session.New(store, r.opts.Gateway, logg)
	identity, err := sess.Restore(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := cart.New(ctx, store, identity, logg)
	if err != nil {
		return nil, err
	}
	sess.Subscribe(engine.Listener())

	orchestrator := checkout.New(checkout.Options{
		Session:     sess,
		Cart:        engine,
		Orders:      r.opts.Gateway,
		Processor:   r.opts.Processor,
		Metrics:     r.opts.Metrics,
		Logger:      logg,
		StepTimeout: r.opts.Checkout.StepTimeout,
		SuccessPath: r.opts.Checkout.SuccessPath,
	})
	logg.Debug(ctx, "storefront.device.built")
	return &Device{ID: id, Session: sess, Cart: engine, Checkout: orchestrator}, nil
}

func (r *Registry) lookup(id string) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.devices[id]
	if !ok {
		return nil
	}
	r.recent.MoveToFront(el)
	return el.Value.(*Device)
}

func (r *Registry) insert(dev *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[dev.ID] = r.recent.PushFront(dev)
	r.evictLocked()
}

// evictLocked drops the least recently used devices over the cap. Devices
// with a checkout in flight are skipped so the attempt keeps its owner.
func (r *Registry) evictLocked() {
	for el := r.recent.Back(); el != nil && len(r.devices) > r.opts.MaxDevices; {
		prev := el.Prev()
		dev := el.Value.(*Device)
		if !dev.Checkout.InFlight() {
			r.recent.Remove(el)
			delete(r.devices, dev.ID)
		}
		el = prev
	}
}
