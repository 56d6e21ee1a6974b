package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const (
	StepCreateOrder    = "create_order"
	StepConfirmPayment = "confirm_payment"
	StepConfirmBackend = "confirm_backend"

	defaultStepTimeout = 20 * time.Second
	defaultSuccessPath = "/order-success/%d"
)

type Session interface {
	Snapshot() session.Snapshot
	Expire(ctx context.Context, token string) (bool, error)
}

type Cart interface {
	Snapshot() (string, []cart.LineItem)
	RemoveOrdered(ctx context.Context, key string, ordered []cart.LineItem) error
}

type Orders interface {
	CreateOrder(ctx context.Context, token string, in gateway.CreateOrderRequest) (gateway.PaymentHandshake, error)
	ConfirmPayment(ctx context.Context, token string, orderID int64, paymentIntentID string) (gateway.Order, error)
}

// Transition is one recorded state change of an attempt.
type Transition struct {
	From   enums.CheckoutState `json:"from"`
	To     enums.CheckoutState `json:"to"`
	At     time.Time           `json:"at"`
	Reason string              `json:"reason,omitempty"`
}

// Observer receives transitions while the caller is still listening.
type Observer func(Transition)

type Request struct {
	Billing         gateway.BillingDetails
	PaymentMethodID string
	Notes           string
}

type Result struct {
	State           enums.CheckoutState `json:"state"`
	OrderID         int64               `json:"order_id,omitempty"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	RedirectPath    string              `json:"redirect_path,omitempty"`
	Transitions     []Transition        `json:"transitions"`
}

type Options struct {
	Session     Session
	Cart        Cart
	Orders      Orders
	Processor   payments.Processor
	Metrics     *metrics.CheckoutMetrics
	Logger      *logger.Logger
	StepTimeout time.Duration
	SuccessPath string
	Now         func() time.Time
}

// Orchestrator drives checkout attempts for one device. Only one attempt
// may run at a time; a second Submit while one is in flight is a conflict.
type Orchestrator struct {
	session     Session
	cart        Cart
	orders      Orders
	processor   payments.Processor
	metrics     *metrics.CheckoutMetrics
	logg        *logger.Logger
	stepTimeout time.Duration
	successPath string
	now         func() time.Time

	inFlight atomic.Bool
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		session:     opts.Session,
		cart:        opts.Cart,
		orders:      opts.Orders,
		processor:   opts.Processor,
		metrics:     opts.Metrics,
		logg:        opts.Logger,
		stepTimeout: opts.StepTimeout,
		successPath: opts.SuccessPath,
		now:         opts.Now,
	}
	if o.stepTimeout <= 0 {
		o.stepTimeout = defaultStepTimeout
	}
	if !strings.Contains(o.successPath, "%d") {
		o.successPath = defaultSuccessPath
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// InFlight reports whether an attempt is currently running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// attempt is the state of one checkout run. Identity and token are fixed
// when it starts; later logins or logouts do not change who the order
// belongs to.
type attempt struct {
	o        *Orchestrator
	caller   context.Context
	observer Observer
	token    string
	userID   int64
	cartKey  string
	ordered  []cart.LineItem
	logCtx   context.Context

	mu     sync.Mutex
	result Result
}

// Submit runs one checkout attempt. Unauthenticated callers, empty carts
// and invalid billing are rejected before the state machine starts. Once
// the processor has been asked to charge the card the attempt finishes on
// its own even if ctx is cancelled: the caller gets ctx's error back and
// stops receiving transitions, while the outcome still reaches the logs
// and metrics.
func (o *Orchestrator) Submit(ctx context.Context, req Request, observer Observer) (Result, error) {
	snap := o.session.Snapshot()
	if !snap.Identity.Authenticated() || snap.Token == "" {
		return Result{State: enums.CheckoutStateIdle}, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required to checkout").
			WithDetails(map[string]any{"redirect": "/login"})
	}

	cartKey, items := o.cart.Snapshot()
	if cartKey != cart.Key(snap.Identity) {
		return Result{State: enums.CheckoutStateIdle}, pkgerrors.New(pkgerrors.CodeConflict, "session changed while reading the cart, retry checkout")
	}
	if len(items) == 0 {
		return Result{State: enums.CheckoutStateIdle}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, item := range items {
		if err := item.CheckQuantity(item.Quantity); err != nil {
			return Result{State: enums.CheckoutStateIdle}, err
		}
	}

	billing := req.Billing
	if snap.Identity.Email != "" {
		billing.Email = snap.Identity.Email
	}
	if err := ValidateBilling(billing); err != nil {
		return Result{State: enums.CheckoutStateIdle}, err
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return Result{State: enums.CheckoutStateIdle}, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return Result{State: enums.CheckoutStateIdle}, pkgerrors.New(pkgerrors.CodeConflict, "a checkout is already in progress")
	}

	logCtx := o.logg.WithUserID(context.WithoutCancel(ctx), snap.Identity.UserID)
	a := &attempt{
		o:        o,
		caller:   ctx,
		observer: observer,
		token:    snap.Token,
		userID:   snap.Identity.UserID,
		cartKey:  cartKey,
		ordered:  items,
		logCtx:   logCtx,
		result:   Result{State: enums.CheckoutStateIdle},
	}
	order := gateway.CreateOrderRequest{
		Items:          orderLines(items),
		BillingDetails: billing,
		Notes:          strings.TrimSpace(req.Notes),
	}

	done := make(chan error, 1)
	go func() {
		defer o.inFlight.Store(false)
		done <- a.run(order, req.PaymentMethodID, billing)
	}()

	select {
	case err := <-done:
		return a.snapshot(), err
	case <-ctx.Done():
		o.logg.Warn(logCtx, "checkout.caller_gone")
		return a.snapshot(), pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "checkout abandoned by caller")
	}
}

func orderLines(items []cart.LineItem) []gateway.OrderLine {
	lines := make([]gateway.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, gateway.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func (a *attempt) run(order gateway.CreateOrderRequest, paymentMethodID string, billing gateway.BillingDetails) error {
	o := a.o
	a.transition(enums.CheckoutStateCreatingOrder, "")

	var handshake gateway.PaymentHandshake
	err := a.step(a.caller, StepCreateOrder, func(ctx context.Context) error {
		var err error
		handshake, err = o.orders.CreateOrder(ctx, a.token, order)
		return err
	})
	if err != nil {
		return a.fail(StepCreateOrder, err)
	}
	a.setOrder(handshake.OrderID)
	a.logCtx = o.logg.WithOrderID(a.logCtx, handshake.OrderID)
	a.transition(enums.CheckoutStateAwaitingPaymentConfirmation, "")

	if err := a.caller.Err(); err != nil {
		return a.fail(StepConfirmPayment, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout abandoned before payment"))
	}

	// The card may be charged from here on, so the remaining calls no
	// longer follow the caller's cancellation.
	detached := context.WithoutCancel(a.caller)

	var payment payments.Result
	err = a.step(detached, StepConfirmPayment, func(ctx context.Context) error {
		var err error
		payment, err = o.processor.ConfirmCardPayment(ctx, payments.Confirmation{
			ClientSecret:    handshake.ClientSecret,
			PaymentMethodID: paymentMethodID,
			Billing:         billing,
		})
		return err
	})
	if err != nil {
		return a.fail(StepConfirmPayment, err)
	}
	a.setPaymentIntent(payment.PaymentIntentID)
	a.transition(enums.CheckoutStateConfirmingWithBackend, "")

	err = a.step(detached, StepConfirmBackend, func(ctx context.Context) error {
		_, err := o.orders.ConfirmPayment(ctx, a.token, handshake.OrderID, payment.PaymentIntentID)
		return err
	})
	if err != nil {
		return a.fail(StepConfirmBackend, err)
	}

	if err := o.cart.RemoveOrdered(detached, a.cartKey, a.ordered); err != nil {
		o.logg.Error(a.logCtx, "checkout.cart_clear_failed", err)
	}

	a.mu.Lock()
	a.result.RedirectPath = fmt.Sprintf(o.successPath, handshake.OrderID)
	a.mu.Unlock()
	a.transition(enums.CheckoutStateSucceeded, "")
	o.metrics.IncOutcome("succeeded")
	o.logg.Info(a.logCtx, "checkout.succeeded")
	return nil
}

// step runs fn under the per-step timeout and records its latency.
func (a *attempt) step(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, a.o.stepTimeout)
	defer cancel()

	start := a.o.now()
	err := fn(ctx)
	a.o.metrics.ObserveStep(name, a.o.now().Sub(start))
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s timed out", strings.ReplaceAll(name, "_", " ")))
	}
	return err
}

// fail moves the attempt to Failed and returns err annotated with the step.
// The cart is never touched on failure.
func (a *attempt) fail(step string, err error) error {
	o := a.o
	annotated := annotate(step, err)
	outcome := outcomeFor(annotated)

	if session.RejectedSession(annotated) {
		if _, expireErr := o.session.Expire(a.logCtx, a.token); expireErr != nil {
			o.logg.Error(a.logCtx, "checkout.session_expire_failed", expireErr)
		}
	}

	a.transition(enums.CheckoutStateFailed, annotated.Message())
	o.metrics.IncOutcome(outcome)

	dump := pkgerrors.Dump(annotated)
	logCtx := o.logg.WithFields(a.logCtx, map[string]any{
		"step":        step,
		"outcome":     outcome,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
	})
	o.logg.Error(logCtx, "checkout.failed", err)
	return annotated
}

func annotate(step string, err error) *pkgerrors.Error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout failed").
			WithDetails(map[string]any{"step": step})
	}
	details := map[string]any{"step": step}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
}

func outcomeFor(err *pkgerrors.Error) string {
	switch err.Code() {
	case pkgerrors.CodePaymentDeclined:
		return "declined"
	case pkgerrors.CodeMalformedResponse:
		return "malformed_response"
	case pkgerrors.CodeUnauthorized:
		return "unauthorized"
	case pkgerrors.CodeDependency:
		if errors.Is(err, context.Canceled) {
			return "abandoned"
		}
		return "transport_error"
	case pkgerrors.CodeValidation:
		return "rejected"
	}
	return "failed"
}

func (a *attempt) transition(to enums.CheckoutState, reason string) {
	a.mu.Lock()
	from := a.result.State
	if !from.CanTransition(to) {
		a.mu.Unlock()
		a.o.logg.Warn(a.o.logg.WithFields(a.logCtx, map[string]any{"from": from.String(), "to": to.String()}), "checkout.invalid_transition")
		return
	}
	t := Transition{From: from, To: to, At: a.o.now(), Reason: reason}
	a.result.State = to
	a.result.Transitions = append(a.result.Transitions, t)
	a.mu.Unlock()

	a.o.logg.Info(a.o.logg.WithFields(a.logCtx, map[string]any{"from": from.String(), "to": to.String()}), "checkout.transition")
	if a.observer != nil && a.caller.Err() == nil {
		a.observer(t)
	}
}

func (a *attempt) setOrder(id int64) {
	a.mu.Lock()
	a.result.OrderID = id
	a.mu.Unlock()
}

func (a *attempt) setPaymentIntent(id string) {
	a.mu.Lock()
	a.result.PaymentIntentID = id
	a.mu.Unlock()
}

func (a *attempt) snapshot() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.result
	out.Transitions = append([]Transition(nil), a.result.Transitions...)
	return out
}
