package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

var (
	ErrMissingClientSecret = errors.New("missing client secret")
	ErrMissingOrderID      = errors.New("missing order id")
)

// CreateOrder submits the cart lines and billing details. The response must
// carry both a client secret and an order id; either missing is a malformed
// response, never a transport error.
func (c *Client) CreateOrder(ctx context.Context, token string, in CreateOrderRequest) (PaymentHandshake, error) {
	const endpoint = "orders.create"
	raw, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/orders/create_order/",
		endpoint:    endpoint,
		token:       token,
		requireAuth: true,
		body:        in,
		fallback:    "could not create order",
	})
	if err != nil {
		return PaymentHandshake{}, err
	}

	var created struct {
		ClientSecret string          `json:"client_secret"`
		OrderID      json.RawMessage `json:"order_id"`
		ID           json.RawMessage `json:"id"`
	}
	if err := decodeObject(raw, &created); err != nil {
		return PaymentHandshake{}, malformed(endpoint, err)
	}

	secret := strings.TrimSpace(created.ClientSecret)
	if secret == "" {
		return PaymentHandshake{}, malformedWithMessage(endpoint, ErrMissingClientSecret, "order response is missing the client secret")
	}
	orderID := parseID(created.OrderID)
	if orderID <= 0 {
		orderID = parseID(created.ID)
	}
	if orderID <= 0 {
		return PaymentHandshake{}, malformedWithMessage(endpoint, ErrMissingOrderID, "order response is missing the order id")
	}
	return PaymentHandshake{OrderID: orderID, ClientSecret: secret}, nil
}

// ConfirmPayment tells the API the processor accepted paymentIntentID for orderID.
func (c *Client) ConfirmPayment(ctx context.Context, token string, orderID int64, paymentIntentID string) (Order, error) {
	const endpoint = "orders.confirm_payment"
	raw, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/orders/confirm_payment/",
		endpoint:    endpoint,
		token:       token,
		requireAuth: true,
		body: map[string]any{
			"order_id":          orderID,
			"payment_intent_id": paymentIntentID,
		},
		fallback: "could not confirm payment",
	})
	if err != nil {
		return Order{}, err
	}
	// The acknowledgement body varies; an order is returned when present.
	var order Order
	if err := decodeObject(raw, &order); err != nil || order.ID <= 0 {
		return Order{ID: orderID}, nil
	}
	return order, nil
}

func (c *Client) ListOrders(ctx context.Context, token string) ([]Order, error) {
	raw, err := c.do(ctx, request{
		method:      http.MethodGet,
		path:        "/orders/",
		endpoint:    "orders.list",
		token:       token,
		requireAuth: true,
		fallback:    "could not load orders",
	})
	if err != nil {
		return nil, err
	}
	orders, err := decodeList[Order](raw)
	if err != nil {
		return nil, malformed("orders.list", err)
	}
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, token string, id int64) (Order, error) {
	raw, err := c.do(ctx, request{
		method:      http.MethodGet,
		path:        "/orders/" + strconv.FormatInt(id, 10) + "/",
		endpoint:    "orders.get",
		token:       token,
		requireAuth: true,
		fallback:    "could not load order",
	})
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := decodeObject(raw, &order); err != nil {
		return Order{}, malformed("orders.get", err)
	}
	if order.ID <= 0 {
		return Order{}, malformed("orders.get", nil)
	}
	return order, nil
}

// parseID accepts ids sent as JSON numbers or numeric strings.
func parseID(raw json.RawMessage) int64 {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return 0
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
