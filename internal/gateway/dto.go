package gateway

import (
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Profile carries the customer's saved contact and shipping defaults.
type Profile struct {
	Phone          string `json:"phone"`
	DefaultAddress string `json:"default_address"`
	DefaultCity    string `json:"default_city"`
	DefaultCountry string `json:"default_country"`
	PostalCode     string `json:"postal_code"`
}

type User struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
	Profile     *Profile `json:"profile,omitempty"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Username
	}
	return name
}

// AuthResult is the normalized payload of login and register calls.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Credentials struct {
	Identifier string
	Password   string
}

type Registration struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
}

type ProfileUpdate struct {
	FirstName *string              `json:"first_name,omitempty"`
	LastName  *string              `json:"last_name,omitempty"`
	Email     *string              `json:"email,omitempty"`
	Profile   *ProfileFieldsUpdate `json:"profile,omitempty"`
}

type ProfileFieldsUpdate struct {
	Phone          *string `json:"phone,omitempty"`
	DefaultAddress *string `json:"default_address,omitempty"`
	DefaultCity    *string `json:"default_city,omitempty"`
	DefaultCountry *string `json:"default_country,omitempty"`
	PostalCode     *string `json:"postal_code,omitempty"`
}

type PasswordChange struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

type CategoryInput struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

type CategoryPatch struct {
	Name        *string `json:"nombre,omitempty"`
	Description *string `json:"descripcion,omitempty"`
}

type Product struct {
	ID           int64       `json:"id"`
	Name         string      `json:"nombre"`
	Description  string      `json:"descripcion"`
	Price        types.Money `json:"precio"`
	CategoryID   int64       `json:"categoria"`
	CategoryName string      `json:"categoria_nombre,omitempty"`
	Stock        int         `json:"stock"`
	ImageURL     string      `json:"imagen,omitempty"`
}

// Image is a file attached to a product write; its presence switches the
// request to multipart encoding.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ProductInput struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
	Price       string `json:"precio"`
	CategoryID  int64  `json:"categoria"`
	Stock       int    `json:"stock"`
	Image       *Image `json:"-"`
}

type ProductPatch struct {
	Name        *string `json:"nombre,omitempty"`
	Description *string `json:"descripcion,omitempty"`
	Price       *string `json:"precio,omitempty"`
	CategoryID  *int64  `json:"categoria,omitempty"`
	Stock       *int    `json:"stock,omitempty"`
	Image       *Image  `json:"-"`
}

// ProductFilter narrows a product listing. Zero values are never sent.
type ProductFilter struct {
	CategoryID string
	Search     string
	MinPrice   string
	MaxPrice   string
}

type BillingDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type OrderLine struct {
	ProductID int64 `json:"producto_id"`
	Quantity  int   `json:"cantidad"`
}

type CreateOrderRequest struct {
	Items          []OrderLine    `json:"items"`
	BillingDetails BillingDetails `json:"billing_details"`
	Notes          string         `json:"notes,omitempty"`
}

// PaymentHandshake is what order creation hands to the payment processor.
// It is used once and never stored.
type PaymentHandshake struct {
	OrderID      int64
	ClientSecret string
}

type OrderItem struct {
	ID        int64       `json:"id"`
	Product   *Product    `json:"producto,omitempty"`
	Quantity  int         `json:"cantidad"`
	UnitPrice types.Money `json:"precio_unitario"`
	Subtotal  types.Money `json:"subtotal"`
}

type Order struct {
	ID              int64             `json:"id"`
	Status          enums.OrderStatus `json:"status"`
	TotalAmount     types.Money       `json:"total_amount"`
	PaymentIntentID string            `json:"stripe_payment_intent_id,omitempty"`
	BillingName     string            `json:"billing_name"`
	BillingEmail    string            `json:"billing_email"`
	BillingPhone    string            `json:"billing_phone"`
	BillingAddress  string            `json:"billing_address"`
	BillingCity     string            `json:"billing_city"`
	BillingCountry  string            `json:"billing_country"`
	Notes           string            `json:"notes,omitempty"`
	Items           []OrderItem       `json:"items"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
