package catalog

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// MaxImageBytes bounds product image uploads.
const MaxImageBytes = 5 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

type productForm struct {
	Name       string `json:"nombre" validate:"required,max=200"`
	Price      string `json:"precio" validate:"required"`
	CategoryID int64  `json:"categoria" validate:"gt=0"`
	Stock      int    `json:"stock" validate:"gte=0"`
}

type categoryForm struct {
	Name string `json:"nombre" validate:"required,max=100"`
}

func normalizeProductInput(in gateway.ProductInput) (gateway.ProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Price = strings.TrimSpace(in.Price)

	err := validateForm(productForm{Name: in.Name, Price: in.Price, CategoryID: in.CategoryID, Stock: in.Stock})
	if err != nil {
		return in, err
	}
	price, err := normalizePrice(in.Price)
	if err != nil {
		return in, err
	}
	in.Price = price
	if err := validateImage(in.Image); err != nil {
		return in, err
	}
	return in, nil
}

func normalizeProductPatch(p gateway.ProductPatch) (gateway.ProductPatch, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return p, fieldError("nombre", "is required")
		}
		p.Name = &name
	}
	if p.Price != nil {
		price, err := normalizePrice(*p.Price)
		if err != nil {
			return p, err
		}
		p.Price = &price
	}
	if p.CategoryID != nil && *p.CategoryID <= 0 {
		return p, fieldError("categoria", "must be a category id")
	}
	if p.Stock != nil && *p.Stock < 0 {
		return p, fieldError("stock", "must not be negative")
	}
	if err := validateImage(p.Image); err != nil {
		return p, err
	}
	return p, nil
}

func normalizeCategoryInput(in gateway.CategoryInput) (gateway.CategoryInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in, validateForm(categoryForm{Name: in.Name})
}

// normalizePrice returns the canonical two-decimal form the API stores.
func normalizePrice(raw string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return "", fieldError("precio", "must be a non-negative amount")
	}
	return d.StringFixed(2), nil
}

func validateImage(img *gateway.Image) error {
	if img == nil {
		return nil
	}
	if len(img.Data) == 0 {
		return fieldError("imagen", "is empty")
	}
	if len(img.Data) > MaxImageBytes {
		return fieldError("imagen", "is too large")
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return fieldError("imagen", "must be an image")
	}
	return nil
}

func validateForm(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid catalog input")
	}
	details := map[string]string{}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "max":
			details[fe.Field()] = "is too long"
		case "gt":
			details[fe.Field()] = "must be a category id"
		default:
			details[fe.Field()] = "must not be negative"
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid catalog input").WithDetails(details)
}
