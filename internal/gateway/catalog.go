package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

func (f ProductFilter) values() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			q.Set(key, v)
		}
	}
	set("categoria", f.CategoryID)
	set("search", f.Search)
	set("precio__gte", f.MinPrice)
	set("precio__lte", f.MaxPrice)
	return q
}

func (c *Client) ListProducts(ctx context.Context, token string, filter ProductFilter) ([]Product, error) {
	raw, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/productos/",
		endpoint: "products.list",
		token:    token,
		query:    filter.values(),
		fallback: "could not load products",
	})
	if err != nil {
		return nil, err
	}
	products, err := decodeList[Product](raw)
	if err != nil {
		return nil, malformed("products.list", err)
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, token string, id int64) (Product, error) {
	return c.productCall(ctx, request{
		method:   http.MethodGet,
		path:     productPath(id),
		endpoint: "products.get",
		token:    token,
		fallback: "could not load product",
	})
}

// Recommendations returns products related to id.
func (c *Client) Recommendations(ctx context.Context, token string, id int64) ([]Product, error) {
	raw, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/productos/" + strconv.FormatInt(id, 10) + "/recommend/",
		endpoint: "products.recommend",
		token:    token,
		fallback: "could not load recommendations",
	})
	if err != nil {
		return nil, err
	}
	products, err := decodeList[Product](raw)
	if err != nil {
		return nil, malformed("products.recommend", err)
	}
	return products, nil
}

func (c *Client) CreateProduct(ctx context.Context, token string, in ProductInput) (Product, error) {
	req := request{
		method:      http.MethodPost,
		path:        "/productos/",
		endpoint:    "products.create",
		token:       token,
		requireAuth: true,
		fallback:    "could not create product",
	}
	attachProduct(&req, in, in.formFields(), in.Image)
	return c.productCall(ctx, req)
}

func (c *Client) UpdateProduct(ctx context.Context, token string, id int64, in ProductInput) (Product, error) {
	req := request{
		method:      http.MethodPut,
		path:        productPath(id),
		endpoint:    "products.update",
		token:       token,
		requireAuth: true,
		fallback:    "could not update product",
	}
	attachProduct(&req, in, in.formFields(), in.Image)
	return c.productCall(ctx, req)
}

func (c *Client) PatchProduct(ctx context.Context, token string, id int64, patch ProductPatch) (Product, error) {
	req := request{
		method:      http.MethodPatch,
		path:        productPath(id),
		endpoint:    "products.patch",
		token:       token,
		requireAuth: true,
		fallback:    "could not update product",
	}
	attachProduct(&req, patch, patch.formFields(), patch.Image)
	return c.productCall(ctx, req)
}

func (c *Client) DeleteProduct(ctx context.Context, token string, id int64) error {
	_, err := c.do(ctx, request{
		method:      http.MethodDelete,
		path:        productPath(id),
		endpoint:    "products.delete",
		token:       token,
		requireAuth: true,
		fallback:    "could not delete product",
	})
	return err
}

// attachProduct switches to multipart only when an image is attached.
func attachProduct(req *request, jsonBody any, fields map[string]string, image *Image) {
	if image != nil {
		req.multipart = &multipartBody{fields: fields, fileField: "imagen", file: image}
		return
	}
	req.body = jsonBody
}

func (c *Client) productCall(ctx context.Context, req request) (Product, error) {
	raw, err := c.do(ctx, req)
	if err != nil {
		return Product{}, err
	}
	var product Product
	if err := decodeObject(raw, &product); err != nil {
		return Product{}, malformed(req.endpoint, err)
	}
	if product.ID <= 0 {
		return Product{}, malformed(req.endpoint, nil)
	}
	return product, nil
}

func productPath(id int64) string {
	return "/productos/" + strconv.FormatInt(id, 10) + "/"
}

func categoryPath(id int64) string {
	return "/categorias/" + strconv.FormatInt(id, 10) + "/"
}

func (c *Client) ListCategories(ctx context.Context, token string) ([]Category, error) {
	raw, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/categorias/",
		endpoint: "categories.list",
		token:    token,
		fallback: "could not load categories",
	})
	if err != nil {
		return nil, err
	}
	categories, err := decodeList[Category](raw)
	if err != nil {
		return nil, malformed("categories.list", err)
	}
	return categories, nil
}

func (c *Client) GetCategory(ctx context.Context, token string, id int64) (Category, error) {
	return c.categoryCall(ctx, request{
		method:   http.MethodGet,
		path:     categoryPath(id),
		endpoint: "categories.get",
		token:    token,
		fallback: "could not load category",
	})
}

func (c *Client) CreateCategory(ctx context.Context, token string, in CategoryInput) (Category, error) {
	return c.categoryCall(ctx, request{
		method:      http.MethodPost,
		path:        "/categorias/",
		endpoint:    "categories.create",
		token:       token,
		requireAuth: true,
		body:        in,
		fallback:    "could not create category",
	})
}

func (c *Client) UpdateCategory(ctx context.Context, token string, id int64, in CategoryInput) (Category, error) {
	return c.categoryCall(ctx, request{
		method:      http.MethodPut,
		path:        categoryPath(id),
		endpoint:    "categories.update",
		token:       token,
		requireAuth: true,
		body:        in,
		fallback:    "could not update category",
	})
}

func (c *Client) PatchCategory(ctx context.Context, token string, id int64, patch CategoryPatch) (Category, error) {
	return c.categoryCall(ctx, request{
		method:      http.MethodPatch,
		path:        categoryPath(id),
		endpoint:    "categories.patch",
		token:       token,
		requireAuth: true,
		body:        patch,
		fallback:    "could not update category",
	})
}

func (c *Client) DeleteCategory(ctx context.Context, token string, id int64) error {
	_, err := c.do(ctx, request{
		method:      http.MethodDelete,
		path:        categoryPath(id),
		endpoint:    "categories.delete",
		token:       token,
		requireAuth: true,
		fallback:    "could not delete category",
	})
	return err
}

func (c *Client) categoryCall(ctx context.Context, req request) (Category, error) {
	raw, err := c.do(ctx, req)
	if err != nil {
		return Category{}, err
	}
	var category Category
	if err := decodeObject(raw, &category); err != nil {
		return Category{}, malformed(req.endpoint, err)
	}
	if category.ID <= 0 {
		return Category{}, malformed(req.endpoint, nil)
	}
	return category, nil
}
