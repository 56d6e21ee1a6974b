package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	multipartOverhead = 1 << 20
	imageField        = "imagen"
)

type productPayload struct {
	Name        string      `json:"nombre"`
	Description string      `json:"descripcion"`
	Price       json.Number `json:"precio"`
	CategoryID  int64       `json:"categoria"`
	Stock       int         `json:"stock"`
}

type productPatchPayload struct {
	Name        *string      `json:"nombre"`
	Description *string      `json:"descripcion"`
	Price       *json.Number `json:"precio"`
	CategoryID  *int64       `json:"categoria"`
	Stock       *int         `json:"stock"`
}

type categoryPayload struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

type categoryPatchPayload struct {
	Name        *string `json:"nombre"`
	Description *string `json:"descripcion"`
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	limit := int64(catalog.MaxImageBytes + multipartOverhead)
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid catalog input").
				WithDetails(map[string]string{imageField: "is too large"})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return r.MultipartForm, nil
}

func formValue(form *multipart.Form, key string) (string, bool) {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func formInt(form *multipart.Form, key, message string) (int64, bool, error) {
	raw, ok := formValue(form, key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, true, pkgerrors.New(pkgerrors.CodeValidation, "invalid catalog input").
			WithDetails(map[string]string{key: message})
	}
	return n, true, nil
}

func formImage(form *multipart.Form) (*gateway.Image, error) {
	files := form.File[imageField]
	if len(files) == 0 {
		return nil, nil
	}
	header := files[0]
	f, err := header.Open()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read image")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, catalog.MaxImageBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read image")
	}
	return &gateway.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func productInputFromRequest(w http.ResponseWriter, r *http.Request) (gateway.ProductInput, error) {
	if !isMultipart(r) {
		var payload productPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return gateway.ProductInput{}, err
		}
		return gateway.ProductInput{
			Name:        payload.Name,
			Description: payload.Description,
			Price:       payload.Price.String(),
			CategoryID:  payload.CategoryID,
			Stock:       payload.Stock,
		}, nil
	}

	form, err := parseMultipart(w, r)
	if err != nil {
		return gateway.ProductInput{}, err
	}
	in := gateway.ProductInput{}
	in.Name, _ = formValue(form, "nombre")
	in.Description, _ = formValue(form, "descripcion")
	in.Price, _ = formValue(form, "precio")
	if in.CategoryID, _, err = formInt(form, "categoria", "must be a category id"); err != nil {
		return in, err
	}
	stock, _, err := formInt(form, "stock", "must be a whole number")
	if err != nil {
		return in, err
	}
	in.Stock = int(stock)
	if in.Image, err = formImage(form); err != nil {
		return in, err
	}
	return in, nil
}

func productPatchFromRequest(w http.ResponseWriter, r *http.Request) (gateway.ProductPatch, error) {
	if !isMultipart(r) {
		var payload productPatchPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return gateway.ProductPatch{}, err
		}
		patch := gateway.ProductPatch{
			Name:        payload.Name,
			Description: payload.Description,
			CategoryID:  payload.CategoryID,
			Stock:       payload.Stock,
		}
		if payload.Price != nil {
			price := payload.Price.String()
			patch.Price = &price
		}
		return patch, nil
	}

	form, err := parseMultipart(w, r)
	if err != nil {
		return gateway.ProductPatch{}, err
	}
	patch := gateway.ProductPatch{}
	if v, ok := formValue(form, "nombre"); ok {
		patch.Name = &v
	}
	if v, ok := formValue(form, "descripcion"); ok {
		patch.Description = &v
	}
	if v, ok := formValue(form, "precio"); ok {
		patch.Price = &v
	}
	categoryID, ok, err := formInt(form, "categoria", "must be a category id")
	if err != nil {
		return patch, err
	}
	if ok {
		patch.CategoryID = &categoryID
	}
	stock, ok, err := formInt(form, "stock", "must be a whole number")
	if err != nil {
		return patch, err
	}
	if ok {
		n := int(stock)
		patch.Stock = &n
	}
	if patch.Image, err = formImage(form); err != nil {
		return patch, err
	}
	return patch, nil
}

// AdminProductCreate accepts JSON or a multipart form carrying an image.
func AdminProductCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		in, err := productInputFromRequest(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), dev.Session, in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

func AdminProductUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		in, err := productInputFromRequest(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.UpdateProduct(r.Context(), dev.Session, id, in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func AdminProductPatch(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		patch, err := productPatchFromRequest(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.PatchProduct(r.Context(), dev.Session, id, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func AdminProductDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteProduct(r.Context(), dev.Session, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AdminCategoryCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload categoryPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.CreateCategory(r.Context(), dev.Session, gateway.CategoryInput{
			Name:        payload.Name,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, category)
	}
}

func AdminCategoryUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathID(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload categoryPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.UpdateCategory(r.Context(), dev.Session, id, gateway.CategoryInput{
			Name:        payload.Name,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, category)
	}
}

func AdminCategoryPatch(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathID(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload categoryPatchPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.PatchCategory(r.Context(), dev.Session, id, gateway.CategoryPatch{
			Name:        payload.Name,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, category)
	}
}

func AdminCategoryDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathID(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteCategory(r.Context(), dev.Session, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
