package gateway

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
)

type multipartBody struct {
	fields    map[string]string
	fileField string
	file      *Image
}

func (m *multipartBody) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writer.WriteField(k, m.fields[k]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", k, err)
		}
	}

	if m.file != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, m.fileField, m.file.Filename))
		contentType := m.file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(m.file.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

func (p ProductInput) formFields() map[string]string {
	return map[string]string{
		"nombre":      p.Name,
		"descripcion": p.Description,
		"precio":      p.Price,
		"categoria":   strconv.FormatInt(p.CategoryID, 10),
		"stock":       strconv.Itoa(p.Stock),
	}
}

func (p ProductPatch) formFields() map[string]string {
	out := map[string]string{}
	if p.Name != nil {
		out["nombre"] = *p.Name
	}
	if p.Description != nil {
		out["descripcion"] = *p.Description
	}
	if p.Price != nil {
		out["precio"] = *p.Price
	}
	if p.CategoryID != nil {
		out["categoria"] = strconv.FormatInt(*p.CategoryID, 10)
	}
	if p.Stock != nil {
		out["stock"] = strconv.Itoa(*p.Stock)
	}
	return out
}
