package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errEmptyBody      = errors.New("empty body")
	errUnknownShape   = errors.New("unrecognized response shape")
	errUnsuccessful   = errors.New("envelope reported failure")
	errMissingPayload = errors.New("envelope carries no data")
)

// envelope is the API's {success, data, message} wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// payload strips the success envelope when present and returns the inner
// document. Raw objects and arrays pass through untouched.
func payload(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	switch body[0] {
	case '[':
		return body, nil
	case '{':
	default:
		return nil, errUnknownShape
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Success == nil {
		return body, nil
	}
	if !*env.Success {
		if env.Message != "" {
			return nil, fmt.Errorf("%w: %s", errUnsuccessful, env.Message)
		}
		return nil, errUnsuccessful
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errMissingPayload
	}
	return data, nil
}

// decodeObject normalizes body and decodes the resulting object into dest.
func decodeObject(body []byte, dest any) error {
	doc, err := payload(body)
	if err != nil {
		return err
	}
	if doc[0] != '{' {
		return errUnknownShape
	}
	return json.Unmarshal(doc, dest)
}

// decodeList accepts a bare array or a paginated {count, results} page.
func decodeList[T any](body []byte) ([]T, error) {
	doc, err := payload(body)
	if err != nil {
		return nil, err
	}
	if doc[0] == '{' {
		var page struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(doc, &page); err != nil {
			return nil, err
		}
		doc = bytes.TrimSpace(page.Results)
		if len(doc) == 0 || doc[0] != '[' {
			return nil, errUnknownShape
		}
	}
	out := []T{}
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeUser accepts a user object either bare or nested under "user".
func decodeUser(body []byte) (User, error) {
	doc, err := payload(body)
	if err != nil {
		return User{}, err
	}
	if doc[0] != '{' {
		return User{}, errUnknownShape
	}
	var nested struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(doc, &nested); err == nil && nested.User != nil && nested.User.ID > 0 {
		return *nested.User, nil
	}
	var user User
	if err := json.Unmarshal(doc, &user); err != nil {
		return User{}, err
	}
	if user.ID <= 0 {
		return User{}, errors.New("user without id")
	}
	return user, nil
}

// upstreamError holds the human readable parts of a rejected response.
type upstreamError struct {
	Message     string
	Error       string
	Detail      string
	fieldErrors map[string]any
}

func errorFields(body []byte) upstreamError {
	var raw map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil {
		return upstreamError{}
	}
	out := upstreamError{
		Message: stringField(raw["message"]),
		Error:   stringField(raw["error"]),
		Detail:  stringField(raw["detail"]),
	}
	if errs, ok := raw["errors"].(map[string]any); ok {
		out.fieldErrors = errs
	} else if out.Message == "" && out.Error == "" && out.Detail == "" {
		// Bare serializer errors: {"field": ["reason"]}.
		fields := map[string]any{}
		for k, v := range raw {
			if k == "success" {
				continue
			}
			fields[k] = v
		}
		if len(fields) > 0 {
			out.fieldErrors = fields
		}
	}
	return out
}

// message picks message, then error, then detail.
func (u upstreamError) message() string {
	for _, candidate := range []string{u.Message, u.Error, u.Detail} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
