package errors

import (
	"errors"
	"fmt"
)

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Step           string `json:"step,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
}

// Dump flattens an error chain into log-friendly fields. Gateway and
// checkout errors attach "step", "status" and "endpoint" details which are
// lifted to the top level so transport failures and malformed replies stay
// distinguishable in telemetry.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	te := As(err)
	if te == nil {
		return d
	}
	d.Code = te.Code()

	details, ok := te.Details().(map[string]any)
	if !ok {
		return d
	}
	if step, ok := details["step"].(string); ok {
		d.Step = step
	}
	if status, ok := details["status"].(int); ok {
		d.UpstreamStatus = status
	}
	if endpoint, ok := details["endpoint"].(string); ok {
		d.Endpoint = endpoint
	}
	return d
}
