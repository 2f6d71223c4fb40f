// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Extract a human readable message from an error response body.
//
// Services use different envelopes. In order of precedence:
//   - {"error": "message"}
//   - {"message": "message"}
//   - {"error": {"error": ...}}, unwrapped one level
//   - {"error": {...}}, passed through as detail
//
// The returned detail is the error object when it is not a plain string.
func ExtractMessage(body []byte) (message string, detail any, ok bool) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", nil, false
	}
	if msg, isString := envelope["error"].(string); isString {
		return msg, nil, true
	}
	if msg, isString := envelope["message"].(string); isString {
		return msg, nil, true
	}
	obj, isObject := envelope["error"].(map[string]any)
	if !isObject {
		return "", nil, false
	}
	if inner, exists := obj["error"]; exists {
		if msg, isString := inner.(string); isString {
			return msg, nil, true
		}
		return stringify(inner), inner, true
	}
	return stringify(obj), obj, true
}

func stringify(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(buf)
}

// Turn a failed call into the error handed to callers.
//
// A status code of zero means the request never got a response, in which
// case the transport error is returned unmodified. Otherwise the message is
// taken from the body, falling back to the status text.
func NormalizeError(method, url, requestID string, statusCode int, body []byte, cause error) error {
	if statusCode == 0 {
		return cause
	}
	err := &UpstreamRequestFailedError{
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
		Body:       body,
		RequestID:  requestID,
	}
	if msg, detail, ok := ExtractMessage(body); ok {
		err.Message = msg
		err.Detail = detail
		return err
	}
	switch {
	case cause != nil:
		err.Message = cause.Error()
	case len(strings.TrimSpace(string(body))) > 0 && len(body) <= 512:
		err.Message = strings.TrimSpace(string(body))
	default:
		err.Message = fmt.Sprintf("unexpected status code: %d %s", statusCode, http.StatusText(statusCode))
	}
	return err
}
