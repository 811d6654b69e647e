package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"secopsmcp/internal/domain"
)

const (
	// maxExcerpt bounds how much raw response text ends up in an error.
	maxExcerpt = 200
	// maxBodyBytes caps how much of a response body is read at all.
	maxBodyBytes = 8 << 20

	truncationMarker = "..."

	// AuthFailureDetail is returned for every 401/403, whatever the upstream says.
	AuthFailureDetail = "Invalid or expired token, or insufficient permissions. Please re-authenticate."
	// NoContentDetail is the synthetic payload detail for 204 responses.
	NoContentDetail = "Request successful, no content returned."
)

// Classify maps an HTTP status and body onto an ActionResult.
func Classify(status int, body []byte) domain.ActionResult {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return domain.Fail(domain.AuthenticationExpired, AuthFailureDetail, map[string]any{
			"error":       domain.AuthenticationExpired.Code(),
			"status_code": status,
			"detail":      AuthFailureDetail,
		})
	}

	if status >= 200 && status < 300 {
		if status == http.StatusNoContent {
			return domain.Succeed(map[string]any{"status": "success", "detail": NoContentDetail})
		}
		payload, err := decodeJSON(body)
		if err != nil {
			detail := "Invalid JSON received. Response text: " + excerpt(string(body), maxExcerpt)
			return domain.Fail(domain.UpstreamMalformedResponse, detail, map[string]any{
				"error":  domain.UpstreamMalformedResponse.Code(),
				"detail": detail,
			})
		}
		return domain.Succeed(payload)
	}

	detail := fmt.Sprintf("upstream returned HTTP %d", status)
	if payload, err := decodeJSON(body); err == nil {
		return domain.Fail(domain.UpstreamHTTPError, detail, payload)
	}
	return domain.Fail(domain.UpstreamHTTPError, detail, map[string]any{
		"error":       domain.UpstreamHTTPError.Code(),
		"status_code": status,
		"detail":      excerpt(string(body), maxExcerpt),
	})
}

// decodeJSON parses a body keeping numbers exact, so large identifiers
// survive a round trip.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// excerpt returns at most n characters of s, marking truncation.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + truncationMarker
}
