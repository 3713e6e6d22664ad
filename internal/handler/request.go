package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

const maxBodyBytes = 1 << 20

// clientIP returns the caller address without port. RealIP has already
// replaced RemoteAddr with X-Forwarded-For / X-Real-IP when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// bearer extracts the credential from "Bearer <value>". Anything else is
// treated as absent.
func bearer(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, " \t") {
		return ""
	}
	return value
}

// baseSessionID reads the base session from the cookie, falling back to the
// Authorization header.
func baseSessionID(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return bearer(r.Header.Get("Authorization"))
}

// adminToken reads the admin credential header, raw or Bearer-prefixed.
// Malformed values count as no credential.
func adminToken(r *http.Request, header string) string {
	raw := strings.TrimSpace(r.Header.Get(header))
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, " ") {
		return bearer(raw)
	}
	return raw
}

// decodeBody decodes a JSON object body. An empty body yields an empty map.
func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	payload := map[string]any{}
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return payload, nil
}

// queryPayload flattens query parameters into a payload for validation,
// keeping the first value of each key.
func queryPayload(r *http.Request) map[string]any {
	values := r.URL.Query()
	payload := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}
	return payload
}
