// Package testutil provides shared helpers for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request with the body marshaled as JSON.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "marshal request body")
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequest builds a bodyless request.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// DoRequest runs the request through the handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// DecodeJSON unmarshals the recorded response body into T.
func DecodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "unmarshal response body")
	return &out
}

// AssertStatus asserts the recorded status code.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code")
}

// AssertErrorCode asserts the coded error payload the error writer emits.
func AssertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), "unmarshal error body")
	assert.Equal(t, expected, payload.Code, "unexpected error code")
}
