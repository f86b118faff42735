package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

var errDenied = errors.New("denied")

func TestErrorMapperMap(t *testing.T) {
	m := NewErrorMapper().
		WithMapping(errDenied, http.StatusForbidden, "forbidden").
		WithDefault(http.StatusBadGateway, "upstream failed")

	cases := map[string]struct {
		err    error
		status int
	}{
		"nil":      {nil, http.StatusOK},
		"wrapped":  {fmt.Errorf("store 7: %w", errDenied), http.StatusForbidden},
		"deadline": {context.DeadlineExceeded, http.StatusGatewayTimeout},
		"canceled": {context.Canceled, http.StatusServiceUnavailable},
		"other":    {errors.New("boom"), http.StatusBadGateway},
	}
	for name, tc := range cases {
		if got := m.Map(tc.err).Status; got != tc.status {
			t.Fatalf("%s: expected %d got %d", name, tc.status, got)
		}
	}
}

func TestErrorMapperHTTPError(t *testing.T) {
	he := NewErrorMapper().WithMapping(errDenied, http.StatusForbidden, "forbidden").HTTPError(errDenied)
	if he.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", he.Code)
	}
	if body, ok := he.Message.(map[string]string); !ok || body["error"] != "forbidden" {
		t.Fatalf("unexpected message %#v", he.Message)
	}
}
