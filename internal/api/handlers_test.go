package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The listing guards run before any service call, so a handler with no
// service behind it is enough to exercise them.
func listVendorOrders(t *testing.T, target, actorID, actorRole string) *httptest.ResponseRecorder {
	t.Helper()

	router := NewRouter(NewHandler(nil))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("X-Actor-ID", actorID)
	req.Header.Set("X-Actor-Role", actorRole)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListVendorOrdersRejectsMalformedDateFilters(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"bad from", "/vendors/vendor-a/orders?from=yesterday"},
		{"bad to", "/vendors/vendor-a/orders?to=2026-13-99"},
		{"bad from with valid to", "/vendors/vendor-a/orders?from=junk&to=2026-01-02T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := listVendorOrders(t, tt.target, "vendor-a", "vendor")
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "invalid_argument", body.Error)
		})
	}
}

func TestListVendorOrdersScopedToVendorOrAdmin(t *testing.T) {
	rec := listVendorOrders(t, "/vendors/vendor-a/orders", "vendor-b", "vendor")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = listVendorOrders(t, "/vendors/vendor-a/orders", "cust-1", "customer")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
