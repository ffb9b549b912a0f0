package suppliers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newTestService()
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCRUD(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/", `{"name":"Acme","email":"a@acme.test"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Supplier
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "SUP-0001", created.Code)

	rr = do(t, router, http.MethodPost, "/", `{"name":"Dup","email":"a@acme.test"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPut, "/1", `{"name":"Acme Ltd"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Acme Ltd")

	rr = do(t, router, http.MethodGet, "/?status=active", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page shared.Page[Supplier]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)

	rr = do(t, router, http.MethodDelete, "/1", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, router, http.MethodGet, "/1", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerBulkImport(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/bulk-import", `{"rows":[{"name":"One"},{"name":""}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result shared.ImportResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Failed)

	rr = do(t, router, http.MethodPost, "/bulk-import", `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
