package sales

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func serve(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 11}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerStockOuts(t *testing.T) {
	svc, repo := newTestService()
	stockID := seedStock(repo, "S-1", "Switch", 3, price("10"))
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)

	body := `{"sales":[{"stockId":` + strconv.FormatInt(stockID, 10) + `,"quantity":2}]}`
	key := map[string]string{"Idempotency-Key": "abc"}
	rr := serve(t, r, http.MethodPost, "/", body, key)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Data          []StockOut `json:"data"`
		TransactionID string     `json:"transactionId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Len(t, created.Data, 1)
	require.EqualValues(t, 11, created.Data[0].SoldBy)

	require.Equal(t, http.StatusConflict, serve(t, r, http.MethodPost, "/", body, key).Code)
	require.Equal(t, http.StatusUnprocessableEntity, serve(t, r, http.MethodPost, "/", body, nil).Code)

	rr = serve(t, r, http.MethodGet, "/transactions/"+created.TransactionID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, r, http.MethodPost, "/bulk-import", `{"rows":[{"sku":"S-1","quantity":1},{"itemName":"Gift wrap","quantity":1}]}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var result shared.ImportResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 2, result.Errors[0].Row)

	id := strconv.FormatInt(created.Data[0].ID, 10)
	require.Equal(t, http.StatusNoContent, serve(t, r, http.MethodDelete, "/"+id, "", nil).Code)
	require.Equal(t, http.StatusNotFound, serve(t, r, http.MethodGet, "/"+id, "", nil).Code)
	stock, _ := repo.stock.Stock(stockID)
	require.EqualValues(t, 2, stock.ReceivedQuantity)
}
