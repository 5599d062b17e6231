package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"meshkv/internal/meshnode"
)

func newTestRouter(t *testing.T) (*gin.Engine, *meshnode.Node) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	n, err := meshnode.New("http-test-node", 0, meshnode.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(n.Stop)

	router := gin.New()
	NewHandler(n).Register(router)
	return router, n
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPutThenGet(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPut, "/kv/color", `{"value":"blue"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/kv/color", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var got struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Value != "blue" {
		t.Fatalf("value = %q, want blue", got.Value)
	}
}

func TestGetMissingKeyReturns404(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/kv/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteThenGetReturns404(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(router, http.MethodPut, "/kv/temp", `{"value":"x"}`)
	rec := doRequest(router, http.MethodDelete, "/kv/temp", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	rec = doRequest(router, http.MethodGet, "/kv/temp", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", rec.Code)
	}
}

func TestStatusReportsDataKeyCount(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(router, http.MethodPut, "/kv/a", `{"value":1}`)
	doRequest(router, http.MethodPut, "/kv/b", `{"value":2}`)

	rec := doRequest(router, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		DataKeys int `json:"data_keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DataKeys != 2 {
		t.Fatalf("data_keys = %d, want 2", got.DataKeys)
	}
}
