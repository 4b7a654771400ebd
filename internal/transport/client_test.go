package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alovak/csob-gateway/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"resultCode":0}`))
	}))
	defer srv.Close()

	c := transport.New(nil)

	t.Run("post with body", func(t *testing.T) {
		resp, err := c.Do(context.Background(), &transport.Request{
			Method: http.MethodPost,
			URL:    srv.URL + "/api/v1.8/echo",
			Body:   []byte(`{"merchantId":"M1"}`),
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, `{"resultCode":0}`, string(resp.Body))
		require.Equal(t, http.MethodPost, gotMethod)
		require.Equal(t, "/api/v1.8/echo", gotPath)
		require.Equal(t, "application/json", gotContentType)
		require.Equal(t, `{"merchantId":"M1"}`, gotBody)
	})

	t.Run("get keeps escaped path and adds query", func(t *testing.T) {
		_, err := c.Do(context.Background(), &transport.Request{
			Method: http.MethodGet,
			URL:    srv.URL + "/api/v1.8/payment/status/M1/P1/20240101120000/abc%2Fdef",
			Query:  url.Values{"lang": []string{"CZ"}},
		})
		require.NoError(t, err)
		require.Equal(t, http.MethodGet, gotMethod)
		require.Equal(t, "/api/v1.8/payment/status/M1/P1/20240101120000/abc%2Fdef", gotPath)
		require.Equal(t, "lang=CZ", gotQuery)
		require.Empty(t, gotContentType)
	})
}

func TestClient_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := transport.New(nil).Do(context.Background(), &transport.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := transport.New(nil).Do(context.Background(), &transport.Request{Method: http.MethodGet, URL: addr})
	require.Error(t, err)
}
