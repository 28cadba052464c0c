package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:      baseURL,
		BaseCurrency: "USD",
		Timeout:      time.Second,
	}, zerolog.Nop())
}

func TestFetchRatesSuccess(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"USD","rates":{"EUR":0.91,"GBP":0.78}}`))
	}))
	defer server.Close()

	rates, err := testClient(server.URL).FetchRates(context.Background(), []string{"EUR", "GBP"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if !rates["EUR"].Equal(decimal.NewFromFloat(0.91)) {
		t.Fatalf("EUR rate mismatch: %s", rates["EUR"])
	}
	if !strings.Contains(gotQuery, "base=USD") || !strings.Contains(gotQuery, "symbols=EUR%2CGBP") {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestFetchRatesOmittedCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"USD","rates":{"EUR":0.91}}`))
	}))
	defer server.Close()

	rates, err := testClient(server.URL).FetchRates(context.Background(), []string{"EUR", "GBP"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rates) != 1 {
		t.Fatalf("expected the present code only, got %d", len(rates))
	}
	if _, present := rates["GBP"]; present {
		t.Fatal("GBP should be absent")
	}
}

func TestFetchRatesAllOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"USD","rates":{"JPY":155.2}}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).FetchRates(context.Background(), []string{"EUR"}); err == nil {
		t.Fatal("expected error when every requested code is missing")
	}
}

func TestFetchRatesNonPositiveRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"USD","rates":{"EUR":0}}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).FetchRates(context.Background(), []string{"EUR"}); err == nil {
		t.Fatal("expected error on non-positive rate")
	}
}

func TestFetchRatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate_limited","description":"slow down"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchRates(context.Background(), []string{"EUR"})
	if err == nil {
		t.Fatal("expected error on 429 response")
	}
	if !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("error should carry the API description: %v", err)
	}
}

func TestFetchRatesUnconfigured(t *testing.T) {
	client := NewClient(Options{}, zerolog.Nop())
	if _, err := client.FetchRates(context.Background(), []string{"EUR"}); err == nil {
		t.Fatal("expected error without a base url")
	}
	client = testClient("http://localhost:0")
	if _, err := client.FetchRates(context.Background(), nil); err == nil {
		t.Fatal("expected error without requested codes")
	}
}
