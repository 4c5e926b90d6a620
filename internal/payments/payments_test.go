package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCreateIntent(t *testing.T) {
	var gotForm map[string][]string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("sk_test_key", srv.URL)
	intent, err := c.CreateIntent(context.Background(), IntentParams{
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_1",
		Amount:          decimal.RequireFromString("20.88"),
		Currency:        "usd",
		Description:     "automatic credit top-up",
		TransactionID:   "tx_42",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ID != "pi_123" || intent.Status != IntentSucceeded {
		t.Fatalf("intent = %+v", intent)
	}

	if gotAuth != "Bearer sk_test_key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	// Amount travels in the smallest currency unit.
	if got := gotForm["amount"]; len(got) != 1 || got[0] != "2088" {
		t.Fatalf("amount = %v", got)
	}
	checks := map[string]string{
		"currency":                "usd",
		"customer":                "cus_1",
		"payment_method":          "pm_1",
		"off_session":             "true",
		"confirm":                 "true",
		"metadata[transactionId]": "tx_42",
	}
	for k, want := range checks {
		if got := gotForm[k]; len(got) != 1 || got[0] != want {
			t.Errorf("form[%s] = %v, want %q", k, got, want)
		}
	}
}

func TestGetPaymentMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_methods/pm_abc" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"pm_abc","card":{"country":"NO"}}`))
	}))
	defer srv.Close()

	pm, err := NewHTTPClient("sk", srv.URL).GetPaymentMethod(context.Background(), "pm_abc")
	if err != nil {
		t.Fatalf("GetPaymentMethod: %v", err)
	}
	if pm.ID != "pm_abc" || pm.CardCountry != "NO" {
		t.Fatalf("pm = %+v", pm)
	}
}

func TestErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient("sk", srv.URL).CreateIntent(context.Background(), IntentParams{
		Amount: decimal.NewFromInt(10), Currency: "usd",
	})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "402") || !strings.Contains(err.Error(), "declined") {
		t.Fatalf("error = %v", err)
	}
}
