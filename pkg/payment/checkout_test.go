package payment

import (
	"bytes"
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

var testConfig = Config{
	PublicKey:   "pub_test_abc",
	RedirectURL: "https://example.org/payment/callback",
}

func TestCheckoutURL(t *testing.T) {
	raw, err := testConfig.CheckoutURL(190000, "DON-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme+"://"+u.Host+u.Path != DefaultEndpoint {
		t.Fatalf("unexpected endpoint %s", raw)
	}
	q := u.Query()
	want := map[string]string{
		"public-key":      "pub_test_abc",
		"amount-in-cents": "19000000",
		"currency":        "COP",
		"reference":       "DON-42",
		"redirect-url":    "https://example.org/payment/callback?reference=DON-42",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Fatalf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestCheckoutURLRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		amt  int64
		ref  string
	}{
		{"no key", Config{}, 90000, "R"},
		{"zero amount", testConfig, 0, "R"},
		{"no reference", testConfig, 90000, " "},
	}
	for _, tt := range tests {
		if _, err := tt.cfg.CheckoutURL(tt.amt, tt.ref); !errors.Is(err, ErrInvalidCheckout) {
			t.Fatalf("%s: expected ErrInvalidCheckout, got %v", tt.name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := testConfig.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, cfg := range []Config{{}, {PublicKey: "  "}, {PublicKey: "k", Endpoint: "://bad"}} {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidCheckout) {
			t.Fatalf("%+v: expected ErrInvalidCheckout, got %v", cfg, err)
		}
	}
}

func TestRenderForm(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig
	cfg.Currency = "USD"
	if err := cfg.RenderForm(&buf, 90000, `DON-"1"<x>`); err != nil {
		t.Fatalf("render: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	form := doc.Find("form#checkout")
	if form.Length() != 1 {
		t.Fatalf("expected one checkout form")
	}
	if action, _ := form.Attr("action"); action != DefaultEndpoint {
		t.Fatalf("action = %q", action)
	}
	if method, _ := form.Attr("method"); method != "GET" {
		t.Fatalf("method = %q", method)
	}

	var names, values []string
	form.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		n, _ := s.Attr("name")
		v, _ := s.Attr("value")
		names = append(names, n)
		values = append(values, v)
	})
	wantNames := []string{"public-key", "amount-in-cents", "currency", "reference", "redirect-url"}
	wantValues := []string{"pub_test_abc", "9000000", "USD", `DON-"1"<x>`, "https://example.org/payment/callback?reference=DON-%221%22%3Cx%3E"}
	if !reflect.DeepEqual(names, wantNames) || !reflect.DeepEqual(values, wantValues) {
		t.Fatalf("inputs = %v %v", names, values)
	}
}
