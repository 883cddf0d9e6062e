package validators

import (
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/pagination"
)

type saleBody struct {
	PurchaseID *uuid.UUID       `json:"purchase_id,omitempty"`
	Buyer      *purchases.Buyer `json:"buyer,omitempty" validate:"required_without=PurchaseID"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dest saleBody
	return DecodeJSONBody(req, &dest)
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, _ := typed.Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsSale(t *testing.T) {
	body := `{"buyer":{"customer_id":"` + uuid.NewString() + `","payment_method":"pix","customer":{"name":"Ana Souza","email":"ana@example.com"}}}`
	if err := decode(t, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := decode(t, `{"purchase_id":"`+uuid.NewString()+`"}`); err != nil {
		t.Fatalf("open checkout settlement must not need a buyer: %v", err)
	}
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	details := validationDetails(t, decode(t, `{}`))
	if details["buyer"] == "" {
		t.Fatalf("expected buyer detail, got %v", details)
	}

	body := `{"buyer":{"customer_id":"` + uuid.NewString() + `","payment_method":"boleto","customer":{"name":"Ana","email":"not-an-email"}}}`
	details = validationDetails(t, decode(t, body))
	if details["payment_method"] != "must be credit_card or pix" {
		t.Fatalf("unexpected payment_method detail %q", details["payment_method"])
	}
	if details["email"] != "must be a valid email" {
		t.Fatalf("unexpected email detail %q", details["email"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	err := decode(t, `{"purchase_id":"`+uuid.NewString()+`","code":"RC-1"}`)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	if got := SanitizeString("  cartão recusado  ", 0); got != "cartão recusado" {
		t.Fatalf("unexpected trim %q", got)
	}
	// "ã" spans bytes 4 and 5; a 5 byte cap must not split it.
	got := SanitizeString("cartão recusado", 5)
	if !utf8.ValidString(got) || got != "cart" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
	if got := SanitizeString("pix", 10); got != "pix" {
		t.Fatalf("short input changed: %q", got)
	}
}

func TestParseQueryIntBounds(t *testing.T) {
	cases := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 3},
		{query: "?days=1", want: 1},
		{query: "?days=abc", wantErr: true},
		{query: "?days=31", wantErr: true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/api/v1/reminders"+tc.query, nil)
		got, err := ParseQueryInt(req, "days", 3, 0, 30)
		if tc.wantErr {
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("%q: expected validation error, got %v", tc.query, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %d, %v", tc.query, got, err)
		}
	}
}

func TestParsePageParamsRejectsBadCursor(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/purchases/approved?limit=5&cursor=bm90LWEtY3Vyc29y", nil)
	if _, err := ParsePageParams(req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for cursor, got %v", err)
	}

	req = httptest.NewRequest("GET", "/api/v1/purchases/approved", nil)
	params, err := ParsePageParams(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != pagination.DefaultLimit || params.Cursor != "" {
		t.Fatalf("unexpected defaults %+v", params)
	}
}
