package bind

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perr "strata/internal/platform/errors"
	kit "strata/internal/platform/testkit"
)

// shared payload for many tests
type payload struct {
	Tenant string `json:"tenant_id" validate:"required,ident_name"`
	Limit  int    `json:"limit" validate:"min=1"`
}

func TestParseJSON_Success(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"tenant_id":"acme","limit":3}`))
	got, err := ParseJSON[payload](req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tenant != "acme" || got.Limit != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseJSON_EmptyBody_Disallow(t *testing.T) {
	req := httptest.NewRequest("POST", "/", http.NoBody)
	_, err := ParseJSON[payload](req)
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error code, got %v (%v)", perr.CodeOf(err), err)
	}
}

func TestParseJSON_EmptyBody_GetTolerated(t *testing.T) {
	req := httptest.NewRequest("GET", "/", http.NoBody)
	got, err := ParseJSON[payload](req)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if got != (payload{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestParseJSON_AllowEmptyBody_EOF_OK(t *testing.T) {
	type emptyOK struct {
		Note string `json:"note"`
	}
	opts := JSONOptions{AllowEmptyBody: true}
	req := httptest.NewRequest("POST", "/", http.NoBody)

	got, err := ParseJSON[emptyOK](req, opts)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if got != (emptyOK{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestParseJSON_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{`))
	_, err := ParseJSON[payload](req)
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error code, got %v (%v)", perr.CodeOf(err), err)
	}
}

func TestParseJSON_UnknownField(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"tenant_id":"acme","limit":3,"boom":1}`))
	_, err := ParseJSON[payload](req) // DisallowUnknown default true
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error for unknown field, got %v (%v)", perr.CodeOf(err), err)
	}
}

func TestParseJSON_TrailingData(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"tenant_id":"acme","limit":1} {"tenant_id":"x"}`))
	_, err := ParseJSON[payload](req)
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error for trailing data, got %v (%v)", perr.CodeOf(err), err)
	}
}

func TestParseJSON_MoreSeam(t *testing.T) {
	kit.Serial(t)
	kit.Swap(t, &jsonMore, func(*json.Decoder) bool { return true })

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"tenant_id":"acme","limit":1}`))
	_, err := ParseJSON[payload](req)
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error from the trailing-data seam, got %v (%v)", perr.CodeOf(err), err)
	}
}

func TestParseJSON_ValidationFailure(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"tenant_id":"acme","limit":0}`))
	_, err := ParseJSON[payload](req)
	if perr.CodeOf(err) != perr.ErrorCodeValidation {
		t.Fatalf("expected validation error code, got %v (%v)", perr.CodeOf(err), err)
	}
	if !strings.Contains(err.Error(), "limit") {
		t.Fatalf("message should name the json field, got %q", err.Error())
	}
}

func TestIdentNameTag(t *testing.T) {
	good := []string{"a", "orders", "order_lines_v2", "t_" + strings.Repeat("x", 60)}
	bad := []string{"", "Orders", "1orders", "order-lines", "orders;drop", "a" + strings.Repeat("x", 63)}

	type probe struct {
		Name string `json:"name" validate:"ident_name"`
	}
	v := Get().Validator
	for _, s := range good {
		if err := v.Struct(probe{Name: s}); err != nil {
			t.Fatalf("%q should pass: %v", s, err)
		}
	}
	for _, s := range bad {
		if err := v.Struct(probe{Name: s}); err == nil {
			t.Fatalf("%q should fail", s)
		}
	}
}

func TestJSONMiddlewareAndFromContext(t *testing.T) {
	var seen *payload
	h := JSON[payload]()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext[payload](r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader(`{"tenant_id":"acme","limit":2}`)))
	if seen == nil || seen.Tenant != "acme" || seen.Limit != 2 {
		t.Fatalf("payload not threaded through context: %+v", seen)
	}

	// a parse failure short-circuits before the handler
	seen = nil
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest("POST", "/", strings.NewReader(`{`)))
	if seen != nil {
		t.Fatalf("handler ran on invalid payload")
	}
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec2.Code)
	}
}
