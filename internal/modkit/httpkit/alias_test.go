package httpkit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	perr "strata/internal/platform/errors"
	phttp "strata/internal/platform/net/http"
)

// run executes a Handler and returns status code and body
func run(h Handler, r *http.Request) (int, string) {
	rec := httptest.NewRecorder()
	h(rec, r)
	res := rec.Result()
	defer func() { _ = res.Body.Close() }()

	b, _ := io.ReadAll(res.Body)
	return rec.Code, string(b)
}

func TestAliases_SimpleConstructors(t *testing.T) {
	if v := reflect.ValueOf(OK("x")); v.IsZero() {
		t.Fatal("OK returned zero value")
	}
	if v := reflect.ValueOf(Accepted(123)); v.IsZero() {
		t.Fatal("Accepted returned zero value")
	}
	if v := reflect.ValueOf(NoContent()); v.IsZero() {
		t.Fatal("NoContent returned zero value")
	}
	if v := reflect.ValueOf(Error(perr.NotFoundf("nope"))); v.IsZero() {
		t.Fatal("Error returned zero value")
	}
}

func TestCall_WrapsValuesAndErrors(t *testing.T) {
	ok := Call(func(*http.Request) (any, error) { return map[string]int{"n": 1}, nil })
	code, body := run(ok, httptest.NewRequest("GET", "/x", nil))
	if code != http.StatusOK || !strings.Contains(body, `"n":1`) {
		t.Fatalf("ok branch: %d %s", code, body)
	}

	fail := Call(func(*http.Request) (any, error) { return nil, perr.NotFoundf("gone") })
	code, body = run(fail, httptest.NewRequest("GET", "/x", nil))
	if code != http.StatusNotFound || !strings.Contains(body, "gone") {
		t.Fatalf("error branch: %d %s", code, body)
	}

	// a Response return value passes through untouched
	passthrough := Call(func(*http.Request) (any, error) { return Accepted("later"), nil })
	code, _ = run(passthrough, httptest.NewRequest("GET", "/x", nil))
	if code != http.StatusAccepted {
		t.Fatalf("passthrough: %d", code)
	}
}

func TestHandle_PassThrough(t *testing.T) {
	h := Handle(func(*http.Request) Response { return NoContent() })
	code, body := run(h, httptest.NewRequest("DELETE", "/x", nil))
	if code != http.StatusNoContent || body != "" {
		t.Fatalf("got %d %q", code, body)
	}
}

func TestSugarAndMountUnder(t *testing.T) {
	r := phttp.AdaptChi(chi.NewRouter())

	var mwHits int
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			mwHits++
			next.ServeHTTP(w, req)
		})
	}

	MountUnder(r, "/v1", []func(http.Handler) http.Handler{mw}, func(api Router) {
		Get(api, "/ping", func(*http.Request) (any, error) { return "pong", nil })
		Post(api, "/kick", func(*http.Request) (any, error) { return nil, perr.Conflictf("busy") })
		type echoIn struct {
			K string `json:"k"`
		}
		PostJSON(api, "/echo", func(_ *http.Request, in echoIn) (any, error) { return in, nil })
	})

	srv := httptest.NewServer(r.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/ping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || mwHits != 1 {
		t.Fatalf("get: %d, mw hits %d", resp.StatusCode, mwHits)
	}

	resp, err = http.Post(srv.URL+"/v1/kick", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("post: %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/v1/echo", "application/json", strings.NewReader(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	defer resp.Body.Close()
	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, _ := env.Data.(map[string]any)
	if data["k"] != "v" {
		t.Fatalf("echo payload: %+v", env.Data)
	}
}
