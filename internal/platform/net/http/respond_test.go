package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "strata/internal/platform/errors"
	snet "strata/internal/platform/net"
	phttp "strata/internal/platform/net/http"
)

// helper to build a request with a request_id in context
func reqWithReqID(method, path, rid string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(snet.WithRequest(req.Context(), rid, "")) // tenant empty
	return req
}

func TestJSONAndStatusHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	phttp.JSON(rec, http.StatusTeapot, map[string]any{"k": "v"})
	if rec.Code != http.StatusTeapot {
		t.Fatalf("JSON status: expected 418, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Fatalf("expected content-type set")
	}

	rec2 := httptest.NewRecorder()
	phttp.JSONStatus(rec2, http.StatusAccepted)
	if rec2.Code != http.StatusAccepted {
		t.Fatalf("JSONStatus: expected 202, got %d", rec2.Code)
	}
}

func TestRespondOKAcceptedNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	req := reqWithReqID("GET", "/x", "rid-1")
	phttp.RespondOK(rec, req, map[string]string{"a": "b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("RespondOK code: %d", rec.Code)
	}
	var env phttp.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if env.StatusCode != 200 || env.RequestID != "rid-1" || env.Data == nil {
		t.Fatalf("bad envelope: %+v", env)
	}

	recA := httptest.NewRecorder()
	phttp.RespondAccepted(recA, req, map[string]int{"id": 7})
	if recA.Code != http.StatusAccepted {
		t.Fatalf("RespondAccepted code: %d", recA.Code)
	}

	// NoContent should not write a JSON body
	recN := httptest.NewRecorder()
	phttp.RespondNoContent(recN, req)
	if recN.Code != http.StatusNoContent {
		t.Fatalf("RespondNoContent code: %d", recN.Code)
	}
	if recN.Body.Len() != 0 {
		t.Fatalf("RespondNoContent should have empty body, got %q", recN.Body.String())
	}
}

func TestRespondList(t *testing.T) {
	rec := httptest.NewRecorder()
	req := reqWithReqID("GET", "/list", "rid-2")
	items := []int{1, 2, 3}
	phttp.RespondList(rec, req, items, 30, 2, 15, "cur123")
	if rec.Code != http.StatusOK {
		t.Fatalf("RespondList code: %d", rec.Code)
	}
	var env phttp.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Page == nil || env.Page.Total != 30 || env.Page.Page != 2 || env.Page.PageSize != 15 || env.Page.Cursor != "cur123" {
		t.Fatalf("bad page block: %+v", env.Page)
	}
}

func TestRespondErrorMapsCodes(t *testing.T) {
	rec := httptest.NewRecorder()
	req := reqWithReqID("POST", "/v1/reconcile", "rid-3")
	phttp.RespondError(rec, req, perr.Confirmationf("token mismatch"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("RespondError code: %d", rec.Code)
	}
	var env phttp.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Code != perr.ErrorCodeConfirmation || env.Error == "" {
		t.Fatalf("bad error envelope: %+v", env)
	}
	if env.RequestID != "rid-3" {
		t.Fatalf("request id lost: %+v", env)
	}
}

func TestHandleResponseStyle(t *testing.T) {
	h := phttp.Handle(func(r *http.Request) phttp.Response {
		if r.URL.Query().Get("boom") != "" {
			return phttp.Error(perr.NotFoundf("no such table"))
		}
		return phttp.OK(map[string]string{"outcome": "committed"})
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, reqWithReqID("GET", "/x", "rid-4"))
	if rec.Code != http.StatusOK {
		t.Fatalf("ok branch code: %d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, reqWithReqID("GET", "/x?boom=1", "rid-5"))
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("error branch code: %d", rec2.Code)
	}
}
