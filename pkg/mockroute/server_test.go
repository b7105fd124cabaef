package mockroute_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shpitdev/route-snapper/pkg/mockroute"
)

func get(t *testing.T, base string, q url.Values) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(base + mockroute.Path + "?" + q.Encode())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return resp.StatusCode, out
}

func TestMockRoute_ResolvesAndFiltersKeys(t *testing.T) {
	t.Parallel()

	srv := mockroute.New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status, body := get(t, ts.URL, url.Values{
		"xcoord":      {"-84.5"},
		"ycoord":      {"38.05"},
		"return_keys": {"Route, Road_Name"},
		"request_id":  {"7"},
	})
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if body["Request_Id"] != "7" {
		t.Fatalf("unexpected Request_Id: %#v", body["Request_Id"])
	}
	info, ok := body["Route_Info"].(map[string]any)
	if !ok {
		t.Fatalf("expected Route_Info, got %#v", body)
	}
	if len(info) != 2 || info["Route"] != "KY-4" || info["Road_Name"] != "NEW CIRCLE RD" {
		t.Fatalf("unexpected Route_Info: %#v", info)
	}
}

func TestMockRoute_ScriptedBehaviour(t *testing.T) {
	t.Parallel()

	srv := mockroute.New()
	srv.FailFirst("1", 2, http.StatusServiceUnavailable)
	srv.NoRoute("2")
	srv.Reject("3", http.StatusBadRequest)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	q := func(id string) url.Values {
		return url.Values{"xcoord": {"1"}, "ycoord": {"2"}, "request_id": {id}}
	}

	for i := 0; i < 2; i++ {
		if status, _ := get(t, ts.URL, q("1")); status != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected 503, got %d", i+1, status)
		}
	}
	if status, body := get(t, ts.URL, q("1")); status != http.StatusOK || body["Route_Info"] == nil {
		t.Fatalf("expected success on third attempt, got %d %#v", status, body)
	}
	if srv.Attempts("1") != 3 {
		t.Fatalf("expected 3 attempts, got %d", srv.Attempts("1"))
	}

	if _, body := get(t, ts.URL, q("2")); body["Info"] == nil {
		t.Fatalf("expected Info envelope, got %#v", body)
	}
	if status, _ := get(t, ts.URL, q("3")); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if status, _ := get(t, ts.URL, url.Values{"xcoord": {"abc"}, "ycoord": {"2"}}); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}

	if got := len(srv.Calls()); got != 6 {
		t.Fatalf("expected 6 calls, got %d", got)
	}
}
