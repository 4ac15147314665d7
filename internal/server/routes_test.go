package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestSaveRating(t *testing.T) {
	srv := testServer(t, 42)

	w := do(t, srv, "POST", "/api/nodes/42/ratings", `{"user":"alice","score":0.8}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp struct {
		NodeID  string           `json:"node_id"`
		Ratings []map[string]any `json:"ratings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NodeID != "42" || len(resp.Ratings) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Ratings[0]["user"] != "alice" || resp.Ratings[0]["score"] != 0.8 {
		t.Errorf("rating = %v", resp.Ratings[0])
	}
}

func TestSaveRatingAnonymous(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/nodes/7/ratings", `{"score":0.1,"timestamp":"2024-01-01T00:00:00"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"user":"anonymous"`) {
		t.Errorf("body = %s, want anonymous user", w.Body.String())
	}
}

func TestSaveRatingRejectsBadInput(t *testing.T) {
	srv := testServer(t)

	bodies := []string{
		`not json`,
		`{"user":"a"}`,
		`{"user":"a","score":1.5}`,
		`{"user":"a","score":-0.1}`,
		`{"user":"a","score":0.5,"timestamp":"yesterday"}`,
	}
	for _, body := range bodies {
		w := do(t, srv, "POST", "/api/nodes/1/ratings", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}

	if w := do(t, srv, "GET", "/api/nodes/1/ratings", ""); w.Code != http.StatusNotFound {
		t.Errorf("rejected ratings were stored: status = %d", w.Code)
	}
}

func TestNodeRatingsDeduplicated(t *testing.T) {
	srv := testServer(t)

	do(t, srv, "POST", "/api/nodes/5/ratings", `{"user":"a","score":0.2,"timestamp":"2024-01-01T00:00:00Z"}`)
	do(t, srv, "POST", "/api/nodes/5/ratings", `{"user":"a","score":0.9,"timestamp":"2024-02-01T00:00:00Z"}`)

	w := do(t, srv, "GET", "/api/nodes/5/ratings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Ratings []map[string]any `json:"ratings"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Ratings) != 1 || resp.Ratings[0]["score"] != 0.9 {
		t.Errorf("ratings = %v, want only the latest", resp.Ratings)
	}
}

func TestNodeScore(t *testing.T) {
	srv := testServer(t)

	today := time.Now().UTC().Format(time.RFC3339)
	fifteen := time.Now().UTC().Add(-15*24*time.Hour - time.Hour).Format(time.RFC3339)
	do(t, srv, "POST", "/api/nodes/42/ratings", `{"user":"a","score":1.0,"timestamp":"`+today+`"}`)
	do(t, srv, "POST", "/api/nodes/42/ratings", `{"user":"b","score":0.0,"timestamp":"`+fifteen+`"}`)

	w := do(t, srv, "GET", "/api/nodes/42/score", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Score   float64 `json:"score"`
		Ratings int     `json:"ratings"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if math.Abs(resp.Score-0.667) > 0.01 || resp.Ratings != 2 {
		t.Errorf("resp = %+v, want score 0.667 over 2 ratings", resp)
	}

	w = do(t, srv, "GET", "/api/nodes/999/score", "")
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Score != 0.5 || resp.Ratings != 0 {
		t.Errorf("unrated node = %+v, want default 0.5", resp)
	}
}

func TestRecomputeAndScores(t *testing.T) {
	srv := testServer(t, 1)

	if w := do(t, srv, "GET", "/api/scores", ""); w.Code != http.StatusNotFound {
		t.Errorf("scores before recompute: status = %d, want 404", w.Code)
	}

	do(t, srv, "POST", "/api/nodes/1/ratings", `{"user":"a","score":0.3}`)
	do(t, srv, "POST", "/api/nodes/77/ratings", `{"user":"a","score":0.3}`)

	w := do(t, srv, "POST", "/api/recompute", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var rep reportResponse
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Applied != 1 || len(rep.Warnings) != 1 || rep.Scores["1"] != 0.3 {
		t.Errorf("report = %+v", rep)
	}

	w = do(t, srv, "GET", "/api/scores", "")
	if w.Code != http.StatusOK {
		t.Fatalf("scores status = %d", w.Code)
	}
	var last reportResponse
	json.Unmarshal(w.Body.Bytes(), &last)
	if last.Applied != rep.Applied {
		t.Errorf("last report = %+v, want %+v", last, rep)
	}
}
