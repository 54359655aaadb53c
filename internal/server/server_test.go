package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/config"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/flow"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/session"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/store"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/types"
)

type noopClassifier struct{}

func (noopClassifier) Classify(ctx context.Context, systemPrompt, utterance string) (string, error) {
	return "unknown", nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Config{Port: "0", AllowedOrigin: "*", MaxStepsPerPass: 100}
	resolver := flow.NewResolver(noopClassifier{}, st, "")
	engine := flow.NewEngine(st, session.NewStore(), resolver, cfg.MaxStepsPerPass)
	return NewServer(cfg, st, engine)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestGetFlowBeforeUpload(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/flow", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateFlowRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed body", `{"flow":`},
		{"missing flow field", `{}`},
		{"flow fails validation", `{"flow": {"startStep": "x", "steps": []}}`},
		{"flow string not json", `{"flow": "not json"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/flow", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
		})
	}

	// Nothing must have been stored.
	rec := doRequest(t, s, http.MethodGet, "/api/flow", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("rejected uploads must not be persisted, got %d", rec.Code)
	}
}

func TestCreateAndFetchFlow(t *testing.T) {
	s := newTestServer(t)

	doc := `{"startStep":"m1","steps":[{"id":"m1","type":"message","text":"Hi!","next":"w1"},{"id":"w1","type":"wait","next":"i1"},{"id":"i1","type":"intent","rules":[{"name":"greet","phrases":["hello"],"next":"m1"}]}]}`
	rec := doRequest(t, s, http.MethodPost, "/api/flow", `{"flow": `+doc+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp types.CreateFlowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.FlowID == 0 {
		t.Error("expected non-zero flow id")
	}

	rec = doRequest(t, s, http.MethodGet, "/api/flow", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stored, uploaded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("stored flow is not valid JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(doc), &uploaded); err != nil {
		t.Fatal(err)
	}
	if stored["startStep"] != uploaded["startStep"] {
		t.Errorf("stored flow differs from upload: %v", stored)
	}
}

func TestCreateFlowAcceptsStringDocument(t *testing.T) {
	s := newTestServer(t)

	doc := `{"startStep":"m1","steps":[{"id":"m1","type":"message","text":"Hi!"}]}`
	body, err := json.Marshal(map[string]string{"flow": doc})
	if err != nil {
		t.Fatal(err)
	}
	rec := doRequest(t, s, http.MethodPost, "/api/flow", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestFlowReplacement(t *testing.T) {
	s := newTestServer(t)

	docA := `{"startStep":"a","steps":[{"id":"a","type":"message","text":"A"}]}`
	docB := `{"startStep":"b","steps":[{"id":"b","type":"message","text":"B"}]}`

	for _, doc := range []string{docA, docB} {
		rec := doRequest(t, s, http.MethodPost, "/api/flow", `{"flow": `+doc+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("upload failed: %d (%s)", rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/flow", "")
	var stored map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatal(err)
	}
	if stored["startStep"] != "b" {
		t.Errorf("expected document B to be current, got %v", stored["startStep"])
	}
}

func TestListEndpointsEmpty(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/conversations", "/api/chats"} {
		rec := doRequest(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
			t.Fatalf("%s: expected a JSON array, got %q", path, rec.Body.String())
		}
		if len(items) != 0 {
			t.Errorf("%s: expected empty list, got %d items", path, len(items))
		}
	}
}
