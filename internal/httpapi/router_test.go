package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/spatial-understanding/internal/service"
	"github.com/menta2k/spatial-understanding/internal/storage/sqlite"
	"github.com/menta2k/spatial-understanding/pkg/client"
	"github.com/menta2k/spatial-understanding/pkg/detection"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVision struct {
	text string
	err  error
}

func (f *fakeVision) Name() string { return "fake" }

func (f *fakeVision) Query(ctx context.Context, req client.QueryRequest) (string, error) {
	return f.text, f.err
}

func newTestRouter(t *testing.T, vision *fakeVision) *gin.Engine {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc, err := service.New(service.Options{
		Detector: detection.NewDetector(vision, detection.Models{}),
		Store:    store,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewRouter(Options{
		Service:        svc,
		CORSOrigins:    []string{"http://localhost:3000"},
		MaxUploadBytes: 1 << 20,
	})
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{200, 100, 50, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "scene.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

type envelope struct {
	Success      bool              `json:"success"`
	Data         []json.RawMessage `json:"data"`
	Error        *string           `json:"error"`
	PredictionID *int64            `json:"prediction_id"`
}

func TestRootAndHealth(t *testing.T) {
	r := newTestRouter(t, &fakeVision{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	var root map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &root); err != nil {
		t.Fatalf("decode root response: %v", err)
	}
	if w.Code != http.StatusOK || root["message"] != "Spatial Understanding API with Tools & Database" {
		t.Errorf("Unexpected root response %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = serve(r, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected request id to be echoed, got %q", got)
	}
}

func TestAnalyzeHistoryAndPredictionLifecycle(t *testing.T) {
	r := newTestRouter(t, &fakeVision{text: `[{"box_2d": [0, 0, 500, 500], "label": "mug"}]`})

	w := serve(r, multipartRequest(t, map[string]string{
		"detect_type":   "2D bounding boxes",
		"target_prompt": "mugs",
		"temperature":   "0.2",
	}, testPNG(t, 64, 48)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var env envelope
	decode(t, w, &env)
	if !env.Success || env.PredictionID == nil || len(env.Data) != 1 {
		t.Fatalf("Unexpected envelope %s", w.Body.String())
	}
	id := *env.PredictionID
	path := "/prediction/" + jsonNumber(id)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/history?limit=10", nil))
	var history []PredictionSummary
	decode(t, w, &history)
	if len(history) != 1 || history[0].ID != id || history[0].TargetPrompt != "mugs" || history[0].ResultCount != 1 {
		t.Errorf("Unexpected history %s", w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/history?detect_type=Points", nil))
	decode(t, w, &history)
	if len(history) != 0 {
		t.Errorf("Expected empty filtered history, got %d", len(history))
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var rec PredictionDetail
	decode(t, w, &rec)
	if rec.Temperature != 0.2 || rec.DetectType != "2D bounding boxes" || !strings.Contains(string(rec.Results), "mug") {
		t.Errorf("Unexpected prediction %+v", rec)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, path+"/overlay?format=jpg", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Unexpected overlay response %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, path+"/thumbnail?size=16", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Unexpected thumbnail response %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	// box covers the top-left quarter of a 64x48 image shown at native size
	w = serve(r, httptest.NewRequest(http.MethodGet, path+"/hit?x=10&y=10&width=64&height=48", nil))
	if w.Body.String() != `{"index":0}` {
		t.Errorf("Expected index 0, got %s", w.Body.String())
	}
	w = serve(r, httptest.NewRequest(http.MethodGet, path+"/hit?x=60&y=40&width=64&height=48", nil))
	if w.Body.String() != `{"index":null}` {
		t.Errorf("Expected null index, got %s", w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":1`) {
		t.Errorf("Unexpected stats %s", w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodDelete, path, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Prediction deleted successfully") {
		t.Errorf("Unexpected delete response %d %s", w.Code, w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Code != http.StatusNotFound || w.Body.String() != `{"detail":"Prediction not found"}` {
		t.Errorf("Expected 404 detail, got %d %s", w.Code, w.Body.String())
	}
	w = serve(r, httptest.NewRequest(http.MethodDelete, path, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestAnalyzeModelFailureReturnsEnvelope(t *testing.T) {
	r := newTestRouter(t, &fakeVision{text: "I cannot see anything"})

	w := serve(r, multipartRequest(t, map[string]string{"detect_type": "Points"}, testPNG(t, 8, 8)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var env envelope
	decode(t, w, &env)
	if env.Success || env.Error == nil || len(env.Data) != 0 {
		t.Errorf("Expected failure envelope, got %s", w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if !strings.Contains(w.Body.String(), `"failed":1`) {
		t.Errorf("Expected failed prediction to be stored, got %s", w.Body.String())
	}
}

func TestAnalyzeBadInput(t *testing.T) {
	r := newTestRouter(t, &fakeVision{text: "[]"})

	tests := []struct {
		name   string
		fields map[string]string
		file   []byte
		status int
	}{
		{"missing detect type", map[string]string{}, testPNG(t, 4, 4), http.StatusBadRequest},
		{"unknown detect type", map[string]string{"detect_type": "Lines"}, testPNG(t, 4, 4), http.StatusBadRequest},
		{"bad temperature", map[string]string{"detect_type": "Points", "temperature": "hot"}, testPNG(t, 4, 4), http.StatusBadRequest},
		{"temperature out of range", map[string]string{"detect_type": "Points", "temperature": "3"}, testPNG(t, 4, 4), http.StatusBadRequest},
		{"missing file", map[string]string{"detect_type": "Points"}, nil, http.StatusBadRequest},
		{"not an image", map[string]string{"detect_type": "Points"}, []byte("hello"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, multipartRequest(t, tt.fields, tt.file))
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			var env envelope
			decode(t, w, &env)
			if env.Success || env.Error == nil {
				t.Errorf("Expected failure envelope, got %s", w.Body.String())
			}
		})
	}
}

func TestBadQueryParameters(t *testing.T) {
	r := newTestRouter(t, &fakeVision{})

	for _, path := range []string{
		"/history?limit=0",
		"/history?offset=-1",
		"/history?detect_type=Lines",
		"/prediction/abc",
		"/prediction/1/overlay?format=gif",
		"/prediction/1/thumbnail?size=0",
		"/prediction/1/hit?x=1&y=1&width=0&height=10",
		"/prediction/1/hit?x=a&y=1&width=10&height=10",
	} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t, &fakeVision{})

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := serve(r, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Unexpected allow origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Expected credentials to be allowed")
	}
	if !strings.Contains(strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "content-type") {
		t.Errorf("Unexpected allow headers %q", w.Header().Get("Access-Control-Allow-Headers"))
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete) {
		t.Errorf("Expected DELETE in allow methods, got %q", w.Header().Get("Access-Control-Allow-Methods"))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = serve(r, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for an allowed origin, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Unexpected allow origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(strings.ToLower(w.Header().Get("Access-Control-Expose-Headers")), strings.ToLower(RequestIDHeader)) {
		t.Errorf("Expected %s to be exposed, got %q", RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://other.example")
	w = serve(r, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for an unknown origin, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected no CORS headers for an unknown origin")
	}
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"*"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	w := serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://anywhere.example" {
		t.Errorf("Expected echoed origin, got %q", got)
	}
}
