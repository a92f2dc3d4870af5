package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cardscan/pkg/config"
	"cardscan/pkg/correct"
	"cardscan/pkg/ocr"
	"cardscan/pkg/service"
	"cardscan/pkg/store"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	text string
}

func (s stubRecognizer) Recognize(context.Context, []byte) (ocr.Recognition, error) {
	return ocr.Recognition{Text: s.text, Confidence: 77}, nil
}

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func testImage(t *testing.T) string {
	t.Helper()
	b, err := ocr.EncodePNG(imaging.New(12, 12, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	require.NoError(t, err)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
}

func setupTestServer(t *testing.T, repo store.Repository, s *server) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if repo == nil {
		repo = store.NewFileStore(filepath.Join(t.TempDir(), "results.json"))
	}
	if s == nil {
		s = &server{}
	}
	if s.svc == nil {
		s.svc = service.New(repo, stubRecognizer{text: "Goblin Guide"}, correct.Default())
	}
	if s.jwtSecret == nil {
		s.jwtSecret = []byte("test-secret")
	}
	r := gin.New()
	setupRoutes(r, s)
	return r
}

func TestHealth(t *testing.T) {
	r := setupTestServer(t, nil, nil)
	resp := performRequest(r, http.MethodGet, "/api/health", nil, "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode(t, resp)["status"])
}

func TestCalibrationFlow(t *testing.T) {
	r := setupTestServer(t, nil, nil)
	img := testImage(t)

	// 1. recognize without ground truth: nothing stored
	resp := performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{"image": img}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Goblin Guide", body["text"])
	assert.Equal(t, float64(77), body["confidence"])
	assert.Equal(t, "", body["calibrationId"])

	// 2. with expected text the reading is scored and saved
	resp = performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{
		"image":        img,
		"expectedText": "Goblin Guide",
	}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body = decode(t, resp)
	id, _ := body["calibrationId"].(string)
	require.NotEmpty(t, id)
	verdict := body["verdict"].(map[string]any)
	assert.Equal(t, true, verdict["isCorrect"])

	resp = performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{
		"image":        img,
		"expectedText": "Lightning Bolt",
	}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code)

	// 3. stats
	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/stats", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	stats := decode(t, resp)
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, float64(1), stats["correct"])
	assert.Equal(t, float64(50), stats["accuracy"])

	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/stats/by-text", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var groups []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &groups))
	assert.Len(t, groups, 2)

	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/incorrect", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var bad []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &bad))
	require.Len(t, bad, 1)
	assert.Equal(t, "Lightning Bolt", bad[0]["expectedText"])

	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/results", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	// 4. feedback overrides the stored verdict
	resp = performRequest(r, http.MethodPatch, "/api/ocr/calibration/"+id+"/feedback",
		jsonBody(t, map[string]any{"feedbackType": "containsText", "corrections": "blurry"}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	result := decode(t, resp)["result"].(map[string]any)
	assert.Equal(t, false, result["isCorrect"])
	assert.Equal(t, true, result["containsText"])
	assert.Equal(t, "blurry", result["corrections"])

	resp = performRequest(r, http.MethodPatch, "/api/ocr/calibration/"+id+"/feedback",
		jsonBody(t, map[string]any{"feedbackType": "great"}), "", "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(r, http.MethodPatch, "/api/ocr/calibration/nope/feedback",
		jsonBody(t, map[string]any{"feedbackType": "correct"}), "", "application/json")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// 5. prune with a zero window removes everything
	resp = performRequest(r, http.MethodDelete, "/api/ocr/calibration/old?days=0", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(2), decode(t, resp)["removed"])
}

func TestProcessErrors(t *testing.T) {
	r := setupTestServer(t, nil, nil)

	resp := performRequest(r, http.MethodPost, "/api/ocr/process", strings.NewReader("{"), "", "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{"image": ""}), "", "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, decode(t, resp)["error"], "empty image")

	resp = performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{"image": "%%%"}), "", "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{"image": testImage(t), "preset": "neon"}), "", "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/incorrect?limit=abc", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(r, http.MethodDelete, "/api/ocr/calibration/old?days=-1", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProcessImageTooLarge(t *testing.T) {
	repo := store.NewFileStore(filepath.Join(t.TempDir(), "results.json"))
	svc := service.New(repo, stubRecognizer{}, nil, service.WithMaxImageBytes(10))
	r := setupTestServer(t, repo, &server{svc: svc})

	resp := performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{"image": testImage(t)}), "", "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestProcessBodyOverLimit(t *testing.T) {
	r := setupTestServer(t, nil, &server{maxBodySize: 1000})

	big := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 200<<10))
	resp := performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{"image": big}), "", "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code, resp.Body.String())

	resp = performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{"image": testImage(t)}), "", "application/json")
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestProcessInvalidFilters(t *testing.T) {
	r := setupTestServer(t, nil, nil)
	resp := performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{
		"image":      testImage(t),
		"preprocess": map[string]any{"filters": map[string]any{"gamma": -1}},
	}), "", "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, decode(t, resp)["error"], "gamma")
}

func TestExport(t *testing.T) {
	r := setupTestServer(t, nil, nil)
	resp := performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{
		"image":        testImage(t),
		"expectedText": "Goblin, Guide",
	}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/export", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, "application/json", body["mimeType"])
	assert.True(t, strings.HasPrefix(body["filename"].(string), "calibration-export-"))
	assert.True(t, strings.HasPrefix(body["data"].(string), "[\n"))
	assert.Equal(t, float64(len(body["data"].(string))), body["size"])

	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/export?format=csv&filename=run1&download=1", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `attachment; filename="run1.csv"`, resp.Header().Get("Content-Disposition"))
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Body.String(), `"Goblin, Guide"`)

	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/export?format=xml", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAuthProtectsWrites(t *testing.T) {
	hash, err := hashPassword("s3cret-pass")
	require.NoError(t, err)
	r := setupTestServer(t, nil, &server{adminHash: hash})

	resp := performRequest(r, http.MethodDelete, "/api/ocr/calibration/old?days=30", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodDelete, "/api/ocr/calibration/old?days=30", nil, "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodPost, "/api/login", jsonBody(t, map[string]string{"username": "admin", "password": "wrong"}), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodPost, "/api/login", jsonBody(t, map[string]string{"username": "admin", "password": "s3cret-pass"}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	token, _ := decode(t, resp)["token"].(string)
	require.NotEmpty(t, token)

	resp = performRequest(r, http.MethodDelete, "/api/ocr/calibration/old?days=30", nil, token, "")
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	expired, err := issueToken([]byte("test-secret"), adminUsername, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	resp = performRequest(r, http.MethodDelete, "/api/ocr/calibration/old?days=30", nil, expired, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// reads stay public
	resp = performRequest(r, http.MethodGet, "/api/ocr/calibration/stats", nil, "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	r := setupTestServer(t, nil, nil)
	resp := performRequest(r, http.MethodPost, "/api/login", jsonBody(t, map[string]string{"username": "admin", "password": "x"}), "", "application/json")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCORS(t *testing.T) {
	r := setupTestServer(t, nil, &server{corsOrigin: "http://localhost:5173"})
	resp := performRequest(r, http.MethodOptions, "/api/ocr/process", nil, "", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "http://localhost:5173", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	r := setupTestServer(t, nil, &server{staticDir: dir})

	resp := performRequest(r, http.MethodGet, "/app.js", nil, "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "console.log(1)", resp.Body.String())

	resp = performRequest(r, http.MethodGet, "/calibration/history", nil, "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "app")

	resp = performRequest(r, http.MethodGet, "/api/nothing", nil, "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not found", decode(t, resp)["error"])
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password", "hunter22"})
	require.NoError(t, cmd.Execute())
	h := strings.TrimSpace(out.String())
	assert.NoError(t, authenticate(h, "admin", "hunter22"))
	assert.ErrorIs(t, authenticate(h, "admin", "hunter23"), errInvalidCredentials)
	assert.ErrorIs(t, authenticate(h, "root", "hunter22"), errInvalidCredentials)

	_, err := hashPassword("short")
	assert.Error(t, err)
}

func TestPostgresFlow(t *testing.T) {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cfg := &config.Config{StoreDriver: store.DriverPostgres, DBDSN: os.Getenv("DB_DSN"), DBAutoMigrate: true}
	require.NoError(t, runMigrate(cfg))
	repo, err := initStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	r := setupTestServer(t, repo, nil)
	resp := performRequest(r, http.MethodPost, "/api/ocr/process", jsonBody(t, map[string]any{
		"image":        testImage(t),
		"expectedText": "Goblin Guide",
	}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	id, _ := decode(t, resp)["calibrationId"].(string)
	require.NotEmpty(t, id)

	resp = performRequest(r, http.MethodPatch, "/api/ocr/calibration/"+id+"/feedback",
		jsonBody(t, map[string]any{"feedbackType": "incorrect"}), "", "application/json")
	assert.Equal(t, http.StatusOK, resp.Code)
}
