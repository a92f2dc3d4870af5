package main

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cardscan/pkg/calibration"
	"cardscan/pkg/export"
	"cardscan/pkg/ocr"
	"cardscan/pkg/service"
	"cardscan/pkg/store"

	"github.com/gin-gonic/gin"
)

// server carries what the handlers need.
type server struct {
	svc         *service.Service
	jwtSecret   []byte
	adminHash   string
	corsOrigin  string
	staticDir   string
	maxBodySize int64
}

func setupRoutes(r *gin.Engine, s *server) {
	r.Use(corsMiddleware(s.corsOrigin))
	if s.maxBodySize > 0 {
		r.Use(bodyLimitMiddleware(s.maxBodySize))
	}

	api := r.Group("/api")
	api.GET("/health", healthHandler)
	if s.adminHash != "" {
		api.POST("/login", s.loginHandler)
	}

	o := api.Group("/ocr")
	o.POST("/process", s.processHandler)
	o.GET("/calibration/stats", s.statsHandler)
	o.GET("/calibration/stats/by-text", s.statsByTextHandler)
	o.GET("/calibration/incorrect", s.incorrectHandler)
	o.GET("/calibration/results", s.resultsHandler)
	o.GET("/calibration/export", s.exportHandler)

	// feedback and pruning change stored data, so they sit behind the token
	// whenever an admin password is configured
	write := o.Group("")
	if s.adminHash != "" {
		write.Use(jwtAuthMiddleware(s.jwtSecret))
	}
	write.PATCH("/calibration/:id/feedback", s.feedbackHandler)
	write.DELETE("/calibration/old", s.pruneHandler)

	if s.staticDir != "" {
		serveSPA(r, s.staticDir)
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) processHandler(c *gin.Context) {
	var req service.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.svc.Process(c.Request.Context(), req)
	if err != nil {
		log.WithError(err).Warn("ocr process failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"text":          resp.Text,
		"confidence":    resp.Confidence,
		"title":         resp.Title,
		"message":       "OCR processed",
		"calibrationId": resp.CalibrationID,
		"verdict":       resp.Verdict,
	})
}

func (s *server) statsHandler(c *gin.Context) {
	sum, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *server) statsByTextHandler(c *gin.Context) {
	groups, err := s.svc.StatsByExpectedText(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (s *server) incorrectHandler(c *gin.Context) {
	limit := service.DefaultIncorrectLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	items, err := s.svc.Incorrect(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) resultsHandler(c *gin.Context) {
	items, err := s.svc.Results(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// exportHandler returns the payload wrapped in JSON, or as an attachment
// when download=1.
func (s *server) exportHandler(c *gin.Context) {
	res, err := s.svc.Export(c.Request.Context(), c.Query("format"), c.Query("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	if dl, _ := strconv.ParseBool(c.Query("download")); dl {
		c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(res.Filename, `"`, "")+`"`)
		c.Data(http.StatusOK, res.MimeType+"; charset=utf-8", []byte(res.Data))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     res.Data,
		"filename": res.Filename,
		"mimeType": res.MimeType,
		"size":     res.Size,
	})
}

func (s *server) feedbackHandler(c *gin.Context) {
	var req service.Feedback
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.svc.UpdateFeedback(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "feedback updated", "result": r})
}

func (s *server) pruneHandler(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
		return
	}
	n, err := s.svc.Prune(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": n})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrImageTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, ocr.ErrEmptyImage),
		errors.Is(err, ocr.ErrInvalidImage),
		errors.Is(err, service.ErrUnknownPreset),
		errors.Is(err, ocr.ErrInvalidOptions),
		errors.Is(err, calibration.ErrInvalidFeedbackType),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, store.ErrInvalidDays):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// bodyLimitMiddleware caps request bodies. Base64 inflates images by a
// third, so the cap is applied with that headroom.
func bodyLimitMiddleware(maxImageBytes int64) gin.HandlerFunc {
	limit := maxImageBytes*4/3 + 64<<10
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// serveSPA serves the built frontend from dir. Unknown /api paths get a JSON
// 404, everything else falls back to index.html.
func serveSPA(r *gin.Engine, dir string) {
	index := filepath.Join(dir, "index.html")
	r.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") || p == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		f := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+p)))
		if st, err := os.Stat(f); err == nil && !st.IsDir() {
			c.File(f)
			return
		}
		c.File(index)
	})
}
