package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"upscaler/internal/core/domain"
	"upscaler/internal/core/port"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"

	// webp uploads decode through the registered format.
	_ "golang.org/x/image/webp"
)

const diagnosticsTimeout = 5 * time.Second

type HTTP struct {
	dispatcher port.Dispatcher
	diagnoser  port.Diagnoser
	defaults   domain.PostProcessConfig
	maxUpload  int64
}

func NewHTTP(dispatcher port.Dispatcher, diagnoser port.Diagnoser,
	defaults domain.PostProcessConfig, maxUpload int64) *HTTP {
	return &HTTP{dispatcher: dispatcher, diagnoser: diagnoser, defaults: defaults, maxUpload: maxUpload}
}

func (h *HTTP) Register(r *gin.Engine) {
	r.SetHTMLTemplate(template.Must(template.New("index").Parse(indexPage)))

	r.GET("/", h.Index)
	r.POST("/upscale", h.Upscale)
	r.GET("/api/diagnostics", h.Diagnostics)
	r.GET("/healthz", h.Health)
}

// RequestID tags every request with a generated ID for response headers
// and log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.NewV4()
		if err != nil {
			log.Warn().Err(err).Msg("failed generating request ID")
			c.Next()
			return
		}

		c.Header("X-Request-ID", id.String())
		c.Set("requestID", id.String())
		c.Next()
	}
}

// AccessLog writes one structured line per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("requestID", c.GetString("requestID")).
			Msg("request handled")
	}
}

func (h *HTTP) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{
		"Tiers":    []domain.QualityTier{domain.TierFast, domain.TierHigh, domain.TierHighest},
		"Defaults": h.defaults,
	})
}

func (h *HTTP) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *HTTP) Diagnostics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), diagnosticsTimeout)
	defer cancel()

	c.JSON(http.StatusOK, h.diagnoser.Report(ctx))
}

func (h *HTTP) Upscale(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge,
				gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", h.maxUpload)})
			return
		}

		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image upload"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image upload"})
		return
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "undecodable image"})
		return
	}

	req, err := h.parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.dispatcher.Upscale(c.Request.Context(), img, req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		log.Error().Err(err).Msg("upscale failed unexpectedly")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upscale failed"})
		return
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, result.Image, imaging.PNG); err != nil {
		log.Error().Err(err).Msg("failed encoding result image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed encoding result"})
		return
	}

	c.Header("X-Upscale-Backend", result.Backend)
	if trail := formatAttempts(result.Attempts); trail != "" {
		c.Header("X-Upscale-Attempts", trail)
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *HTTP) parseRequest(c *gin.Context) (domain.UpscaleRequest, error) {
	var req domain.UpscaleRequest

	defaultScale := strconv.FormatFloat(domain.DefaultScale, 'f', -1, 64)
	scale, err := strconv.ParseFloat(c.DefaultPostForm("scale", defaultScale), 64)
	if err != nil {
		return req, fmt.Errorf("%w: scale must be a number", domain.ErrInvalidInput)
	}
	req.Scale = scale

	tier, err := domain.ParseQualityTier(c.DefaultPostForm("tier", string(domain.TierHigh)))
	if err != nil {
		return req, err
	}
	req.Tier = tier

	req.PostProcess = parseToggle(c.PostForm("post_process"), true)

	steps := h.defaults
	overridden := false
	for form, target := range map[string]*bool{
		"denoise":   &steps.Denoise,
		"clahe":     &steps.CLAHE,
		"bilateral": &steps.Bilateral,
		"sharpen":   &steps.Sharpen,
	} {
		if v, ok := c.GetPostForm(form); ok {
			*target = parseToggle(v, true)
			overridden = true
		}
	}
	if overridden {
		req.Steps = &steps
	}

	return req, nil
}

// parseToggle accepts bools plus the "on" an HTML checkbox submits.
func parseToggle(v string, def bool) bool {
	if v == "" {
		return def
	}
	if strings.EqualFold(v, "on") {
		return true
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func formatAttempts(attempts []domain.Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Backend, a.Reason)
	}
	return strings.Join(parts, "; ")
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Image Upscaler</title></head>
<body>
<h1>Image Upscaler</h1>
<form action="/upscale" method="post" enctype="multipart/form-data">
  <p><input type="file" name="image" accept="image/*" required></p>
  <p><label>Scale: <input type="number" name="scale" min="2" max="8" step="0.5" value="2"></label></p>
  <p><label>Quality:
    <select name="tier">
      {{range .Tiers}}<option value="{{.}}">{{.}}</option>{{end}}
    </select>
  </label></p>
  <p><label><input type="checkbox" name="post_process" checked> Post-processing</label></p>
  <fieldset>
    <legend>Post-processing steps</legend>
    <label><input type="checkbox" name="denoise" {{if .Defaults.Denoise}}checked{{end}}> Median denoise</label>
    <label><input type="checkbox" name="clahe" {{if .Defaults.CLAHE}}checked{{end}}> CLAHE contrast</label>
    <label><input type="checkbox" name="bilateral" {{if .Defaults.Bilateral}}checked{{end}}> Bilateral smoothing</label>
    <label><input type="checkbox" name="sharpen" {{if .Defaults.Sharpen}}checked{{end}}> Sharpen</label>
  </fieldset>
  <p><button type="submit">Upscale</button></p>
</form>
<p><a href="/api/diagnostics">Backend diagnostics</a></p>
</body>
</html>`
