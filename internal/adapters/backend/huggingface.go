package backend

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"upscaler/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// HuggingFace wraps a Hugging Face inference endpoint hosting a
// super-resolution model: raw image bytes in, image bytes out, Bearer
// auth.
type HuggingFace struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHuggingFace(endpoint, token string, timeout time.Duration) *HuggingFace {
	return &HuggingFace{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

func (h *HuggingFace) Name() string {
	return domain.BackendHuggingFace
}

func (h *HuggingFace) IsAvailable(_ context.Context) error {
	if h.endpoint == "" || h.token == "" {
		return fmt.Errorf("%w: Hugging Face endpoint not configured", domain.ErrBackendUnavailable)
	}

	return nil
}

func (h *HuggingFace) ScaleRange() (float64, float64) {
	return 1.0, 4.0
}

func (h *HuggingFace) Upscale(ctx context.Context, img image.Image, scale float64) (image.Image, error) {
	png, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("error creating Hugging Face request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")

	log.Debug().Str("endpoint", h.endpoint).Msg("calling Hugging Face inference API")

	res, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing Hugging Face request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from Hugging Face API: %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading Hugging Face response: %w", err)
	}

	out, err := decodeImage(body)
	if err != nil {
		return nil, err
	}

	w, h2 := targetSize(img, scale)
	return normalizeSize(out, w, h2), nil
}
