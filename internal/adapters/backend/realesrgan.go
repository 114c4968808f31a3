package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"upscaler/internal/adapters/file"
	"upscaler/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// RealESRGANAPI wraps a hosted Real-ESRGAN endpoint. The request
// carries the image as a data URI, the response points at the result
// image, which is downloaded separately.
type RealESRGANAPI struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewRealESRGANAPI(endpoint, apiKey string, timeout time.Duration) *RealESRGANAPI {
	return &RealESRGANAPI{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type upscaleRequest struct {
	ImageURL string  `json:"image_url"`
	Scale    float64 `json:"scale"`
}

type upscaleResponse struct {
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
}

func (r *RealESRGANAPI) Name() string {
	return domain.BackendRealESRGAN
}

func (r *RealESRGANAPI) IsAvailable(_ context.Context) error {
	if r.endpoint == "" || r.apiKey == "" {
		return fmt.Errorf("%w: Real-ESRGAN API not configured", domain.ErrBackendUnavailable)
	}

	return nil
}

func (r *RealESRGANAPI) ScaleRange() (float64, float64) {
	return 1.0, 4.0
}

func (r *RealESRGANAPI) Upscale(ctx context.Context, img image.Image, scale float64) (image.Image, error) {
	png, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	apiRequest := upscaleRequest{
		ImageURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Scale:    scale,
	}

	payloadBuf := new(bytes.Buffer)
	if err := json.NewEncoder(payloadBuf).Encode(apiRequest); err != nil {
		return nil, fmt.Errorf("error encoding Real-ESRGAN request: %w", err)
	}

	body, err := r.postRequest(ctx, payloadBuf)
	if err != nil {
		return nil, fmt.Errorf("Real-ESRGAN request failed: %w", err)
	}

	var result upscaleResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("error unmarshalling Real-ESRGAN response: %w", err)
	}

	if result.Image.URL == "" {
		return nil, errors.New("no image returned from Real-ESRGAN response")
	}

	log.Debug().Str("url", result.Image.URL).Msg("downloading Real-ESRGAN result")

	data, err := file.DownloadFile(ctx, result.Image.URL)
	if err != nil {
		return nil, fmt.Errorf("error downloading Real-ESRGAN result: %w", err)
	}

	out, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	w, h := targetSize(img, scale)
	return normalizeSize(out, w, h), nil
}

func (r *RealESRGANAPI) postRequest(ctx context.Context, payloadBuf *bytes.Buffer) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, payloadBuf)
	if err != nil {
		log.Error().Err(err).Msg("error creating POST request for Real-ESRGAN")
		return nil, err
	}

	req.Header.Add("Authorization", "Key "+r.apiKey)
	req.Header.Add("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing Real-ESRGAN request: %w", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from Real-ESRGAN API: %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading Real-ESRGAN response: %w", err)
	}
	return body, nil
}
