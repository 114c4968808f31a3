package backend

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"upscaler/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// Waifu2x wraps a waifu2x.udp.jp-style online API: multipart upload in,
// image bytes out. The API only supports small integral factors, so
// fractional requests are resampled to the exact target afterwards.
type Waifu2x struct {
	endpoint   string
	noiseLevel int
	client     *http.Client
}

func NewWaifu2x(endpoint string, noiseLevel int, timeout time.Duration) *Waifu2x {
	return &Waifu2x{
		endpoint:   endpoint,
		noiseLevel: noiseLevel,
		client:     &http.Client{Timeout: timeout},
	}
}

func (w *Waifu2x) Name() string {
	return domain.BackendWaifu2x
}

func (w *Waifu2x) IsAvailable(_ context.Context) error {
	if w.endpoint == "" {
		return fmt.Errorf("%w: waifu2x endpoint not configured", domain.ErrBackendUnavailable)
	}

	return nil
}

func (w *Waifu2x) ScaleRange() (float64, float64) {
	return 1.0, 2.0
}

func (w *Waifu2x) Upscale(ctx context.Context, img image.Image, scale float64) (image.Image, error) {
	png, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	payloadBuf := new(bytes.Buffer)
	writer := multipart.NewWriter(payloadBuf)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("error building waifu2x upload: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return nil, fmt.Errorf("error building waifu2x upload: %w", err)
	}

	apiScale := int(math.Ceil(scale))
	_ = writer.WriteField("scale", strconv.Itoa(apiScale))
	_ = writer.WriteField("noise", strconv.Itoa(w.noiseLevel))
	_ = writer.WriteField("style", "auto")

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("error building waifu2x upload: %w", err)
	}

	log.Debug().Int("scale", apiScale).Int("noise", w.noiseLevel).Msg("calling waifu2x API")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, payloadBuf)
	if err != nil {
		return nil, fmt.Errorf("error creating waifu2x request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing waifu2x request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from waifu2x API: %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading waifu2x response: %w", err)
	}

	out, err := decodeImage(body)
	if err != nil {
		return nil, err
	}

	tw, th := targetSize(img, scale)
	return normalizeSize(out, tw, th), nil
}
