package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"upscaler/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func servePNG(t *testing.T, w http.ResponseWriter, width, height int) {
	t.Helper()

	png, err := encodePNG(testImage(width, height))
	require.NoError(t, err)

	w.Header().Set("Content-Type", "image/png")
	_, err = w.Write(png)
	assert.NoError(t, err)
}

func TestRealESRGANAPIUpscale(t *testing.T) {
	tests := []struct {
		name           string
		responseBody   interface{}
		responseStatus int
		resultW        int
		resultH        int
		scale          float64
		wantW          int
		wantErr        bool
	}{
		{
			name:           "success",
			responseStatus: http.StatusOK,
			resultW:        20,
			resultH:        20,
			scale:          2.0,
			wantW:          20,
		},
		{
			name:           "oversized result gets normalized",
			responseStatus: http.StatusOK,
			resultW:        40,
			resultH:        40,
			scale:          1.5,
			wantW:          15,
		},
		{
			name:           "api error",
			responseBody:   "err",
			responseStatus: http.StatusInternalServerError,
			scale:          2.0,
			wantErr:        true,
		},
		{
			name:           "malformed JSON",
			responseBody:   "{not_json}",
			responseStatus: http.StatusOK,
			scale:          2.0,
			wantErr:        true,
		},
		{
			name:           "missing image url",
			responseBody:   map[string]interface{}{"image": map[string]interface{}{}},
			responseStatus: http.StatusOK,
			scale:          2.0,
			wantErr:        true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var srv *httptest.Server
			srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/result.png" {
					servePNG(t, w, tc.resultW, tc.resultH)
					return
				}

				assert.Equal(t, "Key test-api-key", r.Header.Get("Authorization"))

				w.WriteHeader(tc.responseStatus)
				switch b := tc.responseBody.(type) {
				case string:
					w.Write([]byte(b))
				case nil:
					json.NewEncoder(w).Encode(map[string]interface{}{
						"image": map[string]interface{}{"url": srv.URL + "/result.png"},
					})
				default:
					json.NewEncoder(w).Encode(b)
				}
			}))
			defer srv.Close()

			b := NewRealESRGANAPI(srv.URL, "test-api-key", 5*time.Second)

			out, err := b.Upscale(context.Background(), testImage(10, 10), tc.scale)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.wantW, out.Bounds().Dx())
			}
		})
	}
}

func TestRealESRGANAPIAvailability(t *testing.T) {
	configured := NewRealESRGANAPI("https://example.com/api", "key", time.Second)
	assert.NoError(t, configured.IsAvailable(context.Background()))

	missingKey := NewRealESRGANAPI("https://example.com/api", "", time.Second)
	require.ErrorIs(t, missingKey.IsAvailable(context.Background()), domain.ErrBackendUnavailable)

	unconfigured := NewRealESRGANAPI("", "", time.Second)
	require.ErrorIs(t, unconfigured.IsAvailable(context.Background()), domain.ErrBackendUnavailable)
}

func TestRealESRGANAPIName(t *testing.T) {
	b := NewRealESRGANAPI("", "", time.Second)

	assert.Equal(t, domain.BackendRealESRGAN, b.Name())

	min, max := b.ScaleRange()
	assert.Equal(t, 1.0, min)
	assert.Equal(t, 4.0, max)
}
