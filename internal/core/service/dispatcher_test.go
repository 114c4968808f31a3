package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"testing"

	"upscaler/internal/core/domain"
	"upscaler/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	name        string
	min         float64
	max         float64
	availErr    error
	availPanics bool
	result      image.Image
	err         error
	panics      bool
	invocations int
	availChecks int
}

func (m *MockBackend) Name() string {
	return m.name
}

func (m *MockBackend) IsAvailable(_ context.Context) error {
	m.availChecks++
	if m.availPanics {
		panic("mock availability panic")
	}
	return m.availErr
}

func (m *MockBackend) ScaleRange() (float64, float64) {
	return m.min, m.max
}

func (m *MockBackend) Upscale(_ context.Context, _ image.Image, _ float64) (image.Image, error) {
	m.invocations++
	if m.panics {
		panic("mock invocation panic")
	}
	return m.result, m.err
}

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7 % 256)
	}
	return img
}

func baselineMock(w, h int, scale float64) *MockBackend {
	return &MockBackend{
		name:   domain.BackendClassical,
		min:    1.0,
		max:    16.0,
		result: testImage(int(math.Round(float64(w)*scale)), int(math.Round(float64(h)*scale))),
	}
}

func newTestDispatcher(tiers map[domain.QualityTier][]port.Backend) *UpscaleDispatcher {
	pipeline := NewPipeline(domain.DefaultPostProcessConfig())
	return NewUpscaleDispatcher(Tiers{order: tiers}, pipeline, NewStatsTracker(), 0, 0)
}

func TestUpscaleBaselineWins(t *testing.T) {
	baseline := baselineMock(10, 10, 2.0)
	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierFast: {baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierFast})
	require.NoError(t, err)

	assert.Equal(t, domain.BackendClassical, res.Backend)
	assert.Equal(t, 20, res.Image.Bounds().Dx())
	assert.Equal(t, 20, res.Image.Bounds().Dy())
	assert.Empty(t, res.Attempts)
}

func TestUpscaleFallsBackWhenUnavailable(t *testing.T) {
	neural := &MockBackend{name: "neural", min: 1, max: 4,
		availErr: errors.New("model weights absent")}
	baseline := baselineMock(10, 10, 2.0)

	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierHigh: {neural, baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierHigh})
	require.NoError(t, err)

	assert.Equal(t, domain.BackendClassical, res.Backend)
	assert.Zero(t, neural.invocations)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "neural", res.Attempts[0].Backend)
	assert.Contains(t, res.Attempts[0].Reason, "model weights absent")
}

func TestUpscaleFallsBackWhenInvocationFails(t *testing.T) {
	neural := &MockBackend{name: "neural", min: 1, max: 4,
		err: errors.New("out of memory")}
	baseline := baselineMock(10, 10, 2.0)

	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierHigh: {neural, baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierHigh})
	require.NoError(t, err)

	assert.Equal(t, domain.BackendClassical, res.Backend)
	assert.Equal(t, 1, neural.invocations)
	require.Len(t, res.Attempts, 1)
	assert.Contains(t, res.Attempts[0].Reason, "out of memory")
}

func TestUpscaleFallsBackOnPanic(t *testing.T) {
	neural := &MockBackend{name: "neural", min: 1, max: 4, panics: true}
	flaky := &MockBackend{name: "flaky", min: 1, max: 4, availPanics: true}
	baseline := baselineMock(10, 10, 2.0)

	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierHighest: {neural, flaky, baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierHighest})
	require.NoError(t, err)

	assert.Equal(t, domain.BackendClassical, res.Backend)
	require.Len(t, res.Attempts, 2)
	assert.Contains(t, res.Attempts[0].Reason, "panic")
	assert.Contains(t, res.Attempts[1].Reason, "panic")
}

func TestUpscaleFallsBackOnMalformedOutput(t *testing.T) {
	// Available, succeeds, but returns the wrong dimensions.
	neural := &MockBackend{name: "neural", min: 1, max: 4, result: testImage(5, 5)}
	baseline := baselineMock(10, 10, 2.0)

	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierHigh: {neural, baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierHigh})
	require.NoError(t, err)

	assert.Equal(t, domain.BackendClassical, res.Backend)
	require.Len(t, res.Attempts, 1)
	assert.Contains(t, res.Attempts[0].Reason, "expected 20x20")
}

func TestUpscaleSkipsOutOfRangeScaleWithoutChecking(t *testing.T) {
	limited := &MockBackend{name: "limited", min: 1, max: 2, result: testImage(30, 30)}
	baseline := baselineMock(10, 10, 3.0)

	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierHigh: {limited, baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 3.0, Tier: domain.TierHigh})
	require.NoError(t, err)

	assert.Equal(t, domain.BackendClassical, res.Backend)
	assert.Zero(t, limited.availChecks)
	assert.Zero(t, limited.invocations)
	require.Len(t, res.Attempts, 1)
	assert.Contains(t, res.Attempts[0].Reason, "outside supported range")
}

func TestUpscaleInvalidScale(t *testing.T) {
	tests := []struct {
		name  string
		scale float64
	}{
		{name: "one", scale: 1.0},
		{name: "below one", scale: 0.5},
		{name: "zero", scale: 0},
		{name: "negative", scale: -2},
		{name: "above max", scale: 9.0},
		{name: "NaN", scale: math.NaN()},
		{name: "positive infinity", scale: math.Inf(1)},
		{name: "negative infinity", scale: math.Inf(-1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			baseline := baselineMock(10, 10, 2.0)
			d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
				domain.TierFast: {baseline},
			})

			_, err := d.Upscale(context.Background(), testImage(10, 10),
				domain.UpscaleRequest{Scale: tc.scale, Tier: domain.TierFast})
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Zero(t, baseline.availChecks)
			assert.Zero(t, baseline.invocations)
		})
	}
}

func TestUpscaleInvalidImage(t *testing.T) {
	baseline := baselineMock(10, 10, 2.0)
	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierFast: {baseline},
	})

	_, err := d.Upscale(context.Background(), nil, domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierFast})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = d.Upscale(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0)),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierFast})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = d.Upscale(context.Background(), testImage(domain.DefaultMaxDimension+1, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierFast})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Zero(t, baseline.invocations)
}

func TestUpscaleUnknownTier(t *testing.T) {
	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierFast: {baselineMock(10, 10, 2.0)},
	})

	_, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: "ultra"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpscaleWithoutPostProcessReturnsRawOutput(t *testing.T) {
	baseline := baselineMock(10, 10, 2.0)
	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierFast: {baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierFast, PostProcess: false})
	require.NoError(t, err)

	assert.Same(t, baseline.result, res.Image)
}

func TestUpscalePostProcessAllStepsDisabledIsIdentity(t *testing.T) {
	baseline := baselineMock(10, 10, 2.0)
	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierFast: {baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10), domain.UpscaleRequest{
		Scale:       2.0,
		Tier:        domain.TierFast,
		PostProcess: true,
		Steps:       &domain.PostProcessConfig{},
	})
	require.NoError(t, err)

	assert.Same(t, baseline.result, res.Image)
}

func TestUpscalePostProcessInvalidStepsKeepsRawOutput(t *testing.T) {
	baseline := baselineMock(10, 10, 2.0)
	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierFast: {baseline},
	})

	res, err := d.Upscale(context.Background(), testImage(10, 10), domain.UpscaleRequest{
		Scale:       2.0,
		Tier:        domain.TierFast,
		PostProcess: true,
		Steps:       &domain.PostProcessConfig{CLAHE: true, CLAHEClip: -1},
	})
	require.NoError(t, err)

	// Never a half-applied chain: the raw backend output comes back.
	assert.Same(t, baseline.result, res.Image)
}

func TestUpscaleDiagnosticTrailListsEveryFailedCandidate(t *testing.T) {
	failures := []port.Backend{
		&MockBackend{name: "onnx", min: 1, max: 4, availErr: errors.New("model weights absent")},
		&MockBackend{name: "huggingface", min: 1, max: 4, err: errors.New("network disabled")},
		&MockBackend{name: "waifu2x", min: 1, max: 2, err: errors.New("network disabled")},
	}
	baseline := baselineMock(100, 100, 2.0)

	d := newTestDispatcher(map[domain.QualityTier][]port.Backend{
		domain.TierHighest: append(failures, baseline),
	})

	res, err := d.Upscale(context.Background(), testImage(100, 100),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierHighest})
	require.NoError(t, err)

	assert.Equal(t, domain.BackendClassical, res.Backend)
	require.Len(t, res.Attempts, len(failures))
	for i, attempt := range res.Attempts {
		assert.Equal(t, failures[i].Name(), attempt.Backend, fmt.Sprintf("attempt %d", i))
		assert.NotEmpty(t, attempt.Reason)
	}
}

func TestUpscaleRecordsStats(t *testing.T) {
	neural := &MockBackend{name: "neural", min: 1, max: 4, err: errors.New("boom")}
	baseline := baselineMock(10, 10, 2.0)
	tracker := NewStatsTracker()
	pipeline := NewPipeline(domain.DefaultPostProcessConfig())

	d := NewUpscaleDispatcher(Tiers{order: map[domain.QualityTier][]port.Backend{
		domain.TierHigh: {neural, baseline},
	}}, pipeline, tracker, 0, 0)

	_, err := d.Upscale(context.Background(), testImage(10, 10),
		domain.UpscaleRequest{Scale: 2.0, Tier: domain.TierHigh})
	require.NoError(t, err)

	stats := tracker.Snapshot()
	assert.Equal(t, uint64(1), stats["neural"].Failures)
	assert.Equal(t, uint64(1), stats[domain.BackendClassical].Wins)
}

func TestUpscalePostProcessPanicKeepsRawOutput(t *testing.T) {
	baseline := baselineMock(10, 10, 2.0)
	// A nil pipeline makes any post-processing attempt panic.
	d := NewUpscaleDispatcher(Tiers{order: map[domain.QualityTier][]port.Backend{
		domain.TierFast: {baseline},
	}}, nil, NewStatsTracker(), 0, 0)

	res, err := d.Upscale(context.Background(), testImage(10, 10), domain.UpscaleRequest{
		Scale:       2.0,
		Tier:        domain.TierFast,
		PostProcess: true,
	})
	require.NoError(t, err)

	assert.Same(t, baseline.result, res.Image)
}
