package service

import (
	"context"
	"sort"

	"upscaler/internal/core/domain"
	"upscaler/internal/core/port"

	"github.com/rs/zerolog/log"
)

// Diagnostics runs ahead-of-time availability checks for display
// purposes. This duplicates the dispatcher's own per-call checks on
// purpose: availability can change between a diagnostic run and an
// actual call.
type Diagnostics struct {
	registry port.BackendRegistry
	tracker  port.Tracker
	tiers    map[domain.QualityTier][]string
}

func NewDiagnostics(registry port.BackendRegistry, tracker port.Tracker,
	tiers map[domain.QualityTier][]string) *Diagnostics {
	return &Diagnostics{registry: registry, tracker: tracker, tiers: tiers}
}

func (d *Diagnostics) Report(ctx context.Context) domain.DiagnosticsReport {
	names := d.registry.ListBackends()
	sort.Strings(names)

	statuses := make([]domain.BackendStatus, 0, len(names))
	for _, name := range names {
		b, err := d.registry.Get(name)
		if err != nil {
			log.Warn().Str("backend", name).Err(err).Msg("backend disappeared from registry")
			continue
		}

		status := domain.BackendStatus{Name: name, Available: true}
		if err := checkAvailable(ctx, b); err != nil {
			status.Available = false
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}

	return domain.DiagnosticsReport{
		Backends: statuses,
		Stats:    d.tracker.Snapshot(),
		Tiers:    d.tiers,
	}
}
