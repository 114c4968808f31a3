package service

import (
	"errors"
	"fmt"

	"upscaler/internal/core/domain"
	"upscaler/internal/core/port"

	"github.com/rs/zerolog/log"
)

type Registry struct {
	backends map[string]port.Backend
}

func (r *Registry) Register(backend port.Backend) {
	if r.backends == nil {
		r.backends = make(map[string]port.Backend)
	}

	log.Info().Str("backend", backend.Name()).Msg("adding backend to registry")
	r.backends[backend.Name()] = backend
}

func (r *Registry) Get(name string) (port.Backend, error) {
	log.Debug().Str("backend", name).Msg("fetching backend from registry")

	if r.backends == nil {
		err := errors.New("can't fetch backend, registry not initialized")
		return nil, err
	}

	backend, ok := r.backends[name]
	if !ok {
		return nil, errors.New("backend not found")
	}

	return backend, nil
}

func (r *Registry) ListBackends() []string {
	keys := make([]string, len(r.backends))

	i := 0
	for k := range r.backends {
		keys[i] = k
		i++
	}

	return keys
}

// Tiers holds the resolved per-tier backend candidate orderings.
type Tiers struct {
	order map[domain.QualityTier][]port.Backend
}

// Candidates returns the ordered backend list for a tier.
func (t Tiers) Candidates(tier domain.QualityTier) ([]port.Backend, bool) {
	backends, ok := t.order[tier]
	return backends, ok
}

// Names returns the per-tier backend name lists, for diagnostics.
func (t Tiers) Names() map[domain.QualityTier][]string {
	names := make(map[domain.QualityTier][]string, len(t.order))
	for tier, backends := range t.order {
		list := make([]string, len(backends))
		for i, b := range backends {
			list[i] = b.Name()
		}
		names[tier] = list
	}

	return names
}

// DefaultTierTable is the shipped tier-to-backend priority table. The
// config file may replace any entry; ResolveTiers guarantees every
// list still ends with the baseline backend.
func DefaultTierTable() map[string][]string {
	return map[string][]string{
		string(domain.TierFast): {domain.BackendClassical},
		string(domain.TierHigh): {domain.BackendRealESRGAN, domain.BackendONNX,
			domain.BackendClassical},
		string(domain.TierHighest): {domain.BackendONNX, domain.BackendHuggingFace,
			domain.BackendWaifu2x, domain.BackendOpenCV, domain.BackendClassical},
	}
}

// ResolveTiers turns a tier-name to backend-name table into ordered
// backend lists. Unknown tiers or backend names are rejected. A list
// that does not end with the baseline backend gets it appended so the
// dispatcher can always produce a result.
func (r *Registry) ResolveTiers(table map[string][]string) (Tiers, error) {
	order := make(map[domain.QualityTier][]port.Backend, len(table))

	for name, backendNames := range table {
		tier, err := domain.ParseQualityTier(name)
		if err != nil {
			return Tiers{}, fmt.Errorf("invalid tier table: %w", err)
		}

		if len(backendNames) == 0 || backendNames[len(backendNames)-1] != domain.BackendClassical {
			backendNames = append(backendNames, domain.BackendClassical)
			log.Debug().Str("tier", name).Msg("appending baseline backend to tier")
		}

		backends := make([]port.Backend, 0, len(backendNames))
		for _, bn := range backendNames {
			b, err := r.Get(bn)
			if err != nil {
				return Tiers{}, fmt.Errorf("invalid tier table entry %q: %w", bn, err)
			}
			backends = append(backends, b)
		}

		order[tier] = backends
	}

	return Tiers{order: order}, nil
}
