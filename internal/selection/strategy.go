package selection

import (
	"fmt"

	"github.com/gioe/aiq/internal/exposure"
	"github.com/gioe/aiq/internal/itempool"
)

// Narrowing is the outcome of one strategy step.
type Narrowing struct {
	// Items is the candidate set passed to the next step.
	Items []itempool.Item

	// Applied is true when the strategy actually restricted the set.
	Applied bool

	// Degraded is true when the strategy wanted to restrict but had to fall
	// back to its input set.
	Degraded bool

	// Detail describes what was applied or why the step degraded.
	Detail string
}

// Strategy narrows the eligible candidate set before information ranking.
// New strategies are added to a Selector's chain without changing callers.
type Strategy interface {
	Name() string
	Narrow(req Request, eligible []itempool.Item) Narrowing
}

// InformationBased leaves the eligible set untouched so the pick is made on
// Fisher information alone.
type InformationBased struct{}

// Name implements Strategy.
func (InformationBased) Name() string { return "information_based" }

// Narrow implements Strategy.
func (InformationBased) Narrow(_ Request, eligible []itempool.Item) Narrowing {
	return Narrowing{Items: eligible}
}

// CategoryRestricted restricts candidates to the most deficient category that
// still has eligible items. When no deficient category has any, it falls back
// to the full set and reports the degradation.
type CategoryRestricted struct{}

// Name implements Strategy.
func (CategoryRestricted) Name() string { return "category_restricted" }

// Narrow implements Strategy.
func (CategoryRestricted) Narrow(req Request, eligible []itempool.Item) Narrowing {
	if req.Balance == nil {
		return Narrowing{Items: eligible}
	}
	deficits := req.Balance.Deficits()
	if len(deficits) == 0 {
		return Narrowing{Items: eligible}
	}
	byCategory := make(map[string][]itempool.Item)
	for _, it := range eligible {
		byCategory[it.Category] = append(byCategory[it.Category], it)
	}
	for _, d := range deficits {
		if items := byCategory[d.Category]; len(items) > 0 {
			return Narrowing{
				Items:   items,
				Applied: true,
				Detail:  fmt.Sprintf("category %s short by %d", d.Category, d.Shortfall),
			}
		}
	}
	return Narrowing{
		Items:    eligible,
		Degraded: true,
		Detail:   fmt.Sprintf("no eligible items in %d categories below minimum", len(deficits)),
	}
}

// ExposureCapped drops items over the controller's exposure-rate cap, relaxing
// the cap when nothing would remain.
type ExposureCapped struct {
	Controller exposure.Controller
}

// Name implements Strategy.
func (ExposureCapped) Name() string { return "exposure_capped" }

// Narrow implements Strategy.
func (s ExposureCapped) Narrow(req Request, eligible []itempool.Item) Narrowing {
	served := 0
	if req.Pool != nil {
		served = req.Pool.SessionsServed()
	}
	kept, relaxed := s.Controller.Filter(eligible, served)
	if relaxed {
		return Narrowing{
			Items:    eligible,
			Degraded: true,
			Detail:   fmt.Sprintf("all %d candidates exceed exposure rate %.2f", len(eligible), s.Controller.MaxExposureRate),
		}
	}
	return Narrowing{
		Items:   kept,
		Applied: len(kept) < len(eligible),
		Detail:  fmt.Sprintf("%d over-exposed items skipped", len(eligible)-len(kept)),
	}
}
