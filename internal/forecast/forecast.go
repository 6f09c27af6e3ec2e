// Package forecast draws illustrative FRI projections. The output is random
// and is not a fitted model: it only visualises what an intervention could
// look like. Nothing in the scoring pipeline depends on it.
package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/AngelCh415/flare-go/internal/fatigue"
)

const (
	DefaultDays = 14

	dailyDrift      = 1.5
	saturationFRI   = 85.0
	interventionLag = 3
	recoveryPerDay  = 3.0
	recoveryFloor   = 10.0
	wasteScale      = 10.0
)

type Point struct {
	Day          string  `json:"day"`
	Baseline     float64 `json:"baseline_forecast"`
	Intervention float64 `json:"flare_intervention"`
}

type Projection struct {
	CampaignID        string  `json:"campaign_id"`
	StartFRI          float64 `json:"start_fri"`
	Points            []Point `json:"points"`
	BaselineWaste     float64 `json:"projected_waste_baseline"`
	InterventionWaste float64 `json:"projected_waste_intervention"`
	Savings           float64 `json:"savings"`
	SavingsPercentage float64 `json:"savings_percentage"`
	Illustrative      bool    `json:"illustrative"`
}

// Simulator is the non-deterministic projection source. Safe for concurrent use.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator seeds from the clock. Use NewSeededSimulator for repeatable output.
func NewSimulator() *Simulator { return NewSeededSimulator(time.Now().UnixNano()) }

func NewSeededSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

func (s *Simulator) noise() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.NormFloat64()
}

// Project draws a baseline path (no action) and an intervention path that
// starts recovering after three days.
func (s *Simulator) Project(campaignID string, lastFRI float64, days int) Projection {
	if days <= 0 {
		days = DefaultDays
	}
	p := Projection{CampaignID: campaignID, StartFRI: lastFRI, Points: make([]Point, days), Illustrative: true}

	var prev float64
	for i := 0; i < days; i++ {
		var base float64
		if lastFRI < saturationFRI {
			base = math.Min(100, lastFRI+float64(i)*dailyDrift+s.noise())
		} else {
			base = math.Min(100, lastFRI+s.noise())
		}
		iv := base
		if i >= interventionLag {
			iv = math.Max(recoveryFloor, prev-recoveryPerDay+s.noise())
		}
		prev = iv

		p.Points[i] = Point{Day: fmt.Sprintf("Day %d", i+1), Baseline: base, Intervention: iv}
		p.BaselineWaste += fatigue.ProjectedWasteFraction(base) * 100 * wasteScale
		p.InterventionWaste += fatigue.ProjectedWasteFraction(iv) * 100 * wasteScale
	}

	p.Savings = p.BaselineWaste - p.InterventionWaste
	if p.BaselineWaste > 0 {
		p.SavingsPercentage = p.Savings / p.BaselineWaste * 100
	}
	return p
}
