package lucerna

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// reservoirEpsilon guards every denominator that can legitimately reach zero.
// Degenerate numeric cases are defined to contribute nothing instead of
// propagating NaN.
const reservoirEpsilon = float32(1e-8)

// MaxReservoirW marks a reservoir that has not yet retained a usable sample.
const MaxReservoirW = float32(math.MaxFloat32)

// DefaultMaxHistoryRatio bounds how much longer a persisted reservoir's
// history may be than the current frame's. Clamping stale history is the
// primary lever against temporal lag.
const DefaultMaxHistoryRatio = float32(20)

// LightSample identifies one retained light sample: the light array index plus
// the surface-local parameters (barycentrics for area lights, random values
// for the environment, unused for delta lights) needed to deterministically
// reconstruct the sampled position or direction. Storing parameters rather
// than a cached direction is what allows the sample's contribution to be
// re-evaluated from a different shading point.
type LightSample struct {
	Index  uint32
	Params mgl32.Vec2
}

// Reservoir carries the streaming statistics of weighted reservoir resampling
// with reservoir size one: the retained sample, its confidence weight M, its
// unbiased contribution weight W, and an exponentially tracked shadow
// visibility estimate reused across frames.
type Reservoir struct {
	Sample     LightSample
	M          float32
	W          float32
	Visibility float32
}

// NewReservoir returns an empty reservoir carrying no information.
func NewReservoir() Reservoir {
	return Reservoir{W: MaxReservoirW, Visibility: 1}
}

// IsValid reports whether the reservoir retains a usable sample.
func (r *Reservoir) IsValid() bool {
	return r.M > 0 && r.W < MaxReservoirW
}

// ClampHistory limits the reservoir's effective sample count before a merge.
func (r *Reservoir) ClampHistory(maxM float32) {
	if r.M > maxM {
		r.M = maxM
	}
}

// contributionW is the retained weight with the invalid marker mapped to zero
// so an empty reservoir never contributes to a merge.
func (r *Reservoir) contributionW() float32 {
	if r.W >= MaxReservoirW {
		return 0
	}
	return r.W
}

// ReservoirUpdater runs the streaming RIS update and reservoir merges for one
// shading point. Each shading point owns exactly one updater per frame; no two
// operations ever run concurrently for the same point.
type ReservoirUpdater struct {
	reservoir Reservoir
	// targetPdf of the retained sample, evaluated at this updater's shading
	// point. Cached so merges can form their MIS weights without re-running
	// the target function for the retained sample.
	targetPdf float32
	sampler   Sampler
}

func NewReservoirUpdater(sampler Sampler) *ReservoirUpdater {
	return &ReservoirUpdater{reservoir: NewReservoir(), sampler: sampler}
}

// Reservoir returns the current reservoir state.
func (u *ReservoirUpdater) Reservoir() Reservoir { return u.reservoir }

// TargetPdf returns the retained sample's target pdf at this shading point.
func (u *ReservoirUpdater) TargetPdf() float32 { return u.targetPdf }

// Update streams one candidate into the reservoir. sourcePdf is the density
// the candidate was drawn with, targetPdf the unnormalised target density (the
// luminance of the candidate's unshadowed contribution) at this shading point.
// M always advances by one, whether or not the candidate is retained.
func (u *ReservoirUpdater) Update(sample LightSample, sourcePdf, targetPdf float32) {
	var candidateWeight float32
	if sourcePdf > reservoirEpsilon {
		candidateWeight = targetPdf / sourcePdf
	}

	r := &u.reservoir
	mTotal := r.M + 1
	mis1 := r.M / mTotal
	mis2 := 1 / mTotal

	weight1 := mis1 * u.targetPdf * r.contributionW()
	weight2 := mis2 * candidateWeight
	weightSum := weight1 + weight2

	if weightSum > reservoirEpsilon && u.sampler.Get1D() < weight2/weightSum {
		r.Sample = sample
		u.targetPdf = targetPdf
	}
	r.M = mTotal
	u.finishResample(weight1, weight2, 1)
}

// Merge folds a second reservoir (the previous frame's or a spatial
// neighbour's) into this one using the balance heuristic.
// shiftedTargetPdf is the other reservoir's retained sample re-evaluated at
// this updater's shading point.
func (u *ReservoirUpdater) Merge(other Reservoir, shiftedTargetPdf float32) {
	r := &u.reservoir
	mTotal := r.M + other.M
	if mTotal <= 0 {
		return
	}
	mis1 := r.M / mTotal
	mis2 := other.M / mTotal

	weight1 := mis1 * u.targetPdf * r.contributionW()
	weight2 := mis2 * shiftedTargetPdf * other.contributionW()
	weightSum := weight1 + weight2

	if weightSum > reservoirEpsilon && u.sampler.Get1D() < weight2/weightSum {
		r.Sample = other.Sample
		u.targetPdf = shiftedTargetPdf
	}
	r.M = mTotal
	u.finishResample(weight1, weight2, other.Visibility)
}

// MergeTalbot folds a second reservoir in using Talbot MIS, the unbiased
// remedy when the two shading domains differ enough that plain balance
// weights skew the estimate. The cross-domain densities are:
//
//	pdf12: other's sample evaluated at this shading point
//	pdf21: this updater's retained sample evaluated at other's shading point
//	pdf22: other's sample evaluated at other's own shading point
//
// The retained sample's density at its own point (pdf11) is the updater's
// cached target pdf. When both domains coincide the four densities collapse
// pairwise and this reduces exactly to Merge.
func (u *ReservoirUpdater) MergeTalbot(other Reservoir, pdf12, pdf21, pdf22 float32) {
	r := &u.reservoir
	mTotal := r.M + other.M
	if mTotal <= 0 {
		return
	}
	pdf11 := u.targetPdf

	var weight1 float32
	if denom := r.M*pdf11 + other.M*pdf21; denom > reservoirEpsilon {
		weight1 = (r.M * pdf11 / denom) * pdf11 * r.contributionW()
	}
	var weight2 float32
	if denom := r.M*pdf12 + other.M*pdf22; denom > reservoirEpsilon {
		weight2 = (other.M * pdf22 / denom) * pdf12 * other.contributionW()
	}
	weightSum := weight1 + weight2

	if weightSum > reservoirEpsilon && u.sampler.Get1D() < weight2/weightSum {
		r.Sample = other.Sample
		u.targetPdf = pdf12
	}
	r.M = mTotal
	u.finishResample(weight1, weight2, other.Visibility)
}

// finishResample recomputes W for the retained sample and folds the incoming
// visibility estimate into the exponential blend.
func (u *ReservoirUpdater) finishResample(weight1, weight2, otherVisibility float32) {
	r := &u.reservoir
	weightSum := weight1 + weight2
	if weightSum > reservoirEpsilon && u.targetPdf > reservoirEpsilon {
		r.W = weightSum / u.targetPdf
		r.Visibility = max(r.Visibility*weight1+otherVisibility*weight2, reservoirEpsilon) /
			max(weightSum, reservoirEpsilon)
	} else if r.W >= MaxReservoirW {
		// Nothing retained yet; the reservoir stays invalid rather than
		// inheriting a zero weight.
		r.W = MaxReservoirW
	} else {
		// Retained sample with no density at this point: its contribution is
		// zero, so W is zeroed outright rather than divided by the epsilon
		// floor, which would blow W up instead of discarding the sample.
		r.W = 0
	}
}
