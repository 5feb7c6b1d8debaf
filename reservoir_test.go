package lucerna

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSampler(seed int64) *RandomSampler {
	return NewRandomSampler(rand.New(rand.NewSource(seed)))
}

func TestReservoir_EmptyIsInvalid(t *testing.T) {
	r := NewReservoir()
	assert.False(t, r.IsValid())
	assert.Equal(t, float32(0), r.M)
	assert.Equal(t, float32(1), r.Visibility)
}

func TestReservoirUpdater_MCountsEveryCandidate(t *testing.T) {
	u := NewReservoirUpdater(newTestSampler(1))
	targetPdfs := []float32{0, 1.5, 0, 0.25, 3}
	for i, tp := range targetPdfs {
		u.Update(LightSample{Index: uint32(i)}, 0.2, tp)
	}
	r := u.Reservoir()
	assert.Equal(t, float32(len(targetPdfs)), r.M)
	assert.True(t, r.IsValid())
}

// A reservoir that only ever saw zero-density candidates holds no usable
// sample, however many candidates were streamed.
func TestReservoirUpdater_AllZeroTargetStaysInvalid(t *testing.T) {
	u := NewReservoirUpdater(newTestSampler(2))
	for i := 0; i < 8; i++ {
		u.Update(LightSample{Index: uint32(i)}, 0.125, 0)
	}
	r := u.Reservoir()
	assert.Equal(t, float32(8), r.M)
	assert.False(t, r.IsValid())
	assert.Equal(t, MaxReservoirW, r.W)
}

func TestReservoirUpdater_SelectionConvergesToTarget(t *testing.T) {
	targetPdfs := []float32{1, 2, 3, 4}
	var total float32
	for _, tp := range targetPdfs {
		total += tp
	}
	sourcePdf := 1 / float32(len(targetPdfs))

	const trials = 40000
	counts := make([]int, len(targetPdfs))
	sampler := newTestSampler(3)
	for trial := 0; trial < trials; trial++ {
		u := NewReservoirUpdater(sampler)
		for i, tp := range targetPdfs {
			u.Update(LightSample{Index: uint32(i)}, sourcePdf, tp)
		}
		r := u.Reservoir()
		require.True(t, r.IsValid())
		counts[r.Sample.Index]++
	}
	for i, tp := range targetPdfs {
		got := float32(counts[i]) / trials
		assert.InDelta(t, tp/total, got, 0.015, "light %d", i)
	}
}

// The RIS estimate targetPdf(retained)*W is unbiased: for a uniform source
// over N candidates its expectation is the sum of all target densities.
func TestReservoirUpdater_ContributionWeightUnbiased(t *testing.T) {
	targetPdfs := []float32{0.5, 1, 2, 4.5}
	var total float64
	for _, tp := range targetPdfs {
		total += float64(tp)
	}
	sourcePdf := 1 / float32(len(targetPdfs))

	const trials = 40000
	var sum float64
	sampler := newTestSampler(4)
	for trial := 0; trial < trials; trial++ {
		u := NewReservoirUpdater(sampler)
		for i, tp := range targetPdfs {
			u.Update(LightSample{Index: uint32(i)}, sourcePdf, tp)
		}
		sum += float64(u.TargetPdf() * u.Reservoir().W)
	}
	assert.InDelta(t, total, sum/trials, 0.05*total)
}

func TestReservoirUpdater_MergeCombinesHistory(t *testing.T) {
	a := NewReservoirUpdater(newTestSampler(5))
	for i := 0; i < 3; i++ {
		a.Update(LightSample{Index: uint32(i)}, 0.25, 1)
	}
	other := Reservoir{Sample: LightSample{Index: 9}, M: 5, W: 0.8, Visibility: 1}
	a.Merge(other, 2)

	r := a.Reservoir()
	assert.Equal(t, float32(8), r.M)
	assert.True(t, r.IsValid())
}

func TestReservoirUpdater_MergeEmptyOtherIsHarmless(t *testing.T) {
	u := NewReservoirUpdater(newTestSampler(6))
	u.Update(LightSample{Index: 2}, 0.5, 1.5)
	before := u.Reservoir()

	u.Merge(NewReservoir(), 0)
	after := u.Reservoir()
	assert.Equal(t, before.Sample, after.Sample)
	assert.Equal(t, before.M, after.M)
	assert.InDelta(t, before.W, after.W, 1e-6)
}

func TestReservoirUpdater_MergeSelectionConverges(t *testing.T) {
	// Two independent streams over disjoint light sets, merged in one domain.
	targetA := []float32{1, 3}
	targetB := []float32{2, 4}
	total := float32(10)

	const trials = 40000
	counts := make([]int, 4)
	sampler := newTestSampler(7)
	for trial := 0; trial < trials; trial++ {
		a := NewReservoirUpdater(sampler)
		for i, tp := range targetA {
			a.Update(LightSample{Index: uint32(i)}, 0.5, tp)
		}
		b := NewReservoirUpdater(sampler)
		for i, tp := range targetB {
			b.Update(LightSample{Index: uint32(2 + i)}, 0.5, tp)
		}

		// Same shading domain: the shifted density of b's sample is its own
		// target density.
		a.Merge(b.Reservoir(), b.TargetPdf())
		r := a.Reservoir()
		require.True(t, r.IsValid())
		counts[r.Sample.Index]++
	}

	want := []float32{1, 3, 2, 4}
	for i, tp := range want {
		got := float32(counts[i]) / trials
		assert.InDelta(t, tp/total, got, 0.03, "light %d", i)
	}
}

// With coinciding domains the four Talbot densities collapse pairwise and the
// Talbot merge must take the exact same decisions as the balance merge.
func TestReservoirUpdater_TalbotReducesToBalance(t *testing.T) {
	build := func(seed int64) (*ReservoirUpdater, Reservoir, float32) {
		u := NewReservoirUpdater(newTestSampler(seed))
		for i, tp := range []float32{2, 0.5, 1} {
			u.Update(LightSample{Index: uint32(i)}, 1.0/3, tp)
		}
		b := NewReservoirUpdater(newTestSampler(seed + 100))
		for i, tp := range []float32{1.5, 4} {
			b.Update(LightSample{Index: uint32(3 + i)}, 0.5, tp)
		}
		return u, b.Reservoir(), b.TargetPdf()
	}

	for seed := int64(0); seed < 20; seed++ {
		balance, otherB, otherPdfB := build(seed)
		talbot, otherT, otherPdfT := build(seed)
		require.Equal(t, otherB, otherT)

		// Re-seed the merge decision identically on both paths.
		balance.sampler = newTestSampler(seed + 1000)
		talbot.sampler = newTestSampler(seed + 1000)

		retainedPdf := talbot.TargetPdf()
		balance.Merge(otherB, otherPdfB)
		talbot.MergeTalbot(otherT, otherPdfT, retainedPdf, otherPdfT)

		rb, rt := balance.Reservoir(), talbot.Reservoir()
		assert.Equal(t, rb.Sample, rt.Sample, "seed %d", seed)
		assert.Equal(t, rb.M, rt.M, "seed %d", seed)
		assert.InDelta(t, rb.W, rt.W, 1e-5, "seed %d", seed)
	}
}

// When the retained sample's density at this point is zero while resample
// weights are not, W collapses to zero (the sample contributes nothing) and a
// still-empty reservoir keeps its invalid marker. Neither path may divide by
// the epsilon floor and produce a huge W.
func TestReservoirUpdater_ZeroRetainedDensity(t *testing.T) {
	u := NewReservoirUpdater(newTestSampler(8))
	u.reservoir = Reservoir{Sample: LightSample{Index: 3}, M: 2, W: 1, Visibility: 1}
	u.targetPdf = 0
	u.finishResample(0.25, 0.25, 1)
	assert.Equal(t, float32(0), u.Reservoir().W)

	empty := NewReservoirUpdater(newTestSampler(9))
	empty.finishResample(0.25, 0.25, 1)
	assert.Equal(t, MaxReservoirW, empty.Reservoir().W)
	r := empty.Reservoir()
	assert.False(t, r.IsValid())
}

func TestReservoir_ClampHistory(t *testing.T) {
	r := Reservoir{M: 500, W: 1}
	r.ClampHistory(DefaultMaxHistoryRatio * 4)
	assert.Equal(t, float32(80), r.M)
	r.ClampHistory(100)
	assert.Equal(t, float32(80), r.M)
}

func TestPackUnpackReservoir_RoundTrip(t *testing.T) {
	r := Reservoir{
		Sample:     LightSample{Index: 1234567, Params: mgl32.Vec2{0.25, 0.75}},
		M:          13.5,
		W:          0.0317,
		Visibility: 0.625,
	}
	got := UnpackReservoir(PackReservoir(r))

	assert.Equal(t, r.Sample.Index, got.Sample.Index)
	assert.Equal(t, r.W, got.W, "W is persisted at full precision")
	// Params, M and visibility are half precision: relative error under 2^-10.
	assert.InDelta(t, r.M, got.M, float64(r.M)/1024)
	assert.InDelta(t, r.Visibility, got.Visibility, float64(r.Visibility)/1024)
	assert.InDelta(t, r.Sample.Params[0], got.Sample.Params[0], 0.25/1024)
	assert.InDelta(t, r.Sample.Params[1], got.Sample.Params[1], 0.75/1024)
}

func TestPackUnpackReservoir_InvalidSurvives(t *testing.T) {
	got := UnpackReservoir(PackReservoir(NewReservoir()))
	assert.False(t, got.IsValid())
}

func TestMarshalPackedReservoirs_Stride(t *testing.T) {
	rs := []PackedReservoir{PackReservoir(NewReservoir()), PackReservoir(NewReservoir())}
	assert.Len(t, MarshalPackedReservoirs(rs), 2*PackedReservoirSize)
}
