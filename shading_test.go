package lucerna

import (
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointAt(pos mgl32.Vec3) ShadingPoint {
	return ShadingPoint{Position: pos, Normal: mgl32.Vec3{0, 1, 0}, Albedo: mgl32.Vec3{1, 1, 1}}
}

func TestTargetPdf_PointLightInverseSquare(t *testing.T) {
	e := &TargetPdfEvaluator{Lights: []PackedLight{
		PackLight(MakePointLight(mgl32.Vec3{10, 10, 10}, mgl32.Vec3{0, 1, 0}, 0)),
	}}
	sample := LightSample{Index: 0}

	near := e.TargetPdf(sample, pointAt(mgl32.Vec3{0, 0, 0}))
	far := e.TargetPdf(sample, pointAt(mgl32.Vec3{0, -1, 0}))
	require.Greater(t, near, float32(0))
	require.Greater(t, far, float32(0))
	assert.InDelta(t, 4, near/far, 1e-4)
}

func TestTargetPdf_BackFacingIsZero(t *testing.T) {
	e := &TargetPdfEvaluator{Lights: []PackedLight{
		PackLight(MakePointLight(mgl32.Vec3{5, 5, 5}, mgl32.Vec3{0, -3, 0}, 0)),
	}}
	// The light sits below the surface, behind the upward normal.
	assert.Equal(t, float32(0), e.TargetPdf(LightSample{Index: 0}, pointAt(mgl32.Vec3{})))
}

func TestTargetPdf_PointLightRange(t *testing.T) {
	e := &TargetPdfEvaluator{Lights: []PackedLight{
		PackLight(MakePointLight(mgl32.Vec3{5, 5, 5}, mgl32.Vec3{0, 2, 0}, 10)),
	}}
	inRange := e.TargetPdf(LightSample{Index: 0}, pointAt(mgl32.Vec3{0, 0, 0}))
	outOfRange := e.TargetPdf(LightSample{Index: 0}, pointAt(mgl32.Vec3{0, -20, 0}))
	assert.Greater(t, inRange, float32(0))
	assert.Equal(t, float32(0), outOfRange)
}

func TestTargetPdf_SpotCone(t *testing.T) {
	e := &TargetPdfEvaluator{Lights: []PackedLight{
		PackLight(MakeSpotLight(mgl32.Vec3{10, 10, 10}, mgl32.Vec3{0, 4, 0}, 0,
			mgl32.Vec3{0, -1, 0}, 0.5, 0.25)),
	}}
	inside := e.TargetPdf(LightSample{Index: 0}, pointAt(mgl32.Vec3{0, 0, 0}))
	// tan(0.5) ~ 0.546: at x=4 the point is well outside the outer cone.
	outside := e.TargetPdf(LightSample{Index: 0}, pointAt(mgl32.Vec3{4, 0, 0}))
	assert.Greater(t, inside, float32(0))
	assert.Equal(t, float32(0), outside)
}

func TestTargetPdf_DirectionalCosine(t *testing.T) {
	e := &TargetPdfEvaluator{Lights: []PackedLight{
		PackLight(MakeDirectionalLight(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 1, 0}, 100)),
	}}
	up := e.TargetPdf(LightSample{Index: 0}, pointAt(mgl32.Vec3{}))
	tilted := e.TargetPdf(LightSample{Index: 0}, ShadingPoint{
		Normal: mgl32.Vec3{0.70710678, 0.70710678, 0}, Albedo: mgl32.Vec3{1, 1, 1},
	})
	require.Greater(t, up, float32(0))
	assert.InDelta(t, 0.70710678, tilted/up, 1e-4)
}

func TestTargetPdf_AreaLight(t *testing.T) {
	// Unit right triangle in the y=2 plane facing down.
	light := MakeAreaLight(mgl32.Vec3{8, 8, 8},
		mgl32.Vec3{-0.5, 2, -0.5}, mgl32.Vec3{0.5, 2, -0.5}, mgl32.Vec3{-0.5, 2, 0.5})
	e := &TargetPdfEvaluator{Lights: []PackedLight{PackLight(light)}}
	sample := LightSample{Index: 0, Params: mgl32.Vec2{0.3, 0.3}}

	below := e.TargetPdf(sample, pointAt(mgl32.Vec3{0, 0, 0}))
	require.Greater(t, below, float32(0))

	// Same sample params reconstruct the same point: evaluation is a pure
	// function, which is what cross-frame reuse depends on.
	assert.Equal(t, below, e.TargetPdf(sample, pointAt(mgl32.Vec3{0, 0, 0})))

	// The shifted density at a farther point is smaller but still positive.
	shifted := e.TargetPdf(sample, pointAt(mgl32.Vec3{0, -2, 0}))
	require.Greater(t, shifted, float32(0))
	assert.Less(t, shifted, below)

	above := e.TargetPdf(sample, pointAt(mgl32.Vec3{0, 4, 0}))
	assert.Equal(t, float32(0), above)
}

func TestTargetPdf_DegenerateTriangleIsZero(t *testing.T) {
	light := MakeAreaLight(mgl32.Vec3{8, 8, 8},
		mgl32.Vec3{0, 2, 0}, mgl32.Vec3{1, 2, 0}, mgl32.Vec3{2, 2, 0})
	e := &TargetPdfEvaluator{Lights: []PackedLight{PackLight(light)}}
	assert.Equal(t, float32(0),
		e.TargetPdf(LightSample{Index: 0, Params: mgl32.Vec2{0.5, 0.2}}, pointAt(mgl32.Vec3{})))
}

func TestTargetPdf_TexturedAreaModulation(t *testing.T) {
	tex := NewEmissiveTexture(solidImage(4, 4, color.NRGBA{127, 127, 127, 255}))
	plain := MakeAreaLight(mgl32.Vec3{4, 4, 4},
		mgl32.Vec3{-1, 3, -1}, mgl32.Vec3{1, 3, -1}, mgl32.Vec3{-1, 3, 1})
	textured := MakeTexturedAreaLight(mgl32.Vec3{4, 4, 4},
		mgl32.Vec3{-1, 3, -1}, mgl32.Vec3{1, 3, -1}, mgl32.Vec3{-1, 3, 1},
		0, mgl32.Vec2{0, 0}, mgl32.Vec2{1, 0}, mgl32.Vec2{0, 1})
	e := &TargetPdfEvaluator{
		Lights:   []PackedLight{PackLight(plain), PackLight(textured)},
		Textures: []*EmissiveTexture{tex},
	}
	params := mgl32.Vec2{0.25, 0.25}
	p := pointAt(mgl32.Vec3{})

	base := e.TargetPdf(LightSample{Index: 0, Params: params}, p)
	modulated := e.TargetPdf(LightSample{Index: 1, Params: params}, p)
	require.Greater(t, base, float32(0))
	assert.InDelta(t, 127.0/255, modulated/base, 1e-3)
}

func TestTargetPdf_OutOfRangeIndexIsZero(t *testing.T) {
	e := &TargetPdfEvaluator{}
	assert.Equal(t, float32(0), e.TargetPdf(LightSample{Index: 5}, pointAt(mgl32.Vec3{})))
}

func TestSampleLightUniform(t *testing.T) {
	e := &TargetPdfEvaluator{Lights: make([]PackedLight, 10)}
	sampler := newTestSampler(13)
	for i := 0; i < 100; i++ {
		sample, pdf := e.SampleLightUniform(sampler)
		require.Less(t, sample.Index, uint32(10))
		require.Equal(t, float32(0.1), pdf)
	}

	empty := &TargetPdfEvaluator{}
	_, pdf := empty.SampleLightUniform(sampler)
	assert.Equal(t, float32(0), pdf)
}

func TestFoldToTriangle(t *testing.T) {
	sampler := newTestSampler(14)
	for i := 0; i < 500; i++ {
		alpha, beta := foldToTriangle(sampler.Get2D())
		require.GreaterOrEqual(t, alpha, float32(0))
		require.GreaterOrEqual(t, beta, float32(0))
		require.LessOrEqual(t, alpha+beta, float32(1)+1e-6)
	}
	// Points already inside the triangle pass through unchanged.
	a, b := foldToTriangle(mgl32.Vec2{0.2, 0.3})
	assert.Equal(t, float32(0.2), a)
	assert.Equal(t, float32(0.3), b)
}
