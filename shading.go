package lucerna

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ShadingPoint is the receiver of a light sample: a surface position with its
// normal and diffuse albedo. The target distribution below is the luminance of
// the unshadowed diffuse contribution at such a point.
type ShadingPoint struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Albedo   mgl32.Vec3
}

// TargetPdfEvaluator reconstructs light samples from the light array and
// evaluates their contribution at arbitrary shading points. One evaluator is
// valid for the frame whose light array it was built over; cross-frame reuse
// must evaluate persisted samples against the previous frame's array.
type TargetPdfEvaluator struct {
	Lights      []PackedLight
	Textures    []*EmissiveTexture
	Environment *EnvironmentMap
	// CosineEnvironmentSampling selects how environment sample parameters map
	// to directions. Flipping it invalidates persisted environment samples,
	// which is why it participates in lightSettingsChanged.
	CosineEnvironmentSampling bool
}

// SampleLightUniform draws a candidate light sample with a uniform source
// distribution: every light equally likely, parameters uniform on the unit
// square. Returns the candidate and its source pdf.
func (e *TargetPdfEvaluator) SampleLightUniform(sampler Sampler) (LightSample, float32) {
	count := len(e.Lights)
	if count == 0 {
		return LightSample{}, 0
	}
	index := min(uint32(sampler.Get1D()*float32(count)), uint32(count-1))
	return LightSample{Index: index, Params: sampler.Get2D()}, 1 / float32(count)
}

// TargetPdf returns the unnormalised target density of a sample at a shading
// point: the luminance of its unshadowed contribution. Degenerate geometry
// (zero-area triangles, back-facing samples, out-of-range lights) evaluates
// to zero rather than an error.
func (e *TargetPdfEvaluator) TargetPdf(sample LightSample, point ShadingPoint) float32 {
	return Luminance(e.Contribution(sample, point))
}

// Contribution evaluates the unshadowed diffuse contribution of a light
// sample at a shading point, with the sample's own measure conversion baked
// in so that candidates drawn by SampleLightUniform need only the 1/N source
// pdf. sampleParams are sufficient to reconstruct the sampled position or
// direction, which is what makes evaluation from a different shading point
// (the shifted target pdf) possible.
func (e *TargetPdfEvaluator) Contribution(sample LightSample, point ShadingPoint) mgl32.Vec3 {
	if int(sample.Index) >= len(e.Lights) {
		return mgl32.Vec3{}
	}
	light := UnpackLight(e.Lights[sample.Index])
	brdf := point.Albedo.Mul(1 / math.Pi)

	switch light.Kind {
	case LightKindArea:
		return e.areaContribution(&light, sample.Params, point, brdf)
	case LightKindPoint, LightKindSpot:
		return pointSpotContribution(&light, point, brdf)
	case LightKindDirectional:
		cos := point.Normal.Dot(light.Direction)
		if cos <= 0 {
			return mgl32.Vec3{}
		}
		return mulVec3(brdf, light.Radiance).Mul(cos)
	case LightKindEnvironment:
		return e.environmentContribution(sample.Params, point, brdf)
	}
	return mgl32.Vec3{}
}

func (e *TargetPdfEvaluator) areaContribution(light *Light, params mgl32.Vec2, point ShadingPoint, brdf mgl32.Vec3) mgl32.Vec3 {
	alpha, beta := foldToTriangle(params)
	e1 := light.V2.Sub(light.V1)
	e2 := light.V3.Sub(light.V1)
	samplePos := light.V1.Add(e1.Mul(alpha)).Add(e2.Mul(beta))

	areaNormal := e1.Cross(e2)
	area := 0.5 * areaNormal.Len()
	if area <= 0 {
		return mgl32.Vec3{}
	}
	areaNormal = areaNormal.Mul(1 / (2 * area))

	toLight := samplePos.Sub(point.Position)
	distSq := toLight.Dot(toLight)
	if distSq <= reservoirEpsilon {
		return mgl32.Vec3{}
	}
	dir := toLight.Mul(1 / float32(math.Sqrt(float64(distSq))))
	cosSurface := point.Normal.Dot(dir)
	if cosSurface <= 0 {
		return mgl32.Vec3{}
	}
	cosLight := abs32(areaNormal.Dot(dir))

	radiance := light.Radiance
	if light.EmissiveTexture != NoEmissiveTexture &&
		int(light.EmissiveTexture) < len(e.Textures) {
		uv := light.UV1.Add(light.UV2.Sub(light.UV1).Mul(alpha)).
			Add(light.UV3.Sub(light.UV1).Mul(beta))
		radiance = mulVec3(radiance, e.Textures[light.EmissiveTexture].SampleLevel(uv, 0))
	}

	// Uniform area sampling: the 1/area pdf cancels into a *area factor.
	scale := cosSurface * cosLight * area / distSq
	return mulVec3(brdf, radiance).Mul(scale)
}

func pointSpotContribution(light *Light, point ShadingPoint, brdf mgl32.Vec3) mgl32.Vec3 {
	toLight := light.Position.Sub(point.Position)
	distSq := toLight.Dot(toLight)
	if distSq <= reservoirEpsilon {
		return mgl32.Vec3{}
	}
	dist := float32(math.Sqrt(float64(distSq)))
	if light.Range > 0 && dist > light.Range {
		return mgl32.Vec3{}
	}
	dir := toLight.Mul(1 / dist)
	cosSurface := point.Normal.Dot(dir)
	if cosSurface <= 0 {
		return mgl32.Vec3{}
	}

	falloff := float32(1)
	if light.Kind == LightKindSpot {
		// Precomputed cone coefficients make the penumbra a single fma.
		// The cone test looks from the light toward the surface.
		cosAngle := light.Direction.Dot(dir.Mul(-1))
		falloff = clamp01(cosAngle*light.AngleCutoffScale + light.AngleCutoffOffset)
		falloff *= falloff
		if falloff <= 0 {
			return mgl32.Vec3{}
		}
	}
	scale := cosSurface * falloff / distSq
	return mulVec3(brdf, light.Radiance).Mul(scale)
}

func (e *TargetPdfEvaluator) environmentContribution(params mgl32.Vec2, point ShadingPoint, brdf mgl32.Vec3) mgl32.Vec3 {
	if e.Environment == nil {
		return mgl32.Vec3{}
	}
	dir, pdf := e.Environment.SampleDirection(params, point.Normal, e.CosineEnvironmentSampling)
	if pdf <= reservoirEpsilon {
		return mgl32.Vec3{}
	}
	cosSurface := point.Normal.Dot(dir)
	if cosSurface <= 0 {
		return mgl32.Vec3{}
	}
	radiance := e.Environment.Radiance(dir)
	return mulVec3(brdf, radiance).Mul(cosSurface / pdf)
}

// foldToTriangle maps the unit square onto barycentric coordinates uniformly,
// mirroring points across the diagonal.
func foldToTriangle(params mgl32.Vec2) (float32, float32) {
	alpha, beta := params[0], params[1]
	if alpha+beta > 1 {
		alpha = 1 - alpha
		beta = 1 - beta
	}
	return alpha, beta
}
