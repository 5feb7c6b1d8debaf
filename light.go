package lucerna

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type LightKind uint32

const (
	LightKindPoint LightKind = iota
	LightKindSpot
	LightKindDirectional
	LightKindEnvironment
	LightKindArea
)

func (k LightKind) String() string {
	switch k {
	case LightKindPoint:
		return "point"
	case LightKindSpot:
		return "spot"
	case LightKindDirectional:
		return "directional"
	case LightKindEnvironment:
		return "environment"
	case LightKindArea:
		return "area"
	}
	return "unknown"
}

// NoEmissiveTexture marks a light that samples no emissive map.
const NoEmissiveTexture = uint32(0xFFFFFFFF)

// Light is the host-side representation of a single light source. Exactly one
// kind-specific subset of the fields is meaningful per record; the constructors
// below are the only supported way to build one. Records are rebuilt once per
// frame by the LightListBuilder and are read-only afterwards.
type Light struct {
	Kind     LightKind
	Radiance mgl32.Vec3 // Color*intensity for delta lights, emissivity for area lights

	// EmissiveTexture indexes the emissive map texture table, or
	// NoEmissiveTexture when the radiance is untextured.
	EmissiveTexture uint32

	// Point/spot fields.
	Position mgl32.Vec3
	Range    float32

	// Spot/directional fields. Direction points towards the light.
	Direction mgl32.Vec3

	// Spot cone falloff, precomputed so per-sample evaluation is a single
	// fused multiply-add instead of trigonometry.
	AngleCutoffScale  float32
	AngleCutoffOffset float32
	SinConeAngle      float32
	TanConeAngleSq1   float32 // 1 + tan^2(outerConeAngle)

	// Area light fields: counter-clockwise triangle in a right-handed system.
	V1, V2, V3    mgl32.Vec3
	UV1, UV2, UV3 mgl32.Vec2

	// Environment field: mip count per cube face.
	EnvironmentMips uint32
}

// MakeAreaLight builds an untextured triangle area light.
func MakeAreaLight(radiance, vertex1, vertex2, vertex3 mgl32.Vec3) Light {
	return Light{
		Kind:            LightKindArea,
		Radiance:        radiance,
		EmissiveTexture: NoEmissiveTexture,
		V1:              vertex1,
		V2:              vertex2,
		V3:              vertex3,
	}
}

// MakeTexturedAreaLight builds a triangle area light whose radiance is
// modulated by an emissive map sampled at the interpolated UVs.
func MakeTexturedAreaLight(radiance, vertex1, vertex2, vertex3 mgl32.Vec3,
	texture uint32, uv1, uv2, uv3 mgl32.Vec2) Light {
	light := MakeAreaLight(radiance, vertex1, vertex2, vertex3)
	light.EmissiveTexture = texture
	light.UV1, light.UV2, light.UV3 = uv1, uv2, uv3
	return light
}

// MakePointLight builds a point light from intensity (lm/sr), position and range.
func MakePointLight(intensity, position mgl32.Vec3, lightRange float32) Light {
	return Light{
		Kind:            LightKindPoint,
		Radiance:        intensity,
		EmissiveTexture: NoEmissiveTexture,
		Position:        position,
		Range:           lightRange,
	}
}

// MakeSpotLight builds a spot light. The cutoff coefficients are precomputed
// from the inner/outer cone angles (radians) so that the per-sample falloff is
// saturate(cosAngle*AngleCutoffScale + AngleCutoffOffset).
func MakeSpotLight(intensity, position mgl32.Vec3, lightRange float32,
	direction mgl32.Vec3, outerConeAngle, innerConeAngle float32) Light {
	cosOuter := -cos32(outerConeAngle)
	scale := 1.0 / max(0.001, cos32(innerConeAngle)+cosOuter)
	tanOuter := tan32(outerConeAngle)
	return Light{
		Kind:              LightKindSpot,
		Radiance:          intensity,
		EmissiveTexture:   NoEmissiveTexture,
		Position:          position,
		Range:             lightRange,
		Direction:         direction.Normalize(),
		AngleCutoffScale:  scale,
		AngleCutoffOffset: cosOuter * scale,
		SinConeAngle:      sin32(outerConeAngle),
		TanConeAngleSq1:   1.0 + tanOuter*tanOuter,
	}
}

// MakeDirectionalLight builds a directional light from irradiance (lm/m^2),
// the direction towards the light and a range cap.
func MakeDirectionalLight(irradiance, direction mgl32.Vec3, lightRange float32) Light {
	return Light{
		Kind:            LightKindDirectional,
		Radiance:        irradiance,
		EmissiveTexture: NoEmissiveTexture,
		Direction:       direction.Normalize(),
		Range:           lightRange,
	}
}

// MakeEnvironmentLight builds an environment light from the cube map face
// dimensions. Only the mip count is stored; radiance is recovered by sampling
// the environment map directly.
func MakeEnvironmentLight(width, height uint32) Light {
	return Light{
		Kind:            LightKindEnvironment,
		EmissiveTexture: NoEmissiveTexture,
		EnvironmentMips: findMSB(max(width, height)),
	}
}

// IsDeltaLight reports whether the light is a singular (point/spot/directional)
// emitter that cannot be hit by area sampling.
func (l *Light) IsDeltaLight() bool {
	return l.Kind != LightKindArea && l.Kind != LightKindEnvironment
}

// HasPosition reports whether the light has a world-space position. Directional
// and environment lights only have directions.
func (l *Light) HasPosition() bool {
	return l.Kind != LightKindDirectional && l.Kind != LightKindEnvironment
}

// Luminance returns the Rec. 709 luminance of an rgb triple.
func Luminance(rgb mgl32.Vec3) float32 {
	return rgb.Dot(mgl32.Vec3{0.2126, 0.7152, 0.0722})
}

func findMSB(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	msb := uint32(0)
	for v > 1 {
		v >>= 1
		msb++
	}
	return msb
}

func cos32(v float32) float32 { return float32(math.Cos(float64(v))) }
func sin32(v float32) float32 { return float32(math.Sin(float64(v))) }
func tan32(v float32) float32 { return float32(math.Tan(float64(v))) }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
