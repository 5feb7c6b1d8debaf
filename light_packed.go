package lucerna

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"
)

// Sentinel bit patterns used to tag light kinds inside PackedLight.v3.w.
// The values sit inside the float32 NaN space so they can never collide with a
// valid vertex coordinate; any v3.w below lightTagPoint therefore means Area.
const (
	lightTagPoint       = uint32(0xFFF0FF80)
	lightTagSpot        = lightTagPoint + 1
	lightTagDirectional = lightTagPoint + 2
	lightTagEnvironment = lightTagPoint + 3
)

// PackedLightSize is the byte stride of one packed light record (std430).
const PackedLightSize = 64

// PackedLight is the fixed-width GPU-buffer form of a Light: four float4s whose
// interpretation depends on the kind recovered from the v3.w tag.
//
//	radiance: .xyz colour/intensity, .w emissive texture index bits
//	v1: area vertex 1 / point/spot position(+range)
//	v2: area vertex 2 / spot/directional direction
//	v3: area vertex 3 / spot falloff coefficients / kind tag in .w
type PackedLight struct {
	Radiance   mgl32.Vec4
	V1, V2, V3 mgl32.Vec4
}

// Kind recovers the light kind from the tag slot. Area lights are recognised
// by the absence of a sentinel, not by a tag of their own.
func (p *PackedLight) Kind() LightKind {
	tag := math.Float32bits(p.V3[3])
	switch {
	case tag < lightTagPoint:
		return LightKindArea
	case tag == lightTagPoint:
		return LightKindPoint
	case tag == lightTagSpot:
		return LightKindSpot
	case tag == lightTagDirectional:
		return LightKindDirectional
	default:
		return LightKindEnvironment
	}
}

// PackLight serialises a host Light into its GPU-buffer form.
func PackLight(l Light) PackedLight {
	var p PackedLight
	p.Radiance = vec4(l.Radiance, math.Float32frombits(l.EmissiveTexture))
	switch l.Kind {
	case LightKindArea:
		p.V1 = vec4(l.V1, math.Float32frombits(packHalf2x16(l.UV1)))
		p.V2 = vec4(l.V2, math.Float32frombits(packHalf2x16(l.UV2)))
		p.V3 = vec4(l.V3, math.Float32frombits(packHalf2x16(l.UV3)))
	case LightKindPoint:
		p.V1 = vec4(l.Position, l.Range)
		p.V3[3] = math.Float32frombits(lightTagPoint)
	case LightKindSpot:
		p.V1 = vec4(l.Position, l.Range)
		p.V2 = vec4(l.Direction, l.SinConeAngle)
		p.V3 = mgl32.Vec4{l.AngleCutoffScale, l.AngleCutoffOffset,
			l.TanConeAngleSq1, math.Float32frombits(lightTagSpot)}
	case LightKindDirectional:
		p.V2 = vec4(l.Direction, l.Range)
		p.V3[3] = math.Float32frombits(lightTagDirectional)
	case LightKindEnvironment:
		p.Radiance[0] = math.Float32frombits(l.EnvironmentMips)
		p.V3[3] = math.Float32frombits(lightTagEnvironment)
	}
	return p
}

// UnpackLight reconstructs the host Light from its GPU-buffer form.
func UnpackLight(p PackedLight) Light {
	l := Light{
		Kind:            p.Kind(),
		Radiance:        p.Radiance.Vec3(),
		EmissiveTexture: math.Float32bits(p.Radiance[3]),
	}
	switch l.Kind {
	case LightKindArea:
		l.V1, l.V2, l.V3 = p.V1.Vec3(), p.V2.Vec3(), p.V3.Vec3()
		if l.EmissiveTexture != NoEmissiveTexture {
			l.UV1 = unpackHalf2x16(math.Float32bits(p.V1[3]))
			l.UV2 = unpackHalf2x16(math.Float32bits(p.V2[3]))
			l.UV3 = unpackHalf2x16(math.Float32bits(p.V3[3]))
		}
	case LightKindPoint:
		l.Position = p.V1.Vec3()
		l.Range = p.V1[3]
	case LightKindSpot:
		l.Position = p.V1.Vec3()
		l.Range = p.V1[3]
		l.Direction = p.V2.Vec3()
		l.SinConeAngle = p.V2[3]
		l.AngleCutoffScale = p.V3[0]
		l.AngleCutoffOffset = p.V3[1]
		l.TanConeAngleSq1 = p.V3[2]
	case LightKindDirectional:
		l.Direction = p.V2.Vec3()
		l.Range = p.V2[3]
	case LightKindEnvironment:
		l.EnvironmentMips = math.Float32bits(p.Radiance[0])
		l.Radiance = mgl32.Vec3{}
	}
	return l
}

// Marshal appends the record to buf in GPU-buffer byte order (little-endian,
// 16-byte aligned rows) and returns the extended slice.
func (p *PackedLight) Marshal(buf []byte) []byte {
	for _, row := range [4]mgl32.Vec4{p.Radiance, p.V1, p.V2, p.V3} {
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}

// MarshalPackedLights serialises a whole light array for buffer upload.
func MarshalPackedLights(lights []PackedLight) []byte {
	buf := make([]byte, 0, len(lights)*PackedLightSize)
	for i := range lights {
		buf = lights[i].Marshal(buf)
	}
	return buf
}

func packHalf2x16(v mgl32.Vec2) uint32 {
	lo := float16.Fromfloat32(v[0]).Bits()
	hi := float16.Fromfloat32(v[1]).Bits()
	return uint32(lo) | uint32(hi)<<16
}

func unpackHalf2x16(bits uint32) mgl32.Vec2 {
	return mgl32.Vec2{
		float16.Frombits(uint16(bits)).Float32(),
		float16.Frombits(uint16(bits >> 16)).Float32(),
	}
}

func vec4(v mgl32.Vec3, w float32) mgl32.Vec4 {
	return mgl32.Vec4{v[0], v[1], v[2], w}
}
