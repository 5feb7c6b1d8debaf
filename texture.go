package lucerna

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
)

// EmissiveTexture is an emissive map with a full mip pyramid. The extraction
// predicate samples a single texel at a LOD derived from the projected UV area
// of the triangle, so lookups are point-sampled rather than filtered.
type EmissiveTexture struct {
	levels []*image.NRGBA
}

// NewEmissiveTexture converts the source image and builds its mip chain down
// to 1x1 using a bilinear downscale.
func NewEmissiveTexture(src image.Image) *EmissiveTexture {
	bounds := src.Bounds()
	base := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(base, base.Bounds(), src, bounds.Min, draw.Src)

	levels := []*image.NRGBA{base}
	w, h := base.Bounds().Dx(), base.Bounds().Dy()
	for w > 1 || h > 1 {
		w = max(w/2, 1)
		h = max(h/2, 1)
		mip := image.NewNRGBA(image.Rect(0, 0, w, h))
		prev := levels[len(levels)-1]
		draw.ApproxBiLinear.Scale(mip, mip.Bounds(), prev, prev.Bounds(), draw.Src, nil)
		levels = append(levels, mip)
	}
	return &EmissiveTexture{levels: levels}
}

// MipCount returns the number of levels in the pyramid.
func (t *EmissiveTexture) MipCount() uint32 {
	return uint32(len(t.levels))
}

func (t *EmissiveTexture) Width() uint32  { return uint32(t.levels[0].Bounds().Dx()) }
func (t *EmissiveTexture) Height() uint32 { return uint32(t.levels[0].Bounds().Dy()) }

// LodForUVArea selects the mip level whose texel footprint matches a triangle
// covering the given fraction of UV space.
func (t *EmissiveTexture) LodForUVArea(uvArea float32) float32 {
	if uvArea <= 0 {
		return float32(len(t.levels) - 1)
	}
	texels := float64(uvArea) * float64(t.Width()) * float64(t.Height())
	if texels <= 1 {
		return 0
	}
	lod := 0.5 * math.Log2(texels)
	return min(float32(lod), float32(len(t.levels)-1))
}

// SampleLevel point-samples the texture at the given UV (wrapped) and LOD
// (rounded to the nearest level), returning linear rgb in [0,1].
func (t *EmissiveTexture) SampleLevel(uv mgl32.Vec2, lod float32) mgl32.Vec3 {
	level := int(lod + 0.5)
	if level < 0 {
		level = 0
	}
	if level >= len(t.levels) {
		level = len(t.levels) - 1
	}
	mip := t.levels[level]
	w, h := mip.Bounds().Dx(), mip.Bounds().Dy()
	x := wrapTexel(uv[0], w)
	y := wrapTexel(uv[1], h)
	c := mip.NRGBAAt(x, y)
	return mgl32.Vec3{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255}
}

func wrapTexel(u float32, size int) int {
	f := u - float32(math.Floor(float64(u)))
	i := int(f * float32(size))
	if i >= size {
		i = size - 1
	}
	return i
}

// EnvironmentMap is a latitude-longitude radiance map standing in for the cube
// texture sampled by shading code. Only its mip count enters the light record;
// radiance and sampling run against the map itself.
type EnvironmentMap struct {
	texture *EmissiveTexture
	// Radiance scale applied on lookup.
	Scale float32
}

func NewEnvironmentMap(src image.Image) *EnvironmentMap {
	return &EnvironmentMap{texture: NewEmissiveTexture(src), Scale: 1}
}

func (e *EnvironmentMap) Width() uint32  { return e.texture.Width() }
func (e *EnvironmentMap) Height() uint32 { return e.texture.Height() }

// Radiance looks up the map in the given world direction.
func (e *EnvironmentMap) Radiance(dir mgl32.Vec3) mgl32.Vec3 {
	d := dir.Normalize()
	u := float32(0.5 + math.Atan2(float64(d[0]), float64(-d[2]))/(2*math.Pi))
	v := float32(math.Acos(float64(clamp01(d[1]*0.5+0.5)*2-1)) / math.Pi)
	return e.texture.SampleLevel(mgl32.Vec2{u, v}, 0).Mul(e.Scale)
}

// SampleDirection maps two uniform random values to a world direction with its
// solid-angle pdf. With cosine enabled the distribution is cosine-weighted
// about the surface normal, otherwise uniform over the sphere.
func (e *EnvironmentMap) SampleDirection(params mgl32.Vec2, normal mgl32.Vec3, cosine bool) (mgl32.Vec3, float32) {
	if cosine {
		dir := sampleCosineHemisphere(normal, params)
		pdf := dir.Dot(normal) / math.Pi
		return dir, max(pdf, 0)
	}
	z := 1 - 2*params[0]
	r := float32(math.Sqrt(math.Max(0, 1-float64(z*z))))
	phi := 2 * math.Pi * float64(params[1])
	dir := mgl32.Vec3{r * float32(math.Cos(phi)), z, r * float32(math.Sin(phi))}
	return dir, 1 / (4 * math.Pi)
}

// sampleCosineHemisphere maps a 2D sample to a cosine-weighted direction in
// the hemisphere about the normal.
func sampleCosineHemisphere(normal mgl32.Vec3, sample mgl32.Vec2) mgl32.Vec3 {
	a := 2 * math.Pi * float64(sample[0])
	z := float64(sample[1])
	r := math.Sqrt(z)
	x := float32(r * math.Cos(a))
	y := float32(r * math.Sin(a))
	zc := float32(math.Sqrt(1 - z))

	tangent, bitangent := orthonormalBasis(normal)
	return tangent.Mul(x).Add(bitangent.Mul(y)).Add(normal.Mul(zc))
}

func orthonormalBasis(normal mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	var nt mgl32.Vec3
	if math.Abs(float64(normal[0])) > 0.1 {
		nt = mgl32.Vec3{0, 1, 0}
	} else {
		nt = mgl32.Vec3{1, 0, 0}
	}
	tangent := nt.Cross(normal).Normalize()
	return tangent, normal.Cross(tangent)
}
