package lucerna

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// drawItem is one entry in the parallel draw list: an emissive instance and
// the offset of its first triangle inside the per-triangle flag buffer.
type drawItem struct {
	instanceIndex uint32
	flagOffset    uint32
	primitives    uint32
}

// areaTriangle is the payload produced by the emissive predicate for a
// triangle that passes: everything needed to build its Area light record.
type areaTriangle struct {
	// radiance is the base multiplier stored in the record; the classification
	// below additionally folds in the emissive-map texel.
	radiance   mgl32.Vec3
	texture    uint32
	v1, v2, v3 mgl32.Vec3
	uv1        mgl32.Vec2
	uv2        mgl32.Vec2
	uv3        mgl32.Vec2
}

// emissivePredicate decides whether a triangle of an instance is an emissive
// light. The count and scatter passes must share one predicate instance:
// a triangle classified differently between the passes would shift every
// subsequent output index.
type emissivePredicate struct {
	scene                *LightScene
	cullLowEmission      bool
	lowEmissionThreshold float32
}

// evaluate classifies triangle prim of the given instance. A triangle whose
// emissive map is black at the selected LOD is non-emissive, as is one falling
// under the low-emission luminance threshold when culling is enabled.
func (p *emissivePredicate) evaluate(inst *Instance, mesh *MeshAsset, prim uint32) (areaTriangle, bool) {
	material := p.scene.Material(inst.Material)
	i0 := mesh.Indices[prim*3+0]
	i1 := mesh.Indices[prim*3+1]
	i2 := mesh.Indices[prim*3+2]

	tri := areaTriangle{
		radiance: material.Emissivity,
		texture:  NoEmissiveTexture,
		v1:       mgl32.TransformCoordinate(mesh.Positions[i0], inst.Transform),
		v2:       mgl32.TransformCoordinate(mesh.Positions[i1], inst.Transform),
		v3:       mgl32.TransformCoordinate(mesh.Positions[i2], inst.Transform),
	}

	classified := tri.radiance
	if material.EmissiveTexture != "" && len(mesh.UVs) > 0 {
		texture := p.scene.Texture(material.EmissiveTexture)
		if texture != nil {
			tri.texture = p.scene.TextureIndex(material.EmissiveTexture)
			tri.uv1 = mesh.UVs[i0]
			tri.uv2 = mesh.UVs[i1]
			tri.uv3 = mesh.UVs[i2]
			if tri.radiance == (mgl32.Vec3{}) {
				tri.radiance = mgl32.Vec3{1, 1, 1}
			}
			e1 := tri.uv2.Sub(tri.uv1)
			e2 := tri.uv3.Sub(tri.uv1)
			uvArea := 0.5 * abs32(e1[0]*e2[1]-e1[1]*e2[0])
			centroid := tri.uv1.Add(tri.uv2).Add(tri.uv3).Mul(1.0 / 3.0)
			texel := texture.SampleLevel(centroid, texture.LodForUVArea(uvArea))
			classified = mulVec3(tri.radiance, texel)
		}
	}

	lum := Luminance(classified)
	if lum <= 0 {
		return areaTriangle{}, false
	}
	if p.cullLowEmission && lum < p.lowEmissionThreshold {
		return areaTriangle{}, false
	}
	return tri, true
}

// extractAreaLights runs the two-pass extraction over the draw list and
// returns the compacted Area light records together with the slot table
// mapping flag indices to compact output indices.
//
// Pass 1 writes a 0/1 emissive flag per candidate triangle and reduces a
// total count with one atomic add per draw item. An exclusive scan then turns
// the flags into stable output slots, and pass 2 re-runs the same predicate
// and scatters full records. Re-evaluating is cheaper than caching the full
// triangle payload for every candidate.
func extractAreaLights(pred *emissivePredicate, items []drawItem, flagCount uint32) ([]PackedLight, []uint32) {
	scene := pred.scene
	flags := make([]uint32, flagCount)
	var total atomic.Uint32

	forEachItem(items, func(item *drawItem) {
		inst := &scene.Instances[item.instanceIndex]
		mesh := scene.Mesh(inst.Mesh)
		var count uint32
		for prim := uint32(0); prim < item.primitives; prim++ {
			if _, ok := pred.evaluate(inst, mesh, prim); ok {
				flags[item.flagOffset+prim] = 1
				count++
			}
		}
		total.Add(count)
	})

	emissiveCount := exclusiveScan(flags)
	if emissiveCount != total.Load() {
		// The two passes disagreeing is a predicate bug, not a runtime error.
		panic("lucerna: emissive count mismatch between count pass and scan")
	}

	records := make([]PackedLight, emissiveCount)
	forEachItem(items, func(item *drawItem) {
		inst := &scene.Instances[item.instanceIndex]
		mesh := scene.Mesh(inst.Mesh)
		for prim := uint32(0); prim < item.primitives; prim++ {
			tri, ok := pred.evaluate(inst, mesh, prim)
			if !ok {
				continue
			}
			var light Light
			if tri.texture != NoEmissiveTexture {
				light = MakeTexturedAreaLight(tri.radiance, tri.v1, tri.v2, tri.v3,
					tri.texture, tri.uv1, tri.uv2, tri.uv3)
			} else {
				light = MakeAreaLight(tri.radiance, tri.v1, tri.v2, tri.v3)
			}
			records[flags[item.flagOffset+prim]] = PackLight(light)
		}
	})
	return records, flags
}

// forEachItem fans the draw list out over a bounded worker pool, one item at a
// time. Items are independent so no ordering is required.
func forEachItem(items []drawItem, fn func(*drawItem)) {
	workers := min(runtime.NumCPU(), len(items))
	if workers <= 1 {
		for i := range items {
			fn(&items[i])
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := next.Add(1) - 1
				if i >= int64(len(items)) {
					return
				}
				fn(&items[i])
			}
		}()
	}
	wg.Wait()
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func mulVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
