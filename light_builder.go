package lucerna

// areaLightTotalUnknown marks the cached mesh-triangle total as stale, forcing
// a recount on the next frame area lights are enabled.
const areaLightTotalUnknown = ^uint32(0)

// LightBuilderOptions is the toggle set collaborators expose to users.
// Changing a toggle takes effect on the next Update.
type LightBuilderOptions struct {
	DeltaLightEnable             bool
	AreaLightEnable              bool
	EnvironmentLightEnable       bool
	EnvironmentLightCosineEnable bool
	CullLowEmissionAreaLights    bool
	LowEmissionThreshold         float32
}

func DefaultLightBuilderOptions() LightBuilderOptions {
	return LightBuilderOptions{
		DeltaLightEnable:       true,
		AreaLightEnable:        true,
		EnvironmentLightEnable: true,
		LowEmissionThreshold:   1,
	}
}

// LightListBuilder assembles the authoritative light array once per frame and
// reports what changed. The array is ordered environment light first (index 0
// when present), then delta lights grouped point/spot/directional in scene
// order, then area lights in instance/primitive order. Other subsystems rely
// on that ordering.
//
// Only the builder mutates the current and previous arrays, and only inside
// Update between frames; both are read-only to every consumer for the rest of
// the frame.
type LightListBuilder struct {
	log     Logger
	options LightBuilderOptions

	lightHash             uint64
	areaLightTotal        uint32
	areaLightCount        uint32
	deltaLightCount       uint32
	environmentLightCount uint32

	lightsUpdated        bool
	lightSettingsChanged bool
	lightIndexesChanged  bool
	lightsUpdatedBack    bool

	lights     []PackedLight
	prevLights []PackedLight
	// keepHistory mirrors the optional previous-light buffer: temporal reuse
	// requests it, plain forward shading does not.
	keepHistory bool

	// Sparse per-instance offsets into the candidate-triangle flag space. One
	// slot per scene instance, even for instances with no emissive triangles.
	instanceOffsets []uint32
	// Exclusive-scan result mapping candidate flag indices to compact area
	// light slots.
	triangleSlots  []uint32
	areaRecords    []PackedLight
	areaLightStart uint32

	frameIndex uint32
}

// NewLightListBuilder creates a builder. keepHistory allocates the previous
// light array needed for temporal reservoir reuse.
func NewLightListBuilder(options LightBuilderOptions, keepHistory bool, log Logger) *LightListBuilder {
	if log == nil {
		log = NewNopLogger()
	}
	return &LightListBuilder{
		log:            log,
		options:        options,
		areaLightTotal: areaLightTotalUnknown,
		keepHistory:    keepHistory,
	}
}

// Update assembles the light array for the next frame. It consumes the scene's
// change notifications and resets them.
func (b *LightListBuilder) Update(scene *LightScene, newOptions LightBuilderOptions) {
	oldHash := b.lightHash
	if b.options.DeltaLightEnable {
		b.lightHash = hashDeltaLights(scene.DeltaLights)
	}

	// While area lights are disabled nothing keeps the triangle total fresh,
	// so invalidate it when meshes or transforms move underneath us.
	if !b.options.AreaLightEnable &&
		(scene.Deltas.MeshesUpdated || (b.areaLightTotal > 0 && scene.Deltas.TransformsUpdated)) {
		b.areaLightTotal = areaLightTotalUnknown
	}

	b.lightsUpdated = false
	b.lightIndexesChanged = false
	oldDelta := b.deltaLightCount
	oldArea := b.areaLightCount
	oldEnvironment := b.environmentLightCount

	b.deltaLightCount = 0
	if newOptions.DeltaLightEnable {
		b.deltaLightCount = uint32(len(scene.DeltaLights))
	}
	b.environmentLightCount = 0
	if newOptions.EnvironmentLightEnable && scene.Environment != nil {
		b.environmentLightCount = 1
	}
	if !newOptions.AreaLightEnable {
		b.areaLightCount = 0
	}

	cullLowChanged := newOptions.CullLowEmissionAreaLights &&
		b.options.LowEmissionThreshold != newOptions.LowEmissionThreshold
	areaToggled := b.options.AreaLightEnable != newOptions.AreaLightEnable

	areaLightUpdated := newOptions.AreaLightEnable &&
		(scene.Deltas.MeshesUpdated || scene.Deltas.InstancesUpdated || b.frameIndex == 0 ||
			b.areaLightTotal == areaLightTotalUnknown || areaToggled ||
			(b.areaLightCount > 0 && scene.Deltas.TransformsUpdated) ||
			b.options.CullLowEmissionAreaLights != newOptions.CullLowEmissionAreaLights ||
			cullLowChanged)
	deltaLightUpdated := newOptions.DeltaLightEnable &&
		(oldHash != b.lightHash || b.frameIndex == 0)
	environmentUpdated := newOptions.EnvironmentLightEnable &&
		(scene.Deltas.EnvironmentMapUpdated || b.frameIndex == 0)
	countsChanged := oldDelta != b.deltaLightCount || oldEnvironment != b.environmentLightCount ||
		oldArea != b.areaLightCount

	if deltaLightUpdated || environmentUpdated || areaLightUpdated ||
		countsChanged || areaToggled || cullLowChanged || b.frameIndex == 0 {
		b.lightsUpdated = true
		if areaLightUpdated {
			b.extractAreaLights(scene, newOptions)
		}
		if newOptions.AreaLightEnable {
			b.areaLightCount = uint32(len(b.areaRecords))
		}

		// Index identity is settled only now that extraction has produced the
		// exact per-triangle count.
		b.lightIndexesChanged = oldEnvironment != b.environmentLightCount ||
			oldArea != b.areaLightCount || oldDelta != b.deltaLightCount ||
			cullLowChanged || b.frameIndex == 0

		b.rebuild(scene)
		b.log.Debugf("light list rebuilt: %d env, %d delta, %d area (indexesChanged=%v)",
			b.environmentLightCount, b.deltaLightCount, b.areaLightCount, b.lightIndexesChanged)
	} else if b.keepHistory && b.lightsUpdatedBack {
		// Lights are stable since last frame; carry the array forward so that
		// previous-light lookups stay valid.
		b.prevLights = append(b.prevLights[:0], b.lights...)
	}
	b.lightsUpdatedBack = b.lightsUpdated

	// Settings are checked last so areaLightCount reflects this frame.
	b.lightSettingsChanged = oldEnvironment != b.environmentLightCount ||
		(oldArea > 0) != (b.areaLightCount > 0) ||
		(oldDelta > 0) != (b.deltaLightCount > 0) ||
		b.options.EnvironmentLightCosineEnable != newOptions.EnvironmentLightCosineEnable

	b.options = newOptions
	b.frameIndex++
	scene.ResetDeltas()
}

// rebuild reassembles the light array from the environment map, the delta
// lights and the cached area extraction, then advances the double buffer.
func (b *LightListBuilder) rebuild(scene *LightScene) {
	head := make([]PackedLight, 0, b.environmentLightCount+b.deltaLightCount)

	// The environment map must always be first in the list.
	if b.environmentLightCount != 0 {
		head = append(head, PackLight(MakeEnvironmentLight(
			scene.Environment.Width(), scene.Environment.Height())))
	}

	// Delta lights are grouped by type for coherent evaluation downstream.
	if b.deltaLightCount > 0 {
		for _, l := range scene.DeltaLights {
			if l.Type == DeltaLightPoint {
				head = append(head, PackLight(MakePointLight(
					l.Color.Mul(l.Intensity), l.Position, l.Range)))
			}
		}
		for _, l := range scene.DeltaLights {
			if l.Type == DeltaLightSpot {
				head = append(head, PackLight(MakeSpotLight(
					l.Color.Mul(l.Intensity), l.Position, l.Range,
					l.Direction, l.OuterConeAngle, l.InnerConeAngle)))
			}
		}
		for _, l := range scene.DeltaLights {
			if l.Type == DeltaLightDirectional {
				head = append(head, PackLight(MakeDirectionalLight(
					l.Color.Mul(l.Intensity), l.Direction.Normalize(), l.Range)))
			}
		}
	}
	b.areaLightStart = uint32(len(head))

	var next []PackedLight
	if b.areaLightCount > 0 {
		next = append(head, b.areaRecords...)
	} else {
		next = head
	}
	if b.keepHistory {
		if b.lightIndexesChanged || len(b.prevLights) == 0 {
			// Old indices are meaningless, so mirror the new array: there is
			// no usable temporal light history this frame.
			b.prevLights = append(b.prevLights[:0], next...)
		} else {
			// Identities are stable; the outgoing array becomes the history.
			b.prevLights = b.lights
		}
	}
	b.lights = next
}

// extractAreaLights rebuilds the draw list, the sparse instance offset table
// and the compacted area records.
func (b *LightListBuilder) extractAreaLights(scene *LightScene, options LightBuilderOptions) {
	b.instanceOffsets = make([]uint32, len(scene.Instances))
	items := make([]drawItem, 0, len(scene.Instances))
	b.areaLightTotal = 0
	var flagCursor uint32

	for i := range scene.Instances {
		inst := &scene.Instances[i]
		mesh := scene.Mesh(inst.Mesh)
		material := scene.Material(inst.Material)
		if mesh == nil || material == nil || !material.IsEmissive() {
			continue
		}
		primitives := mesh.PrimitiveCount()
		b.areaLightTotal += primitives
		if options.CullLowEmissionAreaLights &&
			Luminance(material.Emissivity) < options.LowEmissionThreshold {
			continue
		}
		b.instanceOffsets[i] = flagCursor
		items = append(items, drawItem{
			instanceIndex: uint32(i),
			flagOffset:    flagCursor,
			primitives:    primitives,
		})
		flagCursor += primitives
	}

	pred := &emissivePredicate{
		scene:                scene,
		cullLowEmission:      options.CullLowEmissionAreaLights,
		lowEmissionThreshold: options.LowEmissionThreshold,
	}
	b.areaRecords, b.triangleSlots = extractAreaLights(pred, items, flagCursor)
}

// Lights returns the current frame's light array. Read-only until the next
// Update.
func (b *LightListBuilder) Lights() []PackedLight { return b.lights }

// PrevLights returns the previous frame's light array, or nil when the builder
// keeps no history. When light indices were invalidated this frame it mirrors
// the current array.
func (b *LightListBuilder) PrevLights() []PackedLight {
	if !b.keepHistory {
		return nil
	}
	return b.prevLights
}

// Light decodes the record at the given index.
func (b *LightListBuilder) Light(index uint32) Light {
	return UnpackLight(b.lights[index])
}

func (b *LightListBuilder) LightCount() uint32 {
	return b.environmentLightCount + b.deltaLightCount + b.areaLightCount
}

func (b *LightListBuilder) AreaLightCount() uint32        { return b.areaLightCount }
func (b *LightListBuilder) DeltaLightCount() uint32       { return b.deltaLightCount }
func (b *LightListBuilder) EnvironmentLightCount() uint32 { return b.environmentLightCount }

// AreaLightIndex maps an (instance, primitive) pair to its light array index.
// Valid only for primitives that passed extraction this frame.
func (b *LightListBuilder) AreaLightIndex(instanceIndex, primitiveID uint32) uint32 {
	flag := b.instanceOffsets[instanceIndex] + primitiveID
	return b.areaLightStart + b.triangleSlots[flag]
}

// InstanceOffsets exposes the sparse per-instance offset table for GPU upload.
func (b *LightListBuilder) InstanceOffsets() []uint32 { return b.instanceOffsets }

// LightsUpdated reports whether the light array content changed this frame.
func (b *LightListBuilder) LightsUpdated() bool { return b.lightsUpdated }

// LightIndexesChanged reports whether index N may now refer to a different
// light than last frame. Persisted reservoirs must be discarded when true.
func (b *LightListBuilder) LightIndexesChanged() bool { return b.lightIndexesChanged }

// LightSettingsChanged reports coarse enable/disable transitions that require
// downstream pipelines to reconfigure without invalidating indices.
func (b *LightListBuilder) LightSettingsChanged() bool { return b.lightSettingsChanged }

// FeatureFlags lists the preprocessor-style defines downstream shading code
// uses to compile out unused light paths.
func (b *LightListBuilder) FeatureFlags() []string {
	var flags []string
	if b.deltaLightCount == 0 {
		flags = append(flags, "DISABLE_DELTA_LIGHTS")
	}
	if b.areaLightCount == 0 {
		flags = append(flags, "DISABLE_AREA_LIGHTS")
	}
	if b.environmentLightCount == 0 {
		flags = append(flags, "DISABLE_ENVIRONMENT_LIGHTS")
	}
	if b.options.EnvironmentLightCosineEnable {
		flags = append(flags, "ENABLE_COSINE_ENVIRONMENT_SAMPLING")
	}
	if b.keepHistory {
		flags = append(flags, "ENABLE_PREVIOUS_LIGHTS")
	}
	return flags
}
