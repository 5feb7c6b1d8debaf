package lucerna

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type AssetId string

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}

// MeshAsset holds indexed triangle geometry. Indices come in triples; the UV
// channel may be empty for meshes without texture coordinates.
type MeshAsset struct {
	Positions []mgl32.Vec3
	UVs       []mgl32.Vec2
	Indices   []uint32
}

// PrimitiveCount returns the number of triangles in the mesh.
func (m *MeshAsset) PrimitiveCount() uint32 {
	return uint32(len(m.Indices)) / 3
}

// MaterialAsset carries the emission-relevant subset of a material. A material
// is emissive when its emissivity is nonzero or it references an emissive map.
type MaterialAsset struct {
	Emissivity      mgl32.Vec3
	EmissiveTexture AssetId // empty = no emissive map
}

func (m *MaterialAsset) IsEmissive() bool {
	return m.Emissivity != (mgl32.Vec3{}) || m.EmissiveTexture != ""
}

// Instance places a mesh with a material into the scene. Instances are the
// unit of area-light extraction: every triangle of an emissive instance is a
// candidate light.
type Instance struct {
	Mesh      AssetId
	Material  AssetId
	Transform mgl32.Mat4
}

type DeltaLightType uint32

const (
	DeltaLightPoint DeltaLightType = iota
	DeltaLightSpot
	DeltaLightDirectional
)

// DeltaLight is the scene-side descriptor for singular lights. Fields mirror
// what the light list builder hashes for change detection.
type DeltaLight struct {
	Type           DeltaLightType
	Color          mgl32.Vec3
	Intensity      float32
	Position       mgl32.Vec3
	Direction      mgl32.Vec3
	Range          float32
	InnerConeAngle float32
	OuterConeAngle float32
}

// SceneDeltas carries the per-frame change notifications that collaborators
// (asset streaming, animation, the app loop) raise for the light subsystem.
// All flags are consumed by LightListBuilder.Update and reset afterwards.
type SceneDeltas struct {
	MeshesUpdated         bool
	TransformsUpdated     bool
	InstancesUpdated      bool
	EnvironmentMapUpdated bool
}

// LightScene aggregates everything the light subsystem consumes from its
// collaborators: assets, instances, delta lights, the environment map and the
// per-frame change flags.
type LightScene struct {
	meshes    map[AssetId]*MeshAsset
	materials map[AssetId]*MaterialAsset
	textures  map[AssetId]*EmissiveTexture

	// Emissive texture ids in registration order; PackedLight records store
	// indices into this table.
	textureOrder []AssetId

	Instances   []Instance
	DeltaLights []DeltaLight
	Environment *EnvironmentMap

	Deltas SceneDeltas
}

func NewLightScene() *LightScene {
	return &LightScene{
		meshes:    make(map[AssetId]*MeshAsset),
		materials: make(map[AssetId]*MaterialAsset),
		textures:  make(map[AssetId]*EmissiveTexture),
	}
}

func (s *LightScene) AddMesh(mesh *MeshAsset) AssetId {
	id := makeAssetId()
	s.meshes[id] = mesh
	return id
}

func (s *LightScene) AddMaterial(material *MaterialAsset) AssetId {
	id := makeAssetId()
	s.materials[id] = material
	return id
}

func (s *LightScene) AddTexture(texture *EmissiveTexture) AssetId {
	id := makeAssetId()
	s.textures[id] = texture
	s.textureOrder = append(s.textureOrder, id)
	return id
}

func (s *LightScene) Mesh(id AssetId) *MeshAsset         { return s.meshes[id] }
func (s *LightScene) Material(id AssetId) *MaterialAsset { return s.materials[id] }
func (s *LightScene) Texture(id AssetId) *EmissiveTexture {
	return s.textures[id]
}

// TextureIndex maps an emissive texture asset to its stable table index, or
// NoEmissiveTexture when the id is empty or unknown.
func (s *LightScene) TextureIndex(id AssetId) uint32 {
	if id == "" {
		return NoEmissiveTexture
	}
	for i, tid := range s.textureOrder {
		if tid == id {
			return uint32(i)
		}
	}
	return NoEmissiveTexture
}

// AddInstance appends an instance and returns its index. Instance indices are
// stable for the lifetime of the scene and key the sparse light offset table.
func (s *LightScene) AddInstance(inst Instance) uint32 {
	s.Instances = append(s.Instances, inst)
	s.Deltas.InstancesUpdated = true
	return uint32(len(s.Instances) - 1)
}

func (s *LightScene) AddDeltaLight(light DeltaLight) {
	s.DeltaLights = append(s.DeltaLights, light)
}

func (s *LightScene) SetEnvironment(env *EnvironmentMap) {
	s.Environment = env
	s.Deltas.EnvironmentMapUpdated = true
}

// ResetDeltas clears the change notifications after the frame consumed them.
func (s *LightScene) ResetDeltas() {
	s.Deltas = SceneDeltas{}
}
