package lucerna

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// Sampler provides the uniform random stream consumed by reservoir updates.
// Swappable for deterministic sequences in tests.
type Sampler interface {
	Get1D() float32
	Get2D() mgl32.Vec2
}

// RandomSampler wraps a seeded Go random generator.
type RandomSampler struct {
	random *rand.Rand
}

func NewRandomSampler(random *rand.Rand) *RandomSampler {
	return &RandomSampler{random: random}
}

func (r *RandomSampler) Get1D() float32 {
	return r.random.Float32()
}

func (r *RandomSampler) Get2D() mgl32.Vec2 {
	return mgl32.Vec2{r.random.Float32(), r.random.Float32()}
}
