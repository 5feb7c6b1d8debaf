package lucerna

import (
	"math"
	"runtime"
	"sync"
)

const hashSeed = uint64(0x12345678)

// hashCombine folds a value into a running hash with the usual golden-ratio
// mix. Order sensitive, which is what we want for index-identity detection.
func hashCombine(seed, value uint64) uint64 {
	return seed ^ (value + 0x9e3779b97f4a7c15 + (seed << 6) + (seed >> 2))
}

func hashFloat(seed uint64, v float32) uint64 {
	return hashCombine(seed, uint64(math.Float32bits(v)))
}

func hashVec3(seed uint64, v [3]float32) uint64 {
	for _, c := range v {
		seed = hashFloat(seed, c)
	}
	return seed
}

func hashDeltaLight(seed uint64, l *DeltaLight) uint64 {
	seed = hashCombine(seed, uint64(l.Type))
	seed = hashVec3(seed, l.Color)
	seed = hashFloat(seed, l.Intensity)
	seed = hashVec3(seed, l.Position)
	seed = hashVec3(seed, l.Direction)
	seed = hashFloat(seed, l.Range)
	seed = hashFloat(seed, l.InnerConeAngle)
	seed = hashFloat(seed, l.OuterConeAngle)
	return seed
}

// hashDeltaLights fingerprints the whole delta-light collection. Chunks are
// hashed in parallel and the chunk digests combined in chunk order, so the
// result is deterministic and independent of scheduling.
func hashDeltaLights(lights []DeltaLight) uint64 {
	const minChunk = 256
	if len(lights) < minChunk*2 {
		h := hashSeed
		for i := range lights {
			h = hashDeltaLight(h, &lights[i])
		}
		return h
	}

	workers := runtime.NumCPU()
	chunk := (len(lights) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}
	numChunks := (len(lights) + chunk - 1) / chunk
	partial := make([]uint64, numChunks)

	var wg sync.WaitGroup
	for c := 0; c < numChunks; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			begin := c * chunk
			end := min(begin+chunk, len(lights))
			h := hashSeed
			for i := begin; i < end; i++ {
				h = hashDeltaLight(h, &lights[i])
			}
			partial[c] = h
		}(c)
	}
	wg.Wait()

	h := hashSeed
	for _, p := range partial {
		h = hashCombine(h, p)
	}
	return h
}
