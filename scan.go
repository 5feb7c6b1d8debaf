package lucerna

import (
	"runtime"
	"sync"
)

// exclusiveScan turns a buffer of per-element counts into stable output
// offsets in place and returns the total. The scan is blocked: chunk totals
// are reduced in parallel, scanned serially, then each chunk is rescanned with
// its base offset. The result is identical to a serial exclusive sum no matter
// how the chunks are scheduled.
func exclusiveScan(data []uint32) uint32 {
	const minChunk = 4096
	if len(data) < minChunk*2 {
		return exclusiveScanSerial(data)
	}

	workers := runtime.NumCPU()
	chunk := (len(data) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}
	numChunks := (len(data) + chunk - 1) / chunk
	totals := make([]uint32, numChunks)

	var wg sync.WaitGroup
	for c := 0; c < numChunks; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			begin := c * chunk
			end := min(begin+chunk, len(data))
			var sum uint32
			for i := begin; i < end; i++ {
				sum += data[i]
			}
			totals[c] = sum
		}(c)
	}
	wg.Wait()

	// Exclusive scan of the chunk totals gives each chunk its base offset.
	total := exclusiveScanSerial(totals)

	for c := 0; c < numChunks; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			begin := c * chunk
			end := min(begin+chunk, len(data))
			sum := totals[c]
			for i := begin; i < end; i++ {
				v := data[i]
				data[i] = sum
				sum += v
			}
		}(c)
	}
	wg.Wait()
	return total
}

func exclusiveScanSerial(data []uint32) uint32 {
	var sum uint32
	for i := range data {
		v := data[i]
		data[i] = sum
		sum += v
	}
	return sum
}
