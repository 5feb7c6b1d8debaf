package lucerna

import (
	"encoding/binary"

	"github.com/cogentcore/webgpu/wgpu"
)

// LightBufferSet groups the GPU-resident buffers the light subsystem exposes
// to shading kernels: the light array, its previous-frame copy, the light
// count, the sparse per-instance offset table and the persisted reservoirs.
// Buffers are recreated on upload when their size changes and are otherwise
// written in place.
type LightBufferSet struct {
	LightBuffer         *wgpu.Buffer
	PrevLightBuffer     *wgpu.Buffer
	LightCountBuffer    *wgpu.Buffer
	LightInstanceBuffer *wgpu.Buffer
	ReservoirBuffer     *wgpu.Buffer

	device *wgpu.Device
}

func NewLightBufferSet(device *wgpu.Device) *LightBufferSet {
	return &LightBufferSet{device: device}
}

// Upload pushes the builder's current state to the GPU. Only call between
// frames: shading work in flight must never observe a half-written array.
func (s *LightBufferSet) Upload(builder *LightListBuilder) {
	lights := MarshalPackedLights(builder.Lights())
	s.LightBuffer = s.writeBuffer(s.LightBuffer, "LightBuffer", lights,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)

	if prev := builder.PrevLights(); prev != nil {
		s.PrevLightBuffer = s.writeBuffer(s.PrevLightBuffer, "PrevLightBuffer",
			MarshalPackedLights(prev), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	}

	count := binary.LittleEndian.AppendUint32(nil, builder.LightCount())
	s.LightCountBuffer = s.writeBuffer(s.LightCountBuffer, "LightCountBuffer", count,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)

	offsets := builder.InstanceOffsets()
	if len(offsets) > 0 {
		buf := make([]byte, 0, len(offsets)*4)
		for _, o := range offsets {
			buf = binary.LittleEndian.AppendUint32(buf, o)
		}
		s.LightInstanceBuffer = s.writeBuffer(s.LightInstanceBuffer,
			"LightInstanceBuffer", buf, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	}
}

// UploadReservoirs persists the packed per-pixel reservoirs for the next
// frame's temporal merge.
func (s *LightBufferSet) UploadReservoirs(reservoirs []PackedReservoir) {
	s.ReservoirBuffer = s.writeBuffer(s.ReservoirBuffer, "ReservoirBuffer",
		MarshalPackedReservoirs(reservoirs),
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageCopySrc)
}

func (s *LightBufferSet) writeBuffer(buffer *wgpu.Buffer, name string, data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	if buffer != nil && buffer.GetSize() == uint64(len(data)) {
		if err := s.device.GetQueue().WriteBuffer(buffer, 0, data); err != nil {
			panic(err)
		}
		return buffer
	}
	if buffer != nil {
		buffer.Release()
	}
	buffer, err := s.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    name,
		Contents: data,
		Usage:    usage,
	})
	if err != nil {
		panic(err)
	}
	return buffer
}

// Release frees all buffers in the set.
func (s *LightBufferSet) Release() {
	for _, b := range []*wgpu.Buffer{
		s.LightBuffer, s.PrevLightBuffer, s.LightCountBuffer,
		s.LightInstanceBuffer, s.ReservoirBuffer,
	} {
		if b != nil {
			b.Release()
		}
	}
	*s = LightBufferSet{device: s.device}
}
