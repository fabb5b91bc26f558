package renderer

import (
	"fmt"
	"sync/atomic"

	"gpudraw/mem"
)

var resourceID atomic.Uint64

func nextResourceID() ResourceID {
	return ResourceID(resourceID.Add(1))
}

type ResourceID uint64

type ResourceProxyKind int

const (
	ResourceProxyKindBuffer ResourceProxyKind = iota + 1
	ResourceProxyKindImage
	ResourceProxyKindImageArray
)

type ResourceProxy struct {
	Kind ResourceProxyKind
	BufferProxy
	ImageProxy
	ArrayImageProxy
}

// Recording is a sequence of GPU operations recorded against resource
// proxies, replayed against real buffers and textures by
// Engine.RunRecording. BuildFrameRecording assembles one of these per frame
// from the region binner through the final indirect rasterization draw.
type Recording struct {
	Commands []Command
}

func (rec *Recording) push(arena *mem.Arena, cmd Command) {
	rec.Commands = mem.Append(arena, rec.Commands, cmd)
}

func (rec *Recording) Upload(arena *mem.Arena, name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(arena, mem.Make(arena, Upload{buf, data}))
	return buf
}

func (rec *Recording) UploadUniform(arena *mem.Arena, name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(arena, mem.Make(arena, UploadUniform{buf, data}))
	return buf
}

func (rec *Recording) UploadImage(arena *mem.Arena, width, height uint32, format ImageFormat, data []byte) ImageProxy {
	imageProxy := NewImageProxy(width, height, format)
	rec.push(arena, mem.Make(arena, UploadImage{imageProxy, data}))
	return imageProxy
}

// WriteImageArraySlice records a partial upload into one layer of an
// already-created texture array, the GPU-side counterpart to od_upload_slice.
func (rec *Recording) WriteImageArraySlice(arena *mem.Arena, image ArrayImageProxy, layer uint32, data []byte) {
	rec.push(arena, mem.Make(arena, WriteImageArraySlice{image, layer, data}))
}

func (rec *Recording) Dispatch(arena *mem.Arena, shader ShaderID, wgSize [3]uint32, resources []ResourceProxy) {
	rec.push(arena, mem.Make(arena, Dispatch{shader, wgSize, resources}))
}

func (rec *Recording) DispatchIndirect(
	arena *mem.Arena,
	shader ShaderID,
	buf BufferProxy,
	offset uint64,
	resources []ResourceProxy,
) {
	rec.push(arena, mem.Make(arena, DispatchIndirect{shader, buf, offset, resources}))
}

// DrawIndirect records the rasterizer's render pass: unlike every other
// stage, the rasterizer is a vertex+fragment pipeline reading the per-tile
// command lists and writing directly into the frame's color target, so it
// takes a render target proxy and an indirect draw-argument buffer (filled
// in by the preceding write_icb dispatch) instead of a workgroup count.
func (rec *Recording) DrawIndirect(
	arena *mem.Arena,
	shader ShaderID,
	target ImageProxy,
	clearColor [4]float32,
	indirectBuf BufferProxy,
	offset uint64,
	resources []ResourceProxy,
) {
	rec.push(arena, mem.Make(arena, DrawIndirect{shader, target, clearColor, indirectBuf, offset, resources}))
}

func (rec *Recording) Download(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, Download{buf}))
}

// CopyTextureToBuffer records a sub-region readback of a render target into
// a buffer, the GPU-side half of a screenshot: Coords is {x, y, width,
// height} in pixels, matching od_capture_region's rectangle.
func (rec *Recording) CopyTextureToBuffer(arena *mem.Arena, image ImageProxy, coords [4]uint32, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, CopyTextureToBuffer{image, coords, buf}))
}

func (rec *Recording) ClearAll(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, Clear{buf, 0, -1}))
}

func (rec *Recording) FreeBuffer(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, FreeBuffer{buf}))
}

func (rec *Recording) FreeImage(arena *mem.Arena, image ImageProxy) {
	rec.push(arena, mem.Make(arena, FreeImage{image}))
}

func (rec *Recording) FreeImageArray(arena *mem.Arena, image ArrayImageProxy) {
	rec.push(arena, mem.Make(arena, FreeImageArray{image}))
}

func (rec *Recording) FreeResource(arena *mem.Arena, resource ResourceProxy) {
	switch resource.Kind {
	case ResourceProxyKindBuffer:
		rec.FreeBuffer(arena, resource.BufferProxy)
	case ResourceProxyKindImage:
		rec.FreeImage(arena, resource.ImageProxy)
	case ResourceProxyKindImageArray:
		rec.FreeImageArray(arena, resource.ArrayImageProxy)
	default:
		panic(fmt.Sprintf("unhandled type %T", resource))
	}
}

func NewBufferProxy(size uint64, name string) BufferProxy {
	id := nextResourceID()
	return BufferProxy{size, id, name}
}

func NewImageProxy(width, height uint32, format ImageFormat) ImageProxy {
	id := nextResourceID()
	return ImageProxy{
		Width:  width,
		Height: height,
		Format: format,
		ID:     id,
	}
}

// NewArrayImageProxy describes a texture array with layers slices of
// width x height, matching onedraw_def.texture_array.
func NewArrayImageProxy(width, height, layers uint32, format ImageFormat) ArrayImageProxy {
	id := nextResourceID()
	return ArrayImageProxy{
		Width:  width,
		Height: height,
		Layers: layers,
		Format: format,
		ID:     id,
	}
}

type BufferProxy struct {
	Size uint64
	ID   ResourceID
	Name string
}

func (p BufferProxy) Resource() ResourceProxy {
	return ResourceProxy{
		Kind:        ResourceProxyKindBuffer,
		BufferProxy: p,
	}
}

type ImageFormat int

const (
	Rgba8 ImageFormat = iota
	Rgba8Srgb
	Bgra8
	Bgra8Srgb
)

type ImageProxy struct {
	Width  uint32
	Height uint32
	Format ImageFormat
	ID     ResourceID
}

func (p ImageProxy) Resource() ResourceProxy {
	return ResourceProxy{
		Kind:       ResourceProxyKindImage,
		ImageProxy: p,
	}
}

// ArrayImageProxy describes a texture array resource: Layers slices, each
// Width x Height, matching onedraw_def.texture_array/od_upload_slice. Unlike
// ImageProxy, callers address individual layers through
// Recording.WriteImageArraySlice rather than re-uploading the whole thing.
type ArrayImageProxy struct {
	Width, Height, Layers uint32
	Format                ImageFormat
	ID                    ResourceID
}

func (p ArrayImageProxy) Resource() ResourceProxy {
	return ResourceProxy{
		Kind:            ResourceProxyKindImageArray,
		ArrayImageProxy: p,
	}
}

type ShaderID int

type Command interface {
	isCommand()
}

func (*Upload) isCommand()               {}
func (*UploadUniform) isCommand()        {}
func (*UploadImage) isCommand()          {}
func (*WriteImage) isCommand()           {}
func (*WriteImageArraySlice) isCommand() {}
func (*Dispatch) isCommand()             {}
func (*DispatchIndirect) isCommand()     {}
func (*DrawIndirect) isCommand()         {}
func (*Download) isCommand()             {}
func (*CopyTextureToBuffer) isCommand()  {}
func (*Clear) isCommand()                {}
func (*FreeBuffer) isCommand()           {}
func (*FreeImage) isCommand()            {}
func (*FreeImageArray) isCommand()       {}

type BindTypeType int

const (
	BindTypeBuffer BindTypeType = iota + 1
	BindTypeBufReadOnly
	BindTypeUniform
	BindTypeImage
	BindTypeImageRead
	BindTypeImageArrayRead
)

type BindType struct {
	Type        BindTypeType
	ImageFormat ImageFormat
}

type Upload struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadUniform struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadImage struct {
	Image ImageProxy
	Data  []byte
}

type WriteImage struct {
	Image  ImageProxy
	Coords [4]uint32
	Data   []byte
}

// WriteImageArraySlice replaces one layer of an array texture wholesale,
// matching od_upload_slice's "must be < num_slices" contract.
type WriteImageArraySlice struct {
	Image ArrayImageProxy
	Layer uint32
	Data  []byte
}

type Dispatch struct {
	Shader        ShaderID
	WorkgroupSize [3]uint32
	Bindings      []ResourceProxy
}

type DispatchIndirect struct {
	Shader   ShaderID
	Buffer   BufferProxy
	Offset   uint64
	Bindings []ResourceProxy
}

// DrawIndirect is the rasterizer's final render pass: a single indirect
// draw call against Target, cleared to ClearColor before the pass begins.
type DrawIndirect struct {
	Shader      ShaderID
	Target      ImageProxy
	ClearColor  [4]float32
	IndirectBuf BufferProxy
	Offset      uint64
	Bindings    []ResourceProxy
}

type Download struct {
	Buffer BufferProxy
}

// CopyTextureToBuffer copies Coords (x, y, width, height) pixels out of
// Image into Buffer, tightly packed at 4 bytes per pixel.
type CopyTextureToBuffer struct {
	Image  ImageProxy
	Coords [4]uint32
	Buffer BufferProxy
}

type Clear struct {
	Buffer BufferProxy
	Offset uint64
	Size   int64
}

type FreeBuffer struct {
	Buffer BufferProxy
}

type FreeImage struct {
	Image ImageProxy
}

type FreeImageArray struct {
	Image ArrayImageProxy
}
