package wgpu_engine

// OPT reuse bind groups

import (
	"fmt"
	"math"
	"math/bits"

	"gpudraw/mem"
	"gpudraw/renderer"
	"honnef.co/go/wgpu"
)

type uninitializedShader struct {
	Wgsl     []byte
	Label    string
	Entries  []wgpu.BindGroupLayoutEntry
	ShaderID renderer.ShaderID
}

type Engine struct {
	Device              *wgpu.Device
	shaders             []shader
	pool                resourcePool
	downloads           map[renderer.ResourceID]*wgpu.Buffer
	shadersToInitialize []uninitializedShader
	UseCPU              bool

	blit       *blitPipeline
	shaderIDs  renderer.ShaderIDs
	target     *targetTexture
	screenshot *renderer.Screenshotter

	// fontTexture/fontView/fontProxy are the persistent glyph coverage
	// atlas DrawGlyph's rasterizer samples, created once at New and bound
	// into every frame as an ExternalImage.
	fontTexture *wgpu.Texture
	fontView    *wgpu.TextureView
	fontProxy   renderer.ImageProxy

	// quadArrayTexture/quadArrayView/quadArrayProxy are the persistent
	// texture array UploadQuadSlice writes into and the rasterizer samples
	// for quad primitives, bound into every frame as an ExternalImageArray.
	quadArrayTexture *wgpu.Texture
	quadArrayView    *wgpu.TextureView
	quadArrayProxy   renderer.ArrayImageProxy

	profiler *Profiler
}

type wgpuShader struct {
	label           string
	pipeline        *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

// renderShader is the rasterizer's vertex+fragment pipeline counterpart to
// wgpuShader, bound against an indirect draw-argument buffer instead of a
// workgroup count.
type renderShader struct {
	label           string
	pipeline        *wgpu.RenderPipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

type cpuShader struct {
	shader func(uint32, []cpuBinding)
}

type shader struct {
	Label  string
	WGPU   *wgpuShader
	CPU    *cpuShader
	Render *renderShader
}

func (s shader) Select() any {
	if s.CPU != nil {
		return s.CPU
	} else if s.WGPU != nil {
		return s.WGPU
	} else if s.Render != nil {
		return s.Render
	} else {
		panic(fmt.Sprintf("no available shader for %s", s.Label))
	}
}

type ExternalResource interface {
	// One of ExternalBuffer and ExternalImage
}

type ExternalBuffer struct {
	Proxy  renderer.BufferProxy
	Buffer *wgpu.Buffer
}

type ExternalImage struct {
	Proxy   renderer.ImageProxy
	Texture *wgpu.Texture
	View    *wgpu.TextureView
}

// ExternalImageArray is ExternalImage's array-texture counterpart, used to
// hand RunRecording a font atlas or texture array that outlives the frame
// instead of letting createBindGroup allocate (and leak) a fresh one.
// Texture is carried alongside View so WriteImageArraySlice can write into
// the real resource instead of a throwaway one materialized fresh per call.
type ExternalImageArray struct {
	Proxy   renderer.ArrayImageProxy
	Texture *wgpu.Texture
	View    *wgpu.TextureView
}

type materializedBuffer interface {
	// One of wgpu.Buffer and []byte
}

type bindMapBuffer struct {
	Buffer materializedBuffer
	Label  string
}

type bindMapImage struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

type bindMap struct {
	bufMap        mem.BinaryTreeMap[renderer.ResourceID, *bindMapBuffer]
	imageMap      mem.BinaryTreeMap[renderer.ResourceID, *bindMapImage]
	pendingClears mem.BinaryTreeMap[renderer.ResourceID, struct{}]
}

type bufferProperties struct {
	size   uint64
	usages wgpu.BufferUsage
}

type resourcePool struct {
	bufs map[bufferProperties][]*wgpu.Buffer
}

type transientBindMap struct {
	bufs   mem.BinaryTreeMap[renderer.ResourceID, transientBuf]
	images mem.BinaryTreeMap[renderer.ResourceID, *bindMapImage]
}

type transientBufKind int

const (
	transientBufKindBytes transientBufKind = iota + 1
	transientBufKindBuffer
)

type transientBuf struct {
	kind   transientBufKind
	bytes  []byte
	buffer *wgpu.Buffer
}

func New(dev *wgpu.Device, queue *wgpu.Queue, options *RendererOptions) *Engine {
	eng := &Engine{
		Device: dev,
		pool: resourcePool{
			bufs: make(map[bufferProperties][]*wgpu.Buffer),
		},
		downloads: make(map[renderer.ResourceID]*wgpu.Buffer),
		UseCPU:    options.UseCPU,
		profiler:  NewProfiler(dev),
	}
	eng.shaderIDs = eng.newShaderIDs()
	eng.buildShadersIfNeeded(1)
	// XXX support surfaceless engine use
	eng.blit = newBlitPipeline(eng.Device, options.SurfaceFormat)
	eng.screenshot = renderer.NewScreenshotter(options.AllowScreenshot)
	eng.initFontAtlas(queue, options)
	eng.initQuadArray(options)
	return eng
}

// initFontAtlas materializes the persistent glyph coverage texture the
// rasterizer samples for PrimitiveChar, the GPU counterpart to
// od_build_font. A caller that configures no atlas still gets a 1x1
// stand-in so the rasterizer's bind group always resolves.
func (eng *Engine) initFontAtlas(queue *wgpu.Queue, options *RendererOptions) {
	width, height := options.FontAtlasWidth, options.FontAtlasHeight
	pixels := options.FontAtlasPixels
	if width == 0 || height == 0 {
		width, height = 1, 1
		pixels = []byte{0, 0, 0, 0}
	}

	format := imageFormatToWGPU(renderer.Rgba8)
	eng.fontProxy = renderer.NewImageProxy(width, height, renderer.Rgba8)
	eng.fontTexture = eng.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "font atlas",
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Format:        format,
	})
	eng.fontView = eng.fontTexture.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2D,
		Aspect:          wgpu.TextureAspectAll,
		MipLevelCount:   ^uint32(0),
		BaseMipLevel:    0,
		BaseArrayLayer:  0,
		ArrayLayerCount: ^uint32(0),
		Format:          format,
	})

	blockSize, ok := format.BlockCopySize(wgpu.TextureAspectAll)
	if !ok {
		panic("image format must have a valid block size")
	}
	queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture: eng.fontTexture,
			Aspect:  wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			BytesPerRow:  width * blockSize,
			RowsPerImage: height,
		},
		&wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	)
}

// initQuadArray materializes the persistent texture array UploadQuadSlice
// writes into and the rasterizer samples for PrimitiveQuad, the GPU
// counterpart to od_create_atlas. A caller that configures no slices still
// gets a single placeholder layer so the rasterizer's bind group always
// resolves.
func (eng *Engine) initQuadArray(options *RendererOptions) {
	width, height, slices := options.QuadArrayWidth, options.QuadArrayHeight, options.QuadArraySlices
	if width == 0 || height == 0 || slices == 0 {
		width, height, slices = 1, 1, 1
	}

	format := imageFormatToWGPU(renderer.Bgra8Srgb)
	eng.quadArrayProxy = renderer.NewArrayImageProxy(width, height, slices, renderer.Bgra8Srgb)
	eng.quadArrayTexture = eng.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "quad texture array",
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: slices,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Format:        format,
	})
	eng.quadArrayView = eng.quadArrayTexture.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2DArray,
		Aspect:          wgpu.TextureAspectAll,
		MipLevelCount:   ^uint32(0),
		BaseMipLevel:    0,
		BaseArrayLayer:  0,
		ArrayLayerCount: ^uint32(0),
		Format:          format,
	})
}

// UploadQuadSlice replaces one layer of the quad texture array, the GPU
// counterpart to od_upload_slice. It runs as its own recording rather than
// batching into a frame's, since uploads arrive independently of
// BeginFrame/EndFrame.
func (eng *Engine) UploadQuadSlice(queue *wgpu.Queue, layer uint32, pixelsBGRA8 []byte) {
	arena := mem.NewArena()
	defer arena.Reset()

	rec := mem.New[renderer.Recording](arena)
	rec.WriteImageArraySlice(arena, eng.quadArrayProxy, layer, pixelsBGRA8)

	externalResources := []ExternalResource{
		ExternalImageArray{
			Proxy:   eng.quadArrayProxy,
			Texture: eng.quadArrayTexture,
			View:    eng.quadArrayView,
		},
	}
	eng.RunRecording(arena, queue, rec, externalResources, "upload_quad_slice", nil)
}

func (eng *Engine) ShaderIDs() renderer.ShaderIDs {
	return eng.shaderIDs
}

// Screenshotter exposes the engine's one-shot screenshot arm/disarm state,
// whose availability was fixed at New by RendererOptions.AllowScreenshot.
func (eng *Engine) Screenshotter() *renderer.Screenshotter {
	return eng.screenshot
}

func (eng *Engine) UseParallelInitialization() {
	if eng.shadersToInitialize != nil {
		return
	}
	eng.shadersToInitialize = []uninitializedShader{}
}

func (eng *Engine) buildShadersIfNeeded(numThreads int) {
	if eng.shadersToInitialize == nil {
		return
	}
	newShaders := eng.shadersToInitialize
	// XXX implement parallelism
	for _, s := range newShaders {
		sh := eng.createComputePipeline(s.Label, s.Wgsl, s.Entries)
		if int(s.ShaderID) >= len(eng.shaders) {
			if cap(eng.shaders) <= int(s.ShaderID) {
				c := make([]shader, s.ShaderID+1)
				copy(c, eng.shaders)
				eng.shaders = c
			} else {
				eng.shaders = eng.shaders[:s.ShaderID+1]
			}
		}
		eng.shaders[s.ShaderID] = shader{WGPU: &sh}
	}
}

type cpuShaderType interface {
	// XXX implement
}

func (eng *Engine) addShader(
	label string,
	wgsl []byte,
	layout []renderer.BindType,
	cpuShader cpuShaderType,
) renderer.ShaderID {
	add := func(shader shader) renderer.ShaderID {
		id := len(eng.shaders)
		eng.shaders = append(eng.shaders, shader)
		return renderer.ShaderID(id)
	}

	if eng.UseCPU {
		panic("XXX unimplemented")
	}

	entries := make([]wgpu.BindGroupLayoutEntry, len(layout))
	for i, bindType := range layout {
		switch bindType.Type {
		case renderer.BindTypeBuffer, renderer.BindTypeBufReadOnly:
			var typ wgpu.BufferBindingType
			if bindType.Type == renderer.BindTypeBuffer {
				typ = wgpu.BufferBindingTypeStorage
			} else {
				typ = wgpu.BufferBindingTypeReadOnlyStorage
			}
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageCompute,
				Buffer: &wgpu.BufferBindingLayout{
					Type:             typ,
					HasDynamicOffset: false,
					MinBindingSize:   0, // XXX 0 or Undefined?
				},
			}
		case renderer.BindTypeUniform:
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageCompute,
				Buffer: &wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					HasDynamicOffset: false,
					MinBindingSize:   0, // XXX 0 or Undefined?
				},
			}

		case renderer.BindTypeImage:
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageCompute,
				StorageTexture: &wgpu.StorageTextureBindingLayout{
					Access:        wgpu.StorageTextureAccessWriteOnly,
					Format:        imageFormatToWGPU(bindType.ImageFormat),
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			}

		case renderer.BindTypeImageRead:
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageCompute,
				Texture: &wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
					Multisampled:  false,
				},
			}

		default:
			panic(fmt.Sprintf("invalid bind type %d", bindType.Type))
		}
	}

	if eng.shadersToInitialize != nil {
		id := add(shader{Label: label})
		eng.shadersToInitialize = append(eng.shadersToInitialize, uninitializedShader{
			Wgsl:     wgsl,
			Label:    label,
			Entries:  entries,
			ShaderID: id,
		})
		return id
	}

	wgpu := eng.createComputePipeline(label, wgsl, entries)
	return add(shader{
		Label: label,
		WGPU:  &wgpu,
	})
}

// addRenderShader registers the rasterizer's vertex+fragment pipeline. It
// mirrors addShader's bind-group-layout construction but targets a render
// pipeline with a single color attachment instead of a compute pipeline,
// since the rasterizer reads the tile/command buffers in the fragment stage
// and writes pixels directly rather than through a storage image.
func (eng *Engine) addRenderShader(
	label string,
	wgsl []byte,
	layout []renderer.BindType,
	targetFormat wgpu.TextureFormat,
) renderer.ShaderID {
	entries := make([]wgpu.BindGroupLayoutEntry, len(layout))
	for i, bindType := range layout {
		switch bindType.Type {
		case renderer.BindTypeBuffer, renderer.BindTypeBufReadOnly:
			typ := wgpu.BufferBindingTypeReadOnlyStorage
			if bindType.Type == renderer.BindTypeBuffer {
				typ = wgpu.BufferBindingTypeStorage
			}
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageFragment,
				Buffer: &wgpu.BufferBindingLayout{
					Type: typ,
				},
			}
		case renderer.BindTypeUniform:
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: &wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeUniform,
				},
			}
		case renderer.BindTypeImageRead:
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageFragment,
				Texture: &wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			}
		case renderer.BindTypeImageArrayRead:
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageFragment,
				Texture: &wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2DArray,
				},
			}
		default:
			panic(fmt.Sprintf("invalid bind type %d for render shader", bindType.Type))
		}
	}

	module := eng.Device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  label,
		Source: wgpu.ShaderSourceWGSL(wgsl),
	})
	bindGroupLayout := eng.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: entries,
	})
	pipelineLayout := eng.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + " layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	pipeline := eng.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  label,
		Layout: pipelineLayout,
		Vertex: &wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    targetFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: &wgpu.PrimitiveState{
			Topology:         wgpu.PrimitiveTopologyTriangleList,
			StripIndexFormat: ^wgpu.IndexFormat(0),
			FrontFace:        wgpu.FrontFaceCCW,
			CullMode:         wgpu.CullModeNone,
		},
		Multisample: &wgpu.MultisampleState{
			Count: 1,
			Mask:  ^uint32(0),
		},
	})
	pipelineLayout.Release()

	id := len(eng.shaders)
	eng.shaders = append(eng.shaders, shader{
		Label: label,
		Render: &renderShader{
			label:           label,
			pipeline:        pipeline,
			bindGroupLayout: bindGroupLayout,
		},
	})
	return renderer.ShaderID(id)
}

func (eng *Engine) RunRecording(
	arena *mem.Arena,
	queue *wgpu.Queue,
	recording *renderer.Recording,
	externalResources []ExternalResource,
	label string,
	pgroup *ProfilerGroup,
) {
	pgroup = pgroup.Nest("RunRecording")
	defer pgroup.End()

	var freeBufs, freeImages mem.BinaryTreeMap[renderer.ResourceID, struct{}]
	transientMap := newTransientBindMap(arena, externalResources)
	// Note that Vello reuses a single bind map for all frames, with the premise
	// that some buffers will be reused across frames. Right now, however, no
	// buffers seem to be reused. Once we do reuse buffers, we'll want to use a
	// persistent bind map, too. But because most buffers aren't reused, it'll
	// be cheaper to first track buffers locally, then remember only those
	// buffers that weren't freed by the end of the frame.
	bindMap := bindMap{}

	// XXX why do we have a persistent bind map if we clear it at the end of the
	// frame, anyway? Vello made that change in
	// e47c5777ccc84b378145d0486d2b1a9b5c737fa0, apparently planning to persist
	// buffers across recordings in the future.

	encoder := eng.Device.CreateCommandEncoder(mem.Make(arena, wgpu.CommandEncoderDescriptor{Label: label}))

	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *renderer.Upload:
			bufProxy := cmd.Buffer
			bytes := cmd.Data
			transientMap.bufs.Insert(arena, bufProxy.ID, transientBuf{kind: transientBufKindBytes, bytes: bytes})
			usage := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst | wgpu.BufferUsageStorage
			buf := eng.pool.getBuf(bufProxy.Size, bufProxy.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, bytes)
			bindMap.insertBuf(arena, bufProxy, buf)

		case *renderer.UploadUniform:
			bufProxy := cmd.Buffer
			bytes := cmd.Data
			transientMap.bufs.Insert(arena, bufProxy.ID, transientBuf{kind: transientBufKindBytes, bytes: bytes})
			usage := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			// XXXXXX "config" buffer is created here
			buf := eng.pool.getBuf(bufProxy.Size, bufProxy.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, bytes)
			bindMap.insertBuf(arena, bufProxy, buf)

		case *renderer.UploadImage:
			imageProxy := cmd.Image
			bytes := cmd.Data
			format := imageFormatToWGPU(imageProxy.Format)
			blockSize, ok := format.BlockCopySize(wgpu.TextureAspectAll)
			if !ok {
				panic("image format must have a valid block size")
			}
			texture := eng.Device.CreateTexture(mem.Make(arena, wgpu.TextureDescriptor{
				Size: wgpu.Extent3D{
					Width:              imageProxy.Width,
					Height:             imageProxy.Height,
					DepthOrArrayLayers: 1,
				},
				MipLevelCount: 1,
				SampleCount:   1,
				Dimension:     wgpu.TextureDimension2D,
				Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
				Format:        format,
			}))
			textureView := texture.CreateView(mem.Make(arena, wgpu.TextureViewDescriptor{
				Dimension:       wgpu.TextureViewDimension2D,
				Aspect:          wgpu.TextureAspectAll,
				MipLevelCount:   ^uint32(0),
				ArrayLayerCount: ^uint32(0),
				BaseMipLevel:    0,
				BaseArrayLayer:  0,
				Format:          format,
			}))
			queue.WriteTexture(
				mem.Make(arena, wgpu.ImageCopyTexture{
					Texture:  texture,
					MipLevel: 0,
					Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: 0},
					Aspect:   wgpu.TextureAspectAll,
				}),
				bytes,
				mem.Make(arena, wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  imageProxy.Width * blockSize,
					RowsPerImage: ^uint32(0), // XXX 0 or Undefined?
				}),
				mem.Make(arena, wgpu.Extent3D{
					Width:              imageProxy.Width,
					Height:             imageProxy.Height,
					DepthOrArrayLayers: 1,
				}),
			)
			bindMap.insertImage(arena, imageProxy.ID, texture, textureView)

		case *renderer.WriteImage:
			proxy := cmd.Image
			x := cmd.Coords[0]
			y := cmd.Coords[1]
			width := cmd.Coords[2]
			height := cmd.Coords[3]
			data := cmd.Data
			var texture *wgpu.Texture
			if entry, ok := transientMap.images.Get(proxy.ID); ok {
				texture = entry.texture
			} else {
				texture, _ = bindMap.getOrCreateImage(arena, proxy, eng.Device)
			}
			format := imageFormatToWGPU(proxy.Format)
			blockSize, ok := format.BlockCopySize(wgpu.TextureAspectAll)
			if !ok {
				panic("image format must have a valid block size")
			}
			queue.WriteTexture(
				mem.Make(arena, wgpu.ImageCopyTexture{
					Texture:  texture,
					MipLevel: 0,
					Origin:   wgpu.Origin3D{X: x, Y: y, Z: 0},
					Aspect:   wgpu.TextureAspectAll,
				}),
				data,
				mem.Make(arena, wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  width * blockSize,
					RowsPerImage: 0, // XXX 0 or Undefined?
				}),
				mem.Make(arena, wgpu.Extent3D{
					Width:              width,
					Height:             height,
					DepthOrArrayLayers: 1,
				}),
			)

		case *renderer.WriteImageArraySlice:
			proxy := cmd.Image
			layer := cmd.Layer
			data := cmd.Data
			var texture *wgpu.Texture
			if entry, ok := transientMap.images.Get(proxy.ID); ok {
				texture = entry.texture
			} else {
				texture, _ = bindMap.getOrCreateImageArray(arena, proxy, eng.Device)
			}
			format := imageFormatToWGPU(proxy.Format)
			blockSize, ok := format.BlockCopySize(wgpu.TextureAspectAll)
			if !ok {
				panic("image format must have a valid block size")
			}
			queue.WriteTexture(
				mem.Make(arena, wgpu.ImageCopyTexture{
					Texture:  texture,
					MipLevel: 0,
					Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: layer},
					Aspect:   wgpu.TextureAspectAll,
				}),
				data,
				mem.Make(arena, wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  proxy.Width * blockSize,
					RowsPerImage: proxy.Height,
				}),
				mem.Make(arena, wgpu.Extent3D{
					Width:              proxy.Width,
					Height:             proxy.Height,
					DepthOrArrayLayers: 1,
				}),
			)

		case *renderer.Dispatch:
			shaderID := cmd.Shader
			wgSize := cmd.WorkgroupSize
			bindings := cmd.Bindings
			shader := eng.shaders[shaderID]
			switch s := shader.Select().(type) {
			case *cpuShader:
				panic("XXX no support for CPU shaders")
			case *wgpuShader:
				bindGroup := transientMap.createBindGroup(
					arena,
					&bindMap,
					&eng.pool,
					eng.Device,
					queue,
					encoder,
					s.bindGroupLayout,
					bindings,
				)

				cpass := encoder.BeginComputePass(mem.Make(arena, wgpu.ComputePassDescriptor{
					Label:           shader.Label,
					TimestampWrites: pgroup.Compute(arena, shader.Label),
				}))

				cpass.SetPipeline(s.pipeline)
				cpass.SetBindGroup(0, bindGroup, nil)
				cpass.DispatchWorkgroups(wgSize[0], wgSize[1], wgSize[2])
				cpass.End()
				bindGroup.Release()
				cpass.Release()
			default:
				panic(fmt.Sprintf("unhandled type %T", s))
			}

		case *renderer.DispatchIndirect:
			shaderID := cmd.Shader
			proxy := cmd.Buffer
			offset := cmd.Offset
			bindings := cmd.Bindings
			shader := eng.shaders[shaderID]
			switch s := shader.Select().(type) {
			case *cpuShader:
				panic("XXX no support for CPU shaders")
			case *wgpuShader:
				bindGroup := transientMap.createBindGroup(
					arena,
					&bindMap,
					&eng.pool,
					eng.Device,
					queue,
					encoder,
					s.bindGroupLayout,
					bindings,
				)

				transientMap.materializeGPUBufForIndirect(
					&bindMap,
					&eng.pool,
					eng.Device,
					queue,
					proxy,
				)

				cpass := encoder.BeginComputePass(mem.Make(arena, wgpu.ComputePassDescriptor{
					Label:           s.label,
					TimestampWrites: pgroup.Compute(arena, shader.Label),
				}))

				cpass.SetPipeline(s.pipeline)
				cpass.SetBindGroup(0, bindGroup, nil)
				buf, ok := bindMap.getGPUBuf(proxy.ID)
				if !ok {
					panic("tried using unavailable buffer for indirect dispatch")
				}
				cpass.DispatchWorkgroupsIndirect(buf, offset)
				cpass.End()
				bindGroup.Release()
				cpass.Release()
			default:
				panic(fmt.Sprintf("unhandled type %T", s))
			}

		case *renderer.DrawIndirect:
			shaderID := cmd.Shader
			bindings := cmd.Bindings
			shader := eng.shaders[shaderID]
			s, ok := shader.Select().(*renderShader)
			if !ok {
				panic(fmt.Sprintf("shader %q is not a render shader", shader.Label))
			}

			bindGroup := transientMap.createBindGroup(
				arena,
				&bindMap,
				&eng.pool,
				eng.Device,
				queue,
				encoder,
				s.bindGroupLayout,
				bindings,
			)

			transientMap.materializeGPUBufForIndirect(
				&bindMap,
				&eng.pool,
				eng.Device,
				queue,
				cmd.IndirectBuf,
			)
			indirectBuf, ok := bindMap.getGPUBuf(cmd.IndirectBuf.ID)
			if !ok {
				panic("tried using unavailable buffer for indirect draw")
			}

			var targetView *wgpu.TextureView
			if entry, ok := transientMap.images.Get(cmd.Target.ID); ok {
				targetView = entry.view
			} else {
				_, v := bindMap.getOrCreateImage(arena, cmd.Target, eng.Device)
				targetView = v
			}

			rpass := encoder.BeginRenderPass(mem.Make(arena, wgpu.RenderPassDescriptor{
				Label: shader.Label,
				ColorAttachments: []wgpu.RenderPassColorAttachment{
					{
						View:    targetView,
						LoadOp:  wgpu.LoadOpClear,
						StoreOp: wgpu.StoreOpStore,
						ClearValue: wgpu.Color{
							R: float64(cmd.ClearColor[0]),
							G: float64(cmd.ClearColor[1]),
							B: float64(cmd.ClearColor[2]),
							A: float64(cmd.ClearColor[3]),
						},
					},
				},
				TimestampWrites: pgroup.Render(arena, shader.Label),
			}))
			rpass.SetPipeline(s.pipeline)
			rpass.SetBindGroup(0, bindGroup, nil)
			rpass.DrawIndirect(indirectBuf, cmd.Offset)
			rpass.End()
			bindGroup.Release()
			rpass.Release()

		case *renderer.CopyTextureToBuffer:
			texture, _ := bindMap.getOrCreateImage(arena, cmd.Image, eng.Device)
			x, y, width, height := cmd.Coords[0], cmd.Coords[1], cmd.Coords[2], cmd.Coords[3]
			usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(cmd.Buffer.Size, cmd.Buffer.Name, usage, eng.Device)
			encoder.CopyTextureToBuffer(
				mem.Make(arena, wgpu.ImageCopyTexture{
					Texture: texture,
					Origin:  wgpu.Origin3D{X: x, Y: y, Z: 0},
					Aspect:  wgpu.TextureAspectAll,
				}),
				mem.Make(arena, wgpu.ImageCopyBuffer{
					Buffer: buf,
					Layout: wgpu.TextureDataLayout{
						Offset:      0,
						BytesPerRow: width * 4,
					},
				}),
				mem.Make(arena, wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1}),
			)
			eng.downloads[cmd.Buffer.ID] = buf

		case *renderer.Download:
			proxy := cmd.Buffer
			srcBuf, ok := bindMap.getGPUBuf(proxy.ID)
			if !ok {
				panic("tried using unavailable buffer for download")
			}
			usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(proxy.Size, "download", usage, eng.Device)
			encoder.CopyBufferToBuffer(srcBuf, 0, buf, 0, proxy.Size)
			eng.downloads[proxy.ID] = buf

		case *renderer.Clear:
			proxy := cmd.Buffer
			offset := cmd.Offset
			size := cmd.Size
			if buf, ok := bindMap.getBuf(proxy); ok {
				switch b := buf.Buffer.(type) {
				case *wgpu.Buffer:
					encoder.ClearBuffer(b, offset, uint64(size))
				case []byte:
					slice := b[offset:]
					if size >= 0 {
						slice = slice[:size]
					}
					clear(slice)
				default:
					panic(fmt.Sprintf("unhandled type %T", b))
				}
			} else {
				bindMap.pendingClears.Insert(arena, proxy.ID, struct{}{})
			}

		case *renderer.FreeBuffer:
			freeBufs.Insert(arena, cmd.Buffer.ID, struct{}{})

		case *renderer.FreeImage:
			freeImages.Insert(arena, cmd.Image.ID, struct{}{})

		case *renderer.FreeImageArray:
			freeImages.Insert(arena, cmd.Image.ID, struct{}{})

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}

	cmd := encoder.Finish(nil)
	encoder.Release()
	queue.Submit(cmd)
	cmd.Release()

	for id := range freeBufs.Keys() {
		buf, ok := bindMap.bufMap.Get(id)
		if ok {
			bindMap.bufMap.Delete(id)
			if gpuBuf, ok := buf.Buffer.(*wgpu.Buffer); ok {
				props := bufferProperties{
					size:   gpuBuf.Size(),
					usages: gpuBuf.Usage(),
				}
				// TODO(dh): add a method to ResourcePool to return buffers
				eng.pool.bufs[props] = append(eng.pool.bufs[props], gpuBuf)
			}
		}
	}
	for id := range freeImages.Keys() {
		tex, ok := bindMap.imageMap.Get(id)
		if ok {
			bindMap.imageMap.Delete(id)
			// TODO: have a pool to avoid needless re-allocation
			tex.texture.Release()
			tex.view.Release()
		}
	}
}

func (eng *Engine) getDownload(buf renderer.BufferProxy) (*wgpu.Buffer, bool) {
	got, ok := eng.downloads[buf.ID]
	return got, ok
}

func (eng *Engine) freeDownload(buf renderer.BufferProxy) {
	delete(eng.downloads, buf.ID)
}

// ReadDownload blocks until buf (populated by a prior CopyTextureToBuffer or
// CopyBufferToBuffer command in the same submitted recording) is mapped for
// reading, copies its bytes into out, and frees the download slot. len(out)
// must not exceed the buffer's size. Callers do this once per armed
// screenshot, after the frame's command buffer has been submitted to queue.
func (eng *Engine) ReadDownload(queue *wgpu.Queue, buf renderer.BufferProxy, out []byte) bool {
	gpuBuf, ok := eng.getDownload(buf)
	if !ok {
		return false
	}
	defer eng.freeDownload(buf)

	ch := gpuBuf.Map(eng.Device, wgpu.MapModeRead, 0, len(out))
	for {
		select {
		case err := <-ch:
			if err != nil {
				panic(err)
			}
			mapped := gpuBuf.ReadOnlyMappedRange(0, len(out))
			copy(out, mapped)
			gpuBuf.Unmap()
			return true
		default:
			eng.Device.Poll(true)
		}
	}
}

func (eng *Engine) createComputePipeline(
	label string,
	wgsl []byte,
	entries []wgpu.BindGroupLayoutEntry,
) wgpuShader {
	// OPT(dh): use SPIR-V instead of WGSL for faster engine creation.
	shaderModule := eng.Device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  label,
		Source: wgpu.ShaderSourceWGSL(wgsl),
	})
	bindGroupLayout := eng.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: entries,
	})
	computePipelineLayout := eng.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	pipeline := eng.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: computePipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "main",
			// XXX compilation_options
		},
	})
	computePipelineLayout.Release()

	return wgpuShader{
		label:           label,
		pipeline:        pipeline,
		bindGroupLayout: bindGroupLayout,
	}
}

func (m *bindMap) insertBuf(arena *mem.Arena, proxy renderer.BufferProxy, buffer *wgpu.Buffer) {
	m.bufMap.Insert(arena, proxy.ID, &bindMapBuffer{
		Buffer: buffer,
		Label:  proxy.Name,
	})
}

func (m *bindMap) getGPUBuf(id renderer.ResourceID) (*wgpu.Buffer, bool) {
	mbuf, ok := m.bufMap.Get(id)
	if !ok {
		return nil, false
	}
	buf, ok := mbuf.Buffer.(*wgpu.Buffer)
	return buf, ok
}

func (m *bindMap) getCPUBuf(id renderer.ResourceID) cpuBinding {
	b, ok := m.bufMap.Get(id)
	buf, ok := b.Buffer.([]byte)
	if !ok {
		panic("getting CPU buffer, but it's on GPU")
	}
	return cpuBufferRW(buf)
}

func (m *bindMap) materializeCPUBuf(arena *mem.Arena, proxy renderer.BufferProxy) {
	if _, ok := m.bufMap.Get(proxy.ID); !ok {
		buffer := make([]byte, proxy.Size)
		m.bufMap.Insert(arena, proxy.ID, &bindMapBuffer{
			Buffer: buffer,
			Label:  proxy.Name,
		})
	}
}

func (m *bindMap) insertImage(arena *mem.Arena, id renderer.ResourceID, image *wgpu.Texture, imageView *wgpu.TextureView) {
	m.imageMap.Insert(arena, id, &bindMapImage{image, imageView})
}

func (m *bindMap) getBuf(proxy renderer.BufferProxy) (*bindMapBuffer, bool) {
	b, ok := m.bufMap.Get(proxy.ID)
	return b, ok
}

func (m *bindMap) getOrCreateImage(
	arena *mem.Arena,
	proxy renderer.ImageProxy,
	dev *wgpu.Device,
) (*wgpu.Texture, *wgpu.TextureView) {
	if entry, ok := m.imageMap.Get(proxy.ID); ok {
		return entry.texture, entry.view
	}

	format := imageFormatToWGPU(proxy.Format)
	texture := dev.CreateTexture(&wgpu.TextureDescriptor{
		Size: wgpu.Extent3D{
			Width:              proxy.Width,
			Height:             proxy.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Format:        format,
	})
	textureView := texture.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2D,
		Aspect:          wgpu.TextureAspectAll,
		MipLevelCount:   ^uint32(0),
		BaseMipLevel:    0,
		BaseArrayLayer:  0,
		ArrayLayerCount: ^uint32(0),
		Format:          imageFormatToWGPU(proxy.Format),
	})
	m.imageMap.Insert(arena, proxy.ID, &bindMapImage{
		texture, textureView,
	})

	return texture, textureView
}

// getOrCreateImageArray is getOrCreateImage's texture-array counterpart,
// used to materialize the quad texture array the first time upload_slice
// writes into it.
func (m *bindMap) getOrCreateImageArray(
	arena *mem.Arena,
	proxy renderer.ArrayImageProxy,
	dev *wgpu.Device,
) (*wgpu.Texture, *wgpu.TextureView) {
	if entry, ok := m.imageMap.Get(proxy.ID); ok {
		return entry.texture, entry.view
	}

	format := imageFormatToWGPU(proxy.Format)
	texture := dev.CreateTexture(&wgpu.TextureDescriptor{
		Size: wgpu.Extent3D{
			Width:              proxy.Width,
			Height:             proxy.Height,
			DepthOrArrayLayers: proxy.Layers,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Format:        format,
	})
	textureView := texture.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2DArray,
		Aspect:          wgpu.TextureAspectAll,
		MipLevelCount:   ^uint32(0),
		BaseMipLevel:    0,
		BaseArrayLayer:  0,
		ArrayLayerCount: ^uint32(0),
		Format:          format,
	})
	m.imageMap.Insert(arena, proxy.ID, &bindMapImage{
		texture, textureView,
	})

	return texture, textureView
}

func (pool *resourcePool) getBuf(
	size uint64,
	name string,
	usage wgpu.BufferUsage,
	dev *wgpu.Device,
) *wgpu.Buffer {
	const sizeClassBits = 1

	roundedSize := poolSizeClass(size, sizeClassBits)
	props := bufferProperties{
		size:   roundedSize,
		usages: usage,
	}
	if bufVec, ok := pool.bufs[props]; ok {
		if len(bufVec) > 0 {
			buf := bufVec[len(bufVec)-1]
			bufVec = bufVec[:len(bufVec)-1]
			pool.bufs[props] = bufVec
			return buf
		}
	}
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: name,
		Size:  roundedSize,
		Usage: usage,
	})
}

func poolSizeClass(x uint64, numBits uint32) uint64 {
	if x > 1<<numBits {
		a := bits.LeadingZeros64(x - 1)
		b := (x - 1) | (((math.MaxUint64 / 2) >> numBits) >> a)
		return b + 1
	} else {
		return 1 << numBits
	}
}

func (b *bindMapBuffer) uploadIfNeeded(
	proxy renderer.BufferProxy,
	dev *wgpu.Device,
	queue *wgpu.Queue,
	pool *resourcePool,
) {
	cpuBuf, ok := b.Buffer.([]byte)
	if !ok {
		return
	}
	usage := wgpu.BufferUsageCopySrc |
		wgpu.BufferUsageCopyDst |
		wgpu.BufferUsageStorage |
		wgpu.BufferUsageIndirect
	buf := pool.getBuf(proxy.Size, proxy.Name, usage, dev)
	queue.WriteBuffer(buf, 0, cpuBuf)
	b.Buffer = buf
}

func newTransientBindMap(arena *mem.Arena, externalResources []ExternalResource) transientBindMap {
	bufs := mem.BinaryTreeMap[renderer.ResourceID, transientBuf]{}
	images := mem.BinaryTreeMap[renderer.ResourceID, *bindMapImage]{}
	for _, res := range externalResources {
		switch res := res.(type) {
		case ExternalBuffer:
			bufs.Insert(arena, res.Proxy.ID, transientBuf{kind: transientBufKindBuffer, buffer: res.Buffer})
		case ExternalImage:
			images.Insert(arena, res.Proxy.ID, &bindMapImage{res.Texture, res.View})
		case ExternalImageArray:
			images.Insert(arena, res.Proxy.ID, &bindMapImage{res.Texture, res.View})
		}
	}
	return transientBindMap{
		bufs:   bufs,
		images: images,
	}
}

func (m *transientBindMap) materializeGPUBufForIndirect(
	bindMap *bindMap,
	pool *resourcePool,
	dev *wgpu.Device,
	queue *wgpu.Queue,
	buf renderer.BufferProxy,
) {
	if _, ok := m.bufs.Get(buf.ID); ok {
		return
	}
	if b, ok := bindMap.bufMap.Get(buf.ID); ok {
		b.uploadIfNeeded(buf, dev, queue, pool)
	}
}

func (m *transientBindMap) createBindGroup(
	arena *mem.Arena,
	bindMap *bindMap,
	pool *resourcePool,
	dev *wgpu.Device,
	queue *wgpu.Queue,
	encoder *wgpu.CommandEncoder,
	layout *wgpu.BindGroupLayout,
	bindings []renderer.ResourceProxy,
) *wgpu.BindGroup {
	for _, proxy := range bindings {
		switch proxy.Kind {
		case renderer.ResourceProxyKindBuffer:
			if _, ok := m.bufs.Get(proxy.BufferProxy.ID); ok {
				continue
			}
			if o, ok := bindMap.bufMap.Get(proxy.BufferProxy.ID); ok {
				o.uploadIfNeeded(proxy.BufferProxy, dev, queue, pool)
			} else {
				// TODO: only some buffers will need indirect, but does it hurt?
				usage := wgpu.BufferUsageCopySrc |
					wgpu.BufferUsageCopyDst |
					wgpu.BufferUsageStorage |
					wgpu.BufferUsageIndirect
				buf := pool.getBuf(proxy.Size, proxy.Name, usage, dev)
				if _, ok := bindMap.pendingClears.Get(proxy.BufferProxy.ID); ok {
					bindMap.pendingClears.Delete(proxy.BufferProxy.ID)
					encoder.ClearBuffer(buf, 0, buf.Size())
				}
				bindMap.bufMap.Insert(arena, proxy.BufferProxy.ID, &bindMapBuffer{
					Buffer: buf,
					Label:  proxy.Name,
				})
			}
		case renderer.ResourceProxyKindImage:
			if _, ok := m.images.Get(proxy.ImageProxy.ID); ok {
				continue
			}
			if _, ok := bindMap.imageMap.Get(proxy.ImageProxy.ID); ok {
				continue
			}
			format := imageFormatToWGPU(proxy.ImageProxy.Format)
			texture := dev.CreateTexture(&wgpu.TextureDescriptor{
				Size: wgpu.Extent3D{
					Width:              proxy.ImageProxy.Width,
					Height:             proxy.ImageProxy.Height,
					DepthOrArrayLayers: 1,
				},
				MipLevelCount: 1,
				SampleCount:   1,
				Dimension:     wgpu.TextureDimension2D,
				// XXX this one needs storage binding, apparently?! this is line 887 in wgpu_engine.rs, and they don't set StorageBinding.
				Usage:  wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageStorageBinding,
				Format: format,
			})
			textureView := texture.CreateView(&wgpu.TextureViewDescriptor{
				Dimension:       wgpu.TextureViewDimension2D,
				Aspect:          wgpu.TextureAspectAll,
				MipLevelCount:   ^uint32(0),
				BaseMipLevel:    0,
				BaseArrayLayer:  0,
				ArrayLayerCount: ^uint32(0),
				Format:          format,
			})
			bindMap.imageMap.Insert(arena, proxy.ImageProxy.ID, &bindMapImage{
				texture, textureView,
			})
		case renderer.ResourceProxyKindImageArray:
			if _, ok := m.images.Get(proxy.ArrayImageProxy.ID); ok {
				continue
			}
			if _, ok := bindMap.imageMap.Get(proxy.ArrayImageProxy.ID); ok {
				continue
			}
			format := imageFormatToWGPU(proxy.ArrayImageProxy.Format)
			texture := dev.CreateTexture(&wgpu.TextureDescriptor{
				Size: wgpu.Extent3D{
					Width:              proxy.ArrayImageProxy.Width,
					Height:             proxy.ArrayImageProxy.Height,
					DepthOrArrayLayers: proxy.ArrayImageProxy.Layers,
				},
				MipLevelCount: 1,
				SampleCount:   1,
				Dimension:     wgpu.TextureDimension2D,
				Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
				Format:        format,
			})
			textureView := texture.CreateView(&wgpu.TextureViewDescriptor{
				Dimension:       wgpu.TextureViewDimension2DArray,
				Aspect:          wgpu.TextureAspectAll,
				MipLevelCount:   ^uint32(0),
				BaseMipLevel:    0,
				BaseArrayLayer:  0,
				ArrayLayerCount: ^uint32(0),
				Format:          format,
			})
			bindMap.imageMap.Insert(arena, proxy.ArrayImageProxy.ID, &bindMapImage{
				texture, textureView,
			})
		default:
			panic(fmt.Sprintf("unhandled type %d", proxy.Kind))
		}
	}

	entries := mem.NewSlice[[]wgpu.BindGroupEntry](arena, len(bindings), len(bindings))
	for i, proxy := range bindings {
		switch proxy.Kind {
		case renderer.ResourceProxyKindBuffer:
			var buf *wgpu.Buffer
			b, _ := m.bufs.Get(proxy.BufferProxy.ID)
			switch b.kind {
			case transientBufKindBuffer:
				buf = b.buffer
			default:
				var ok bool
				buf, ok = bindMap.getGPUBuf(proxy.BufferProxy.ID)
				if !ok {
					panic("unexpected ok == false")
				}
			}
			entries[i] = wgpu.BindGroupEntry{
				Binding: uint32(i),
				Buffer:  buf,
				Size:    ^uint64(0),
			}
		case renderer.ResourceProxyKindImage:
			var view *wgpu.TextureView
			if entry, ok := m.images.Get(proxy.ImageProxy.ID); ok {
				view = entry.view
			} else {
				img, ok := bindMap.imageMap.Get(proxy.ImageProxy.ID)
				if !ok {
					panic("unexpected ok == false")
				}
				view = img.view
			}
			entries[i] = wgpu.BindGroupEntry{
				Binding:     uint32(i),
				TextureView: view,
				Size:        ^uint64(0),
			}
		case renderer.ResourceProxyKindImageArray:
			var view *wgpu.TextureView
			if entry, ok := m.images.Get(proxy.ArrayImageProxy.ID); ok {
				view = entry.view
			} else {
				img, ok := bindMap.imageMap.Get(proxy.ArrayImageProxy.ID)
				if !ok {
					panic("unexpected ok == false")
				}
				view = img.view
			}
			entries[i] = wgpu.BindGroupEntry{
				Binding:     uint32(i),
				TextureView: view,
				Size:        ^uint64(0),
			}
		default:
			panic(fmt.Sprintf("unhandled type %T", proxy))
		}
	}

	return dev.CreateBindGroup(mem.Make(arena, wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	}))
}

func (m *transientBindMap) createCPUResources(
	arena *mem.Arena,
	bindMap *bindMap,
	bindings []renderer.ResourceProxy,
) []cpuBinding {
	for _, resource := range bindings {
		switch resource.Kind {
		case renderer.ResourceProxyKindBuffer:
			tbuf, _ := m.bufs.Get(resource.BufferProxy.ID)
			switch tbuf.kind {
			case transientBufKindBytes:
			case transientBufKindBuffer:
				panic("buffer was already materialized on GPU")
			case 0:
				bindMap.materializeCPUBuf(arena, resource.BufferProxy)
			default:
				panic(fmt.Sprintf("unhandled type %T", tbuf))
			}
		case renderer.ResourceProxyKindImage:
			panic("not implemented")
		default:
			panic(fmt.Sprintf("unhandled type %T", resource))
		}
	}

	out := make([]cpuBinding, len(bindings))
	for i, resource := range bindings {
		switch resource.Kind {
		case renderer.ResourceProxyKindBuffer:
			tbuf, _ := m.bufs.Get(resource.BufferProxy.ID)
			switch tbuf.kind {
			case tbuf.kind:
				out[i] = cpuBuffer(tbuf.bytes)
			default:
				out[i] = bindMap.getCPUBuf(resource.BufferProxy.ID)
			}
		case renderer.ResourceProxyKindImage:
			panic("not implemented")
		default:
			panic(fmt.Sprintf("unhandled type %T", resource))
		}
	}
	return out
}
