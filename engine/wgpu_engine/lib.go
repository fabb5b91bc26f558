package wgpu_engine

import (
	"fmt"

	"gpudraw/encoding"
	"gpudraw/engine/wgpu_engine/shaders"
	"gpudraw/mem"
	"gpudraw/renderer"
	"honnef.co/go/wgpu"
)

// RendererOptions configures the WGPU engine at construction time.
// AllowScreenshot matches od_init's allow_screenshot flag: it is handed to
// the engine's Screenshotter, which only arms a capture when it is set. It
// does not change the render target's format.
type RendererOptions struct {
	SurfaceFormat   wgpu.TextureFormat
	UseCPU          bool
	AllowScreenshot bool
	// TODO threading for shader init

	// FontAtlasWidth/Height/Pixels describe the pre-baked glyph coverage
	// texture DrawGlyph's rasterizer samples, the GPU counterpart to
	// od_build_font; Pixels is already expanded to RGBA8, Width*Height*4
	// bytes. Left zero, the engine binds a 1x1 placeholder instead.
	FontAtlasWidth, FontAtlasHeight uint32
	FontAtlasPixels                []byte

	// QuadArrayWidth/Height/Slices size the texture array UploadSlice
	// populates, matching od_init's atlas{width,height,num_slices} (spec
	// caps num_slices at 256). Left zero, the engine binds a single 1x1
	// placeholder layer instead.
	QuadArrayWidth, QuadArrayHeight, QuadArraySlices uint32
}

var bindTypeMapping = [...]renderer.BindType{
	shaders.Buffer:         {Type: renderer.BindTypeBuffer},
	shaders.BufReadOnly:    {Type: renderer.BindTypeBufReadOnly},
	shaders.Uniform:        {Type: renderer.BindTypeUniform},
	shaders.Image:          {Type: renderer.BindTypeImage, ImageFormat: renderer.Rgba8},
	shaders.ImageRead:      {Type: renderer.BindTypeImageRead, ImageFormat: renderer.Rgba8},
	shaders.ImageArrayRead: {Type: renderer.BindTypeImageArrayRead, ImageFormat: renderer.Rgba8},
}

// newShaderIDs registers every compute kernel in shaders.Collection plus
// the rasterizer's render pipeline, returning the IDs BuildFrameRecording
// dispatches against.
func (engine *Engine) newShaderIDs() renderer.ShaderIDs {
	toBindings := func(kinds []shaders.BindType) []renderer.BindType {
		out := make([]renderer.BindType, len(kinds))
		for i, b := range kinds {
			out[i] = bindTypeMapping[b]
		}
		return out
	}

	addCompute := func(s *shaders.ComputeShader) renderer.ShaderID {
		if len(s.WGSL.Code) == 0 {
			panic(fmt.Sprintf("shader %q has no code", s.Name))
		}
		return engine.addShader(s.Name, s.WGSL.Code, toBindings(s.Bindings), nil)
	}

	return renderer.ShaderIDs{
		RegionPredicate:     addCompute(&shaders.Collection.RegionPredicate),
		RegionExclusiveScan: addCompute(&shaders.Collection.RegionExclusiveScan),
		RegionBin:           addCompute(&shaders.Collection.RegionBin),
		TileBin:             addCompute(&shaders.Collection.TileBin),
		WriteICB:            addCompute(&shaders.Collection.WriteICB),
		Rasterize: engine.addRenderShader(
			shaders.Collection.Rasterize.Name,
			shaders.Collection.Rasterize.WGSL.Code,
			toBindings(shaders.Collection.Rasterize.Bindings),
			imageFormatToWGPU(renderer.Rgba8),
		),
	}
}

type blitPipeline struct {
	BindLayout *wgpu.BindGroupLayout
	Pipeline   *wgpu.RenderPipeline
}

func newBlitPipeline(dev *wgpu.Device, format wgpu.TextureFormat) *blitPipeline {
	const src = `
			@vertex
			fn vs_main(@builtin(vertex_index) ix: u32) -> @builtin(position) vec4<f32> {
				// Generate a full screen quad in normalized device coordinates
				var vertex = vec2(-1.0, 1.0);
				switch ix {
					case 1u: {
						vertex = vec2(-1.0, -1.0);
					}
					case 2u, 4u: {
						vertex = vec2(1.0, -1.0);
					}
					case 5u: {
						vertex = vec2(1.0, 1.0);
					}
					default: {}
				}
				return vec4(vertex, 0.0, 1.0);
			}

			@group(0) @binding(0)
			var fine_output: texture_2d<f32>;

			@fragment
			fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
				let rgba_sep = textureLoad(fine_output, vec2<i32>(pos.xy), 0);
				return vec4(rgba_sep.rgb * rgba_sep.a, rgba_sep.a);
			}`

	shader := dev.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  "blit shaders",
		Source: wgpu.ShaderSourceWGSL(src),
	})
	bindLayout := dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Visibility: wgpu.ShaderStageFragment,
				Binding:    0,
				Texture: &wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
					Multisampled:  false,
				},
			},
		},
	})
	pipelineLayout := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "blit pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindLayout},
	})
	pipeline := dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "blit pipeline",
		Layout: pipelineLayout,
		Vertex: &wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: &wgpu.PrimitiveState{
			Topology:         wgpu.PrimitiveTopologyTriangleList,
			StripIndexFormat: ^wgpu.IndexFormat(0),
			FrontFace:        wgpu.FrontFaceCCW,
			CullMode:         wgpu.CullModeBack,
		},
		Multisample: &wgpu.MultisampleState{
			Count:                  1,
			Mask:                   ^uint32(0),
			AlphaToCoverageEnabled: false,
		},
	})
	return &blitPipeline{
		BindLayout: bindLayout,
		Pipeline:   pipeline,
	}
}

type targetTexture struct {
	View   *wgpu.TextureView
	Width  uint32
	Height uint32
}

func newTargetTexture(dev *wgpu.Device, width, height uint32) *targetTexture {
	tex := dev.CreateTexture(&wgpu.TextureDescriptor{
		Label: "target texture",
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
		Format:        wgpu.TextureFormatRGBA8Unorm,
	})
	defer tex.Release()
	view := tex.CreateView(nil)
	return &targetTexture{
		View:   view,
		Width:  width,
		Height: height,
	}
}

func imageFormatToWGPU(f renderer.ImageFormat) wgpu.TextureFormat {
	switch f {
	case renderer.Rgba8:
		return wgpu.TextureFormatRGBA8Unorm
	case renderer.Rgba8Srgb:
		return wgpu.TextureFormatRGBA8UnormSrgb
	case renderer.Bgra8:
		return wgpu.TextureFormatBGRA8Unorm
	case renderer.Bgra8Srgb:
		return wgpu.TextureFormatBGRA8UnormSrgb
	default:
		panic(fmt.Sprintf("unhandled value %d", f))
	}
}

func (eng *Engine) RenderToTexture(
	arena *mem.Arena,
	queue *wgpu.Queue,
	enc *encoding.Encoding,
	texture *wgpu.TextureView,
	params *renderer.RenderParams,
	pgroup *ProfilerGroup,
) {
	pgroup = pgroup.Nest("RenderToTexture")
	defer pgroup.End()

	target := renderer.NewImageProxy(params.Width, params.Height, renderer.Rgba8)
	cfg := renderer.NewRenderConfig(params.Width, params.Height, uint32(len(enc.Commands)), params.ClearColor, params.CullingDebug, params.AAWidth)
	recording := renderer.BuildFrameRecording(arena, enc, eng.shaderIDs, cfg, target, eng.fontProxy, eng.quadArrayProxy)

	var captureBuf renderer.BufferProxy
	var captureOut []byte
	if eng.screenshot.Armed() {
		captureOut, _ = eng.screenshot.Take()
		region := eng.screenshot.Region(params.Width, params.Height)
		captureBuf = recording.AppendCapture(arena, target, region)
	}

	externalResources := []ExternalResource{
		ExternalImage{
			Proxy: target,
			View:  texture,
		},
		ExternalImage{
			Proxy:   eng.fontProxy,
			Texture: eng.fontTexture,
			View:    eng.fontView,
		},
		ExternalImageArray{
			Proxy:   eng.quadArrayProxy,
			Texture: eng.quadArrayTexture,
			View:    eng.quadArrayView,
		},
	}
	eng.RunRecording(arena, queue, recording, externalResources, "render_to_texture", pgroup)

	if captureOut != nil {
		eng.ReadDownload(queue, captureBuf, captureOut)
	}
}

func (eng *Engine) RenderToSurface(
	arena *mem.Arena,
	queue *wgpu.Queue,
	enc *encoding.Encoding,
	surface *wgpu.SurfaceTexture,
	params *renderer.RenderParams,
	pgroup *ProfilerGroup,
) {
	pgroup = pgroup.Nest("RenderToSurface")
	defer pgroup.End()

	width := params.Width
	height := params.Height
	if eng.target == nil {
		eng.target = newTargetTexture(eng.Device, width, height)
	} else if eng.target.Width != width || eng.target.Height != height {
		eng.target.View.Release()
		eng.target = newTargetTexture(eng.Device, width, height)
	}

	ency := eng.Device.CreateCommandEncoder(nil)
	span := pgroup.Begin(ency, "total")
	cmdy := ency.Finish(nil)
	defer cmdy.Release()
	queue.Submit(cmdy)

	eng.RenderToTexture(arena, queue, enc, eng.target.View, params, pgroup)

	surfaceView := surface.Texture.CreateView(nil)
	defer surfaceView.Release()

	bindGroup := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: eng.blit.BindLayout,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding:     0,
				TextureView: eng.target.View,
			},
		},
	})
	defer bindGroup.Release()

	encoder := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "blitter"})
	defer encoder.Release()
	renderPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       surfaceView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 255, B: 0, A: 255},
			},
		},
		TimestampWrites: pgroup.Render(arena, "blit"),
	})
	defer renderPass.Release()

	renderPass.SetPipeline(eng.blit.Pipeline)
	renderPass.SetBindGroup(0, bindGroup, nil)
	renderPass.Draw(6, 1, 0, 0)
	renderPass.End()

	span.End(encoder)
	cmd := encoder.Finish(nil)
	defer cmd.Release()
	queue.Submit(cmd)

}
