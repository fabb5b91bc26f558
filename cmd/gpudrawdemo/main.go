// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// gpudrawdemo is a headless driver that renders one frame through the
// library, capturing it to a PNG instead of presenting it to a window.
// It exists to give the module's TOML config dependency and its WGPU
// device bootstrap an actual caller outside the test suite.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"

	"honnef.co/go/color"
	"honnef.co/go/wgpu"

	"gpudraw"
	"gpudraw/font"
	"gpudraw/gfx"
	"gpudraw/jmath"
)

func dief(f string, v ...any) {
	fmt.Fprintf(os.Stderr, f, v...)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}

func main() {
	var configPath string
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config path]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&configPath, "config", "gpudrawdemo.toml", "Path to `file` holding the demo's settings")
	flag.Parse()

	cfg, err := readConfig(configPath)
	if err != nil {
		dief("Couldn't load config %q: %s", configPath, err)
	}

	var atlas *font.Atlas
	if cfg.FontAtlasPath != "" {
		data, err := os.ReadFile(cfg.FontAtlasPath)
		if err != nil {
			dief("Couldn't read font atlas %q: %s", cfg.FontAtlasPath, err)
		}
		a, ok := font.Parse(data)
		if !ok {
			dief("Couldn't parse font atlas %q", cfg.FontAtlasPath)
		}
		atlas = a
	}

	device, queue, cleanup, err := openDevice()
	if err != nil {
		dief("Couldn't open a WGPU device: %s", err)
	}
	defer cleanup()

	r := gpudraw.Init(gpudraw.RendererOptions{
		Device:          device,
		Queue:           queue,
		Width:           cfg.Width,
		Height:          cfg.Height,
		SurfaceFormat:   wgpu.TextureFormatBGRA8UnormSrgb,
		AllowScreenshot: true,
		FontAtlas:       atlas,
	})
	if r == nil {
		dief("gpudraw.Init failed: no device/queue")
	}
	defer r.Terminate()

	target := device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "gpudrawdemo target",
		Size: wgpu.Extent3D{
			Width:              cfg.Width,
			Height:             cfg.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
		Format:        wgpu.TextureFormatRGBA8Unorm,
	})
	defer target.Release()
	view := target.CreateView(nil)
	defer view.Release()

	renderDemoFrame(r, cfg, atlas)

	pixels := make([]byte, int(cfg.Width)*int(cfg.Height)*4)
	if !r.TakeScreenshot(pixels) {
		dief("screenshot armed before a renderer configured with AllowScreenshot=false")
	}
	r.EndFrame(view)

	if err := writePNG(cfg.OutputPath, cfg.Width, cfg.Height, pixels); err != nil {
		dief("Couldn't write %q: %s", cfg.OutputPath, err)
	}
}

// renderDemoFrame records a frame exercising a plain fill, a glyph sample
// (when a font atlas was configured), and a blended group, one of each
// compositing path the rasterizer implements.
func renderDemoFrame(r *gpudraw.Renderer, cfg config, atlas *font.Atlas) {
	r.BeginFrame()
	enc := r.Encoding()

	full := jmath.AABB{MinX: 0, MinY: 0, MaxX: float32(cfg.Width), MaxY: float32(cfg.Height)}
	enc.DrawBox(full, 0, 0, gfx.FillSolid, color.Color{}, gfx.OpOverwrite, 1, 0)

	cx, cy := float32(cfg.Width)/2, float32(cfg.Height)/2
	r.BeginGroup(gfx.OpBlend, 18, 4)
	enc.DrawDisc(jmath.Vec2{X: cx - 20, Y: cy}, 30, 0, gfx.FillSolid, color.Color{}, gfx.OpBlend, 1, 18)
	enc.DrawDisc(jmath.Vec2{X: cx + 20, Y: cy}, 30, 0, gfx.FillSolid, color.Color{}, gfx.OpBlend, 1, 18)
	r.EndGroup(color.Color{})

	if atlas != nil {
		if g, ok := atlas.Lookup('A'); ok {
			w, h := float32(atlas.TextureW), float32(atlas.TextureH)
			box := jmath.AABB{MinX: 8, MinY: 8, MaxX: 8 + g.BearingX + float32(g.X1-g.X0), MaxY: 8 + float32(g.Y1-g.Y0)}
			uv0 := jmath.Vec2{X: float32(g.X0) / w, Y: float32(g.Y0) / h}
			uv1 := jmath.Vec2{X: float32(g.X1) / w, Y: float32(g.Y1) / h}
			enc.DrawGlyph(box, uv0, uv1, color.Color{}, gfx.OpOverwrite)
		}
	}
}

func writePNG(path string, width, height uint32, pixels []byte) error {
	img := &image.RGBA{
		Pix:    pixels,
		Stride: int(width) * 4,
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// openDevice bootstraps a WGPU instance, adapter, and device the way every
// wgpu-native-backed Go binding in the retrieval pack does (CreateInstance,
// then RequestAdapter, then RequestDevice off the adapter, then the
// device's own queue), passing nil descriptors throughout for
// implementation-chosen defaults, the same "nil means defaults" idiom
// engine/wgpu_engine already relies on for CreateView/CreateCommandEncoder.
func openDevice() (device *wgpu.Device, queue *wgpu.Queue, cleanup func(), err error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return nil, nil, nil, fmt.Errorf("requesting adapter: %w", err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, nil, nil, fmt.Errorf("requesting device: %w", err)
	}
	q := dev.GetQueue()

	return dev, q, func() {
		dev.Release()
		adapter.Release()
		instance.Release()
	}, nil
}
