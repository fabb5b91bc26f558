// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package shaders

// uniformsWGSL is the WGSL mirror of renderer.FrameUniform, shared by every
// stage's binding 0.
const uniformsWGSL = `
struct Uniforms {
	clear_color: vec4<f32>,
	num_commands: u32,
	max_nodes: u32,
	target_width: u32,
	target_height: u32,
	width_in_tiles: u32,
	height_in_tiles: u32,
	width_in_regions: u32,
	height_in_regions: u32,
	culling_debug: u32,
	aa_width: f32,
}

fn unpack_quant_aabb(packed: u32) -> vec4<u32> {
	return vec4<u32>(
		packed & 0xffu,
		(packed >> 8u) & 0xffu,
		(packed >> 16u) & 0xffu,
		(packed >> 24u) & 0xffu,
	);
}

// linearstep mirrors jmath.LinearStep: a plain linear ramp between edge0 and
// edge1, rather than smoothstep's cubic ease, matching the anti-aliasing
// falloff the coverage formula is specified against.
fn linearstep(edge0: f32, edge1: f32, x: f32) -> f32 {
	if edge1 == edge0 {
		return select(1.0, 0.0, x < edge0);
	}
	return clamp((x - edge0) / (edge1 - edge0), 0.0, 1.0);
}
`

const regionPredicateWGSL = uniformsWGSL + `
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> commands: array<vec2<u32>>;
@group(0) @binding(2) var<storage, read> aabbs: array<u32>;
@group(0) @binding(3) var<storage, read_write> region_predicate: array<u32>;

const REGION_SIZE: u32 = 16u;

@compute @workgroup_size(32, 1, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let i = gid.x;
	if i >= uniforms.num_commands {
		return;
	}
	let box = unpack_quant_aabb(aabbs[i]);
	let bx0 = box.x / REGION_SIZE;
	let by0 = box.y / REGION_SIZE;
	let bx1 = box.z / REGION_SIZE;
	let by1 = box.w / REGION_SIZE;
	let num_regions = max(uniforms.width_in_regions * uniforms.height_in_regions, 1u);
	for (var r: u32 = 0u; r < num_regions; r = r + 1u) {
		let rx = r % uniforms.width_in_regions;
		let ry = r / uniforms.width_in_regions;
		let hit = rx >= bx0 && rx <= bx1 && ry >= by0 && ry <= by1;
		region_predicate[r * uniforms.num_commands + i] = select(0u, 1u, hit);
	}
}
`

// regionExclusiveScanWGSL runs as a single workgroup of one thread: the
// predicate array is sized num_regions*num_commands, which for this
// module's expected command counts fits comfortably in one serial pass,
// matching NewWorkgroupCounts.ExclusiveScan's single-threadgroup sizing. The
// running sum restarts at each region's num_commands-wide slice.
const regionExclusiveScanWGSL = uniformsWGSL + `
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> region_predicate: array<u32>;
@group(0) @binding(2) var<storage, read_write> region_scan: array<u32>;

@compute @workgroup_size(1, 1, 1)
fn main() {
	let num_regions = max(uniforms.width_in_regions * uniforms.height_in_regions, 1u);
	let n = num_regions * uniforms.num_commands;
	var sum: u32 = 0u;
	for (var i: u32 = 0u; i < n; i = i + 1u) {
		if (i % uniforms.num_commands == 0u) {
			sum = 0u;
		}
		region_scan[i] = sum;
		sum = sum + region_predicate[i];
	}
}
`

const regionBinWGSL = uniformsWGSL + `
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> region_predicate: array<u32>;
@group(0) @binding(2) var<storage, read> region_scan: array<u32>;
@group(0) @binding(3) var<storage, read_write> region_indices: array<u32>;

@compute @workgroup_size(32, 1, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let i = gid.x;
	if i >= uniforms.num_commands {
		return;
	}
	let num_regions = max(uniforms.width_in_regions * uniforms.height_in_regions, 1u);
	for (var r: u32 = 0u; r < num_regions; r = r + 1u) {
		let idx = r * uniforms.num_commands + i;
		if region_predicate[idx] == 1u {
			region_indices[r * uniforms.num_commands + region_scan[idx]] = i;
		}
	}
}
`

// tileBinWGSL builds each tile's singly linked command list by bump
// allocating a node per (command, tile) hit and prepending it onto
// tile_heads with an atomic exchange, the same construction
// renderer.cpp's GPU binner uses. Node index 0 is reserved to mean "list
// end", so a freshly zero-cleared tile_heads buffer needs no separate
// sentinel fill: the allocator biases every real index by one. A tile is
// appended to tile_indices the first time its head transitions away from 0
// this frame, building the compact list of touched tiles write_icb and
// vs_main read through rather than every tile in the grid.
const tileBinWGSL = uniformsWGSL + `
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> commands: array<vec2<u32>>;
@group(0) @binding(2) var<storage, read> aabbs: array<u32>;
@group(0) @binding(3) var<storage, read> region_indices: array<u32>;
@group(0) @binding(4) var<storage, read_write> tile_heads: array<atomic<u32>>;
@group(0) @binding(5) var<storage, read_write> tile_nodes: array<vec2<u32>>;
@group(0) @binding(6) var<storage, read_write> counters: array<atomic<u32>>;
@group(0) @binding(7) var<storage, read_write> tile_indices: array<u32>;

@compute @workgroup_size(32, 32, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let cmd_i = gid.x;
	let tile_i = gid.y;
	if cmd_i >= uniforms.num_commands {
		return;
	}
	let num_tiles = uniforms.width_in_tiles * uniforms.height_in_tiles;
	if tile_i >= num_tiles {
		return;
	}

	let box = unpack_quant_aabb(aabbs[cmd_i]);
	let tx = tile_i % uniforms.width_in_tiles;
	let ty = tile_i / uniforms.width_in_tiles;
	if tx < box.x || tx > box.z || ty < box.y || ty > box.w {
		return;
	}

	let raw = atomicAdd(&counters[0], 1u);
	let node_idx = raw + 1u;
	if node_idx >= uniforms.max_nodes {
		return;
	}

	let cmd = commands[cmd_i];
	let cmd_type = (cmd.y >> 24u) & 0x3fu;
	let prev_head = atomicExchange(&tile_heads[tile_i], node_idx);
	if prev_head == 0u {
		let slot = atomicAdd(&counters[1], 1u);
		tile_indices[slot] = tile_i;
	}
	tile_nodes[node_idx - 1u] = vec2<u32>(prev_head, cmd_i | (cmd_type << 16u));
}
`

const writeICBWGSL = uniformsWGSL + `
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> counters: array<u32>;
@group(0) @binding(2) var<storage, read_write> indirect: array<u32>;

@compute @workgroup_size(1, 1, 1)
fn main() {
	indirect[0] = 6u; // vertex_count: a tile quad, two triangles
	indirect[1] = max(counters[1], 1u); // instance_count: one instance per touched tile
	indirect[2] = 0u; // first_vertex
	indirect[3] = 0u; // first_instance
}
`

// rasterizeWGSL is the tile-parallel fragment evaluator: each instance
// covers one tile's pixels, and the fragment stage walks that tile's node
// list front-to-back (head first, i.e. most recently submitted command
// first) compositing each primitive's SDF coverage under whatever has
// already been written, the standard front-to-back "under" operator.
const rasterizeWGSL = uniformsWGSL + `
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> commands: array<vec2<u32>>;
@group(0) @binding(2) var<storage, read> colors: array<u32>;
@group(0) @binding(3) var<storage, read> aabbs: array<u32>;
@group(0) @binding(4) var<storage, read> draw_data: array<f32>;
@group(0) @binding(5) var<storage, read> clips: array<ClipShape>;
@group(0) @binding(6) var<storage, read> tile_heads: array<u32>;
@group(0) @binding(7) var<storage, read> tile_nodes: array<vec2<u32>>;
@group(0) @binding(8) var font_atlas: texture_2d<f32>;
@group(0) @binding(9) var quad_array: texture_2d_array<f32>;
@group(0) @binding(10) var<storage, read> tile_indices: array<u32>;

// ClipShape mirrors encoding.Clip: kind 0 is a rect (a,b,c,d =
// min_x,min_y,max_x,max_y), kind 1 is a disc (a,b,c = center_x,center_y,
// radius; d unused). The padding words keep the stride equal to two
// vec4<f32>s, matching the Go struct's layout regardless of variant.
struct ClipShape {
	kind: u32,
	pad0: u32,
	pad1: u32,
	pad2: u32,
	a: f32,
	b: f32,
	c: f32,
	d: f32,
}

struct VertexOut {
	@builtin(position) position: vec4<f32>,
	@location(0) tile_origin: vec2<f32>,
	@location(1) @interpolate(flat) tile_index: u32,
}

const TILE_SIZE: f32 = 16.0;

@vertex
fn vs_main(@builtin(vertex_index) vid: u32, @builtin(instance_index) iid: u32) -> VertexOut {
	var corner = vec2<f32>(0.0, 0.0);
	switch vid {
		case 1u: { corner = vec2<f32>(1.0, 0.0); }
		case 2u, 4u: { corner = vec2<f32>(1.0, 1.0); }
		case 5u: { corner = vec2<f32>(0.0, 1.0); }
		default: {}
	}

	let tile_i = tile_indices[iid];
	let width_in_tiles = uniforms.width_in_tiles;
	let tx = f32(tile_i % width_in_tiles);
	let ty = f32(tile_i / width_in_tiles);

	let pixel = (vec2<f32>(tx, ty) + corner) * TILE_SIZE;
	let target = vec2<f32>(f32(uniforms.target_width), f32(uniforms.target_height));
	let ndc = vec2<f32>(pixel.x / target.x, pixel.y / target.y) * 2.0 - vec2<f32>(1.0, 1.0);

	var out: VertexOut;
	out.position = vec4<f32>(ndc.x, -ndc.y, 0.0, 1.0);
	out.tile_origin = vec2<f32>(tx, ty) * TILE_SIZE;
	out.tile_index = tile_i;
	return out;
}

fn unpack_bgra8(v: u32) -> vec4<f32> {
	let b = f32(v & 0xffu) / 255.0;
	let g = f32((v >> 8u) & 0xffu) / 255.0;
	let r = f32((v >> 16u) & 0xffu) / 255.0;
	let a = f32((v >> 24u) & 0xffu) / 255.0;
	return vec4<f32>(r, g, b, a);
}

fn sd_box(p: vec2<f32>, b: vec2<f32>, r: f32) -> f32 {
	let d = abs(p) - b + vec2<f32>(r, r);
	return min(max(d.x, d.y), 0.0) + length(max(d, vec2<f32>(0.0, 0.0))) - r;
}

fn sd_segment(p: vec2<f32>, a: vec2<f32>, b: vec2<f32>) -> f32 {
	let pa = p - a;
	let ba = b - a;
	let h = clamp(dot(pa, ba) / max(dot(ba, ba), 1e-6), 0.0, 1.0);
	return length(pa - ba * h);
}

fn sd_ellipse(p: vec2<f32>, ab: vec2<f32>) -> f32 {
	// Cheap analytic approximation, accurate near the boundary.
	let k0 = length(p / ab);
	let k1 = length(p / (ab * ab));
	return k0 * (k0 - 1.0) / max(k1, 1e-6);
}

fn sd_triangle(p: vec2<f32>, a: vec2<f32>, b: vec2<f32>, c: vec2<f32>) -> f32 {
	let e0 = b - a;
	let e1 = c - b;
	let e2 = a - c;
	let v0 = p - a;
	let v1 = p - b;
	let v2 = p - c;
	let pq0 = v0 - e0 * clamp(dot(v0, e0) / dot(e0, e0), 0.0, 1.0);
	let pq1 = v1 - e1 * clamp(dot(v1, e1) / dot(e1, e1), 0.0, 1.0);
	let pq2 = v2 - e2 * clamp(dot(v2, e2) / dot(e2, e2), 0.0, 1.0);
	let s = sign(e0.x * e2.y - e0.y * e2.x);
	let d0 = vec2<f32>(dot(pq0, pq0), s * (v0.x * e0.y - v0.y * e0.x));
	let d1 = vec2<f32>(dot(pq1, pq1), s * (v1.x * e1.y - v1.y * e1.x));
	let d2 = vec2<f32>(dot(pq2, pq2), s * (v2.x * e2.y - v2.y * e2.x));
	let d = min(min(d0, d1), d2);
	return -sqrt(d.x) * sign(d.y);
}

fn sd_pie(p: vec2<f32>, start_angle: f32, end_angle: f32, radius: f32) -> f32 {
	let mid = (start_angle + end_angle) * 0.5;
	let half = (end_angle - start_angle) * 0.5;
	let c = vec2<f32>(sin(half), cos(half));
	let rot = vec2<f32>(
		p.x * cos(-mid) - p.y * sin(-mid),
		p.x * sin(-mid) + p.y * cos(-mid),
	);
	let q = vec2<f32>(abs(rot.x), rot.y);
	let l = length(q) - radius;
	let m = length(q - c * clamp(dot(q, c), 0.0, radius));
	return max(l, m * sign(c.y * q.x - c.x * q.y));
}

fn sd_arc(p: vec2<f32>, start_angle: f32, end_angle: f32, radius: f32, thickness: f32) -> f32 {
	let mid = (start_angle + end_angle) * 0.5;
	let half = (end_angle - start_angle) * 0.5;
	let c = vec2<f32>(sin(half), cos(half));
	let rot = vec2<f32>(
		p.x * cos(-mid) - p.y * sin(-mid),
		p.x * sin(-mid) + p.y * cos(-mid),
	);
	let q = vec2<f32>(abs(rot.x), rot.y);
	var d: f32;
	if c.y * q.x > c.x * q.y {
		d = length(q - c * radius);
	} else {
		d = abs(length(q) - radius);
	}
	return d - thickness * 0.5;
}

const COMMAND_TYPE_MASK: u32 = 0x3fu;
const FILL_SOLID: u32 = 0u;
const FILL_OUTLINE: u32 = 1u;
const FILL_HOLLOW: u32 = 2u;
const FILL_GRADIENT: u32 = 3u;

// eval_sdf returns the signed distance of pixel p (in primitive-local
// space) to command cmd_i's shape, already adjusted for fill mode so that
// negative is inside.
fn eval_sdf(cmd_i: u32, p: vec2<f32>) -> f32 {
	let cmd = commands[cmd_i];
	let typ = (cmd.y >> 24u) & COMMAND_TYPE_MASK;
	let fill = (cmd.y >> 16u) & 0xffu;
	let base = cmd.x;

	var d: f32 = 1e6;
	switch typ {
		case 1u: { // aabox
			let minx = draw_data[base + 0u];
			let miny = draw_data[base + 1u];
			let maxx = draw_data[base + 2u];
			let maxy = draw_data[base + 3u];
			let roundness = draw_data[base + 4u];
			let rt = draw_data[base + 5u];
			let c = vec2<f32>((minx + maxx) * 0.5, (miny + maxy) * 0.5);
			let b = vec2<f32>((maxx - minx) * 0.5, (maxy - miny) * 0.5);
			d = sd_box(p - c, b, roundness);
			if fill == FILL_HOLLOW || fill == FILL_OUTLINE {
				d = abs(d) - rt;
			}
		}
		case 2u: { // oriented box / capsule
			let p0 = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
			let p1 = vec2<f32>(draw_data[base + 2u], draw_data[base + 3u]);
			let width = draw_data[base + 4u];
			let rt = draw_data[base + 5u];
			d = sd_segment(p, p0, p1) - width * 0.5;
			if fill == FILL_HOLLOW || fill == FILL_OUTLINE {
				d = abs(d) - rt;
			}
		}
		case 3u: { // disc
			let c = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
			let radius = draw_data[base + 2u];
			d = length(p - c) - radius;
			if fill == FILL_HOLLOW {
				let thickness = draw_data[base + 3u];
				d = abs(d) - thickness;
			} else if fill == FILL_OUTLINE {
				d = abs(d) - 1.0;
			}
		}
		case 4u: { // triangle
			let a = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
			let b = vec2<f32>(draw_data[base + 2u], draw_data[base + 3u]);
			let c = vec2<f32>(draw_data[base + 4u], draw_data[base + 5u]);
			let thickness = draw_data[base + 6u];
			d = sd_triangle(p, a, b, c);
			if fill == FILL_HOLLOW || fill == FILL_OUTLINE {
				d = abs(d) - thickness;
			}
		}
		case 5u: { // ellipse
			let c = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
			let ab = vec2<f32>(draw_data[base + 2u], draw_data[base + 3u]);
			let thickness = draw_data[base + 4u];
			d = sd_ellipse(p - c, ab);
			if fill == FILL_HOLLOW || fill == FILL_OUTLINE {
				d = abs(d) - thickness;
			}
		}
		case 6u: { // pie
			let c = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
			let radius = draw_data[base + 2u];
			let start_angle = draw_data[base + 3u];
			let end_angle = draw_data[base + 4u];
			let thickness = draw_data[base + 5u];
			d = sd_pie(p - c, start_angle, end_angle, radius);
			if fill == FILL_HOLLOW || fill == FILL_OUTLINE {
				d = abs(d) - thickness;
			}
		}
		case 7u: { // arc
			let c = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
			let radius = draw_data[base + 2u];
			let start_angle = draw_data[base + 3u];
			let end_angle = draw_data[base + 4u];
			let thickness = draw_data[base + 5u];
			d = sd_arc(p - c, start_angle, end_angle, radius, thickness);
		}
		case 8u: { // blurred box
			let minx = draw_data[base + 0u];
			let miny = draw_data[base + 1u];
			let maxx = draw_data[base + 2u];
			let maxy = draw_data[base + 3u];
			let roundness = draw_data[base + 4u];
			let c = vec2<f32>((minx + maxx) * 0.5, (miny + maxy) * 0.5);
			let b = vec2<f32>((maxx - minx) * 0.5, (maxy - miny) * 0.5);
			d = sd_box(p - c, b, roundness);
		}
		case 0u, 9u: { // char glyph or textured quad: hit-tested against its
			// box, same as od_rasterize's bounding test. The actual pixel
			// color comes from eval_src_color's texture sample, not this d.
			let minx = draw_data[base + 0u];
			let miny = draw_data[base + 1u];
			let maxx = draw_data[base + 2u];
			let maxy = draw_data[base + 3u];
			let c = vec2<f32>((minx + maxx) * 0.5, (miny + maxy) * 0.5);
			let b = vec2<f32>((maxx - minx) * 0.5, (maxy - miny) * 0.5);
			d = sd_box(p - c, b, 0.0);
		}
		default: {
			d = 1e6;
		}
	}
	return d;
}

fn coverage(d: f32, aa_width: f32) -> f32 {
	return 1.0 - linearstep(-aa_width, 0.0, d);
}

fn point_in_clip(p: vec2<f32>, clip_index: u32) -> bool {
	let c = clips[clip_index];
	if c.kind == 1u {
		let dx = p.x - c.a;
		let dy = p.y - c.b;
		return dx * dx + dy * dy <= c.c * c.c;
	}
	return p.x >= c.a && p.y >= c.b && p.x <= c.c && p.y <= c.d;
}

const PRIMITIVE_CHAR: u32 = 0u;
const PRIMITIVE_QUAD: u32 = 9u;
const PRIMITIVE_BEGIN_GROUP: u32 = 32u;
const PRIMITIVE_END_GROUP: u32 = 33u;
const OP_OVERWRITE: u32 = 0u;
const OP_BLEND: u32 = 1u;

// smooth_min mirrors jmath.SmoothMin: a polynomial smooth minimum that
// falls back to a hard min once the blend radius k reaches zero.
fn smooth_min(a: f32, b: f32, k: f32) -> f32 {
	if k <= 0.0 {
		return min(a, b);
	}
	let h = max(k - abs(a - b), 0.0) / k;
	return min(a, b) - h * h * h * k * (1.0 / 6.0);
}

// sample_font_atlas reads DrawGlyph's baked coverage texture, mapping pixel
// p onto the glyph's stored uv rect across its box and tinting by the draw
// command's color, the alpha od_rasterize's glyph path samples from r->font.
fn sample_font_atlas(cmd_i: u32, p: vec2<f32>) -> vec4<f32> {
	let base = commands[cmd_i].x;
	let minp = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
	let maxp = vec2<f32>(draw_data[base + 2u], draw_data[base + 3u]);
	let uv0 = vec2<f32>(draw_data[base + 4u], draw_data[base + 5u]);
	let uv1 = vec2<f32>(draw_data[base + 6u], draw_data[base + 7u]);
	let span = max(maxp - minp, vec2<f32>(1e-6, 1e-6));
	let t = clamp((p - minp) / span, vec2<f32>(0.0, 0.0), vec2<f32>(1.0, 1.0));
	let uv = mix(uv0, uv1, t);
	let dims = vec2<f32>(textureDimensions(font_atlas));
	let texel = vec2<i32>(clamp(uv * dims, vec2<f32>(0.0, 0.0), dims - vec2<f32>(1.0, 1.0)));
	let coverage = textureLoad(font_atlas, texel, 0).r;
	let tint = unpack_bgra8(colors[cmd_i]);
	return vec4<f32>(tint.rgb, tint.a * coverage);
}

// sample_quad_array reads one layer of the texture array DrawQuad and
// DrawOrientedQuad address, mapping the quad's box onto the layer's full
// extent, the GPU counterpart to od_rasterize's quad sampling from
// r->rasterizer.atlas.
fn sample_quad_array(cmd_i: u32, p: vec2<f32>) -> vec4<f32> {
	let base = commands[cmd_i].x;
	let minp = vec2<f32>(draw_data[base + 0u], draw_data[base + 1u]);
	let maxp = vec2<f32>(draw_data[base + 2u], draw_data[base + 3u]);
	let layer = i32(draw_data[base + 5u]);
	let span = max(maxp - minp, vec2<f32>(1e-6, 1e-6));
	let t = clamp((p - minp) / span, vec2<f32>(0.0, 0.0), vec2<f32>(1.0, 1.0));
	let dims = vec2<f32>(textureDimensions(quad_array).xy);
	let texel = vec2<i32>(clamp(t * dims, vec2<f32>(0.0, 0.0), dims - vec2<f32>(1.0, 1.0)));
	return textureLoad(quad_array, texel, layer, 0);
}

// eval_src_color returns the pixel color a non-group primitive contributes:
// a texture sample for glyphs and quads, the packed draw color otherwise.
fn eval_src_color(cmd_i: u32, typ: u32, p: vec2<f32>) -> vec4<f32> {
	if typ == PRIMITIVE_CHAR {
		return sample_font_atlas(cmd_i, p);
	}
	if typ == PRIMITIVE_QUAD {
		return sample_quad_array(cmd_i, p);
	}
	return unpack_bgra8(colors[cmd_i]);
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	let pixel = in.position.xy;

	var out_color = vec3<f32>(0.0, 0.0, 0.0);
	var out_alpha = 0.0;

	// Group state: tile_nodes is walked head first, i.e. most recently
	// submitted command first, so end_group arrives before its children
	// and begin_group closes the scope last. While in_group is set, child
	// primitives fold their SDF into group_d (min for OP_OVERWRITE,
	// smooth_min for OP_BLEND) and the nearest one's color is remembered
	// for the group's own composite at begin_group.
	var in_group = false;
	var group_op: u32 = OP_OVERWRITE;
	var group_smoothness: f32 = 0.0;
	var group_outline_width: f32 = 0.0;
	var group_outline_color = vec4<f32>(0.0, 0.0, 0.0, 0.0);
	var group_clip_index: u32 = 0u;
	var group_d: f32 = 1e6;
	var closest_d: f32 = 1e6;
	var closest_color = vec4<f32>(0.0, 0.0, 0.0, 0.0);

	var node = tile_heads[in.tile_index];
	loop {
		if node == 0u || out_alpha >= 0.999 {
			break;
		}
		let entry = tile_nodes[node - 1u];
		let cmd_i = entry.y & 0xffffu;
		let cmd = commands[cmd_i];
		let typ = (cmd.y >> 24u) & COMMAND_TYPE_MASK;
		let clip_index = (cmd.y >> 8u) & 0xffu;

		if typ == PRIMITIVE_END_GROUP {
			let base = cmd.x;
			group_smoothness = draw_data[base + 0u];
			group_outline_width = draw_data[base + 1u];
			group_op = cmd.y & 0xffu;
			group_outline_color = unpack_bgra8(colors[cmd_i]);
			group_clip_index = clip_index;
			group_d = 1e6;
			closest_d = 1e6;
			closest_color = vec4<f32>(0.0, 0.0, 0.0, 0.0);
			in_group = true;
		} else if typ == PRIMITIVE_BEGIN_GROUP {
			in_group = false;
			if point_in_clip(pixel, group_clip_index) {
				let cov = coverage(group_d, uniforms.aa_width);
				if cov > 0.0 {
					let a = closest_color.a * cov;
					out_color = out_color + (1.0 - out_alpha) * closest_color.rgb * a;
					out_alpha = out_alpha + (1.0 - out_alpha) * a;
				}
				if group_outline_width > 0.0 {
					let ocov = coverage(abs(group_d) - group_outline_width * 0.5, uniforms.aa_width);
					if ocov > 0.0 {
						let oa = group_outline_color.a * ocov;
						out_color = out_color + (1.0 - out_alpha) * group_outline_color.rgb * oa;
						out_alpha = out_alpha + (1.0 - out_alpha) * oa;
					}
				}
			}
		} else if in_group {
			if point_in_clip(pixel, clip_index) {
				let d = eval_sdf(cmd_i, pixel);
				if group_op == OP_BLEND {
					group_d = smooth_min(group_d, d, group_smoothness);
				} else {
					group_d = min(group_d, d);
				}
				if d < closest_d {
					closest_d = d;
					closest_color = eval_src_color(cmd_i, typ, pixel);
				}
			}
		} else if point_in_clip(pixel, clip_index) {
			let d = eval_sdf(cmd_i, pixel);
			let cov = coverage(d, uniforms.aa_width);
			if cov > 0.0 {
				var src = eval_src_color(cmd_i, typ, pixel);
				let fill = (cmd.y >> 16u) & 0xffu;
				if fill == FILL_GRADIENT {
					let box = unpack_quant_aabb(aabbs[cmd_i]);
					let span = max(f32(box.z) - f32(box.x), 1.0) * TILE_SIZE;
					let t = clamp((pixel.x - f32(box.x) * TILE_SIZE) / span, 0.0, 1.0);
					src = mix(src, vec4<f32>(1.0, 1.0, 1.0, src.a), t);
				}
				let a = src.a * cov;
				out_color = out_color + (1.0 - out_alpha) * src.rgb * a;
				out_alpha = out_alpha + (1.0 - out_alpha) * a;
			}
		}

		node = entry.x;
	}

	let bg = uniforms.clear_color;
	out_color = out_color + (1.0 - out_alpha) * bg.rgb * bg.a;
	out_alpha = out_alpha + (1.0 - out_alpha) * bg.a;

	if uniforms.culling_debug != 0u {
		return vec4<f32>(out_color, 1.0) * 0.5 + vec4<f32>(0.1, 0.0, 0.1, 0.5);
	}
	return vec4<f32>(out_color, out_alpha);
}
`
