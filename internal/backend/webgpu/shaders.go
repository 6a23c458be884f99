package webgpu

// tileSize is the x and y extent of one workgroup in matmulShader.
const tileSize = 16

// matmulShader computes out[i] = lhs[i] @ rhs[i] for i < batch, with lhs
// [batch, M, K] and rhs [batch, K, N] packed row-major. MatMul dispatches it
// with batch 1. One invocation produces one output element; z selects the
// batch item.
const matmulShader = `
struct Dims {
    batch: u32,
    m: u32,
    k: u32,
    n: u32,
}

@group(0) @binding(0) var<storage, read> lhs: array<f32>;
@group(0) @binding(1) var<storage, read> rhs: array<f32>;
@group(0) @binding(2) var<storage, read_write> out: array<f32>;
@group(0) @binding(3) var<uniform> dims: Dims;

@compute @workgroup_size(16, 16, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let col = id.x;
    let row = id.y;
    let item = id.z;
    if (item >= dims.batch || row >= dims.m || col >= dims.n) {
        return;
    }

    let lhs_row = item * dims.m * dims.k + row * dims.k;
    let rhs_col = item * dims.k * dims.n + col;
    var acc = 0.0;
    for (var i = 0u; i < dims.k; i++) {
        acc += lhs[lhs_row + i] * rhs[rhs_col + i * dims.n];
    }
    out[item * dims.m * dims.n + row * dims.n + col] = acc;
}
`
