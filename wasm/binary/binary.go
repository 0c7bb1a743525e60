// Package binary reads and writes modules in the WebAssembly 1.0 (MVP)
// binary format.
// See https://www.w3.org/TR/wasm-core-1/#binary-format%E2%91%A0
package binary

// magic is the 4 byte preamble (literally "\0asm") of the binary format.
// See https://www.w3.org/TR/wasm-core-1/#binary-magic
var magic = []byte{0x00, 0x61, 0x73, 0x6d}

// version is the format version, fixed at 1 for every known specification
// version.
// See https://www.w3.org/TR/wasm-core-1/#binary-version
var version = []byte{0x01, 0x00, 0x00, 0x00}
