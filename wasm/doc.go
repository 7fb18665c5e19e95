// Package wasm decodes and validates WebAssembly binary modules.
//
// The decoder covers the WebAssembly 2.0 binary format plus the post-2.0
// proposals wazero accepts (GC types, exception tags, tail calls, SIMD,
// threads, bulk memory, reference types, multi-memory and memory64), so a
// guest that wazero would compile never fails to decode here.
//
// # Parsing
//
//	module, err := wasm.ParseModule(data)
//
// Parse and validate index spaces, limits, exports and section counts:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// # Module Structure
//
//	module.Types      []FuncType    // Function signatures
//	module.Funcs      []uint32      // Type indices for functions
//	module.Imports    []Import      // Imported definitions
//	module.Exports    []Export      // Exported definitions
//	module.Memories   []MemoryType  // Memory definitions
//	module.Data       []DataSegment // Data segments
//
// Function bodies are kept as raw bytes; instructions are not decoded.
// GetFuncType resolves the signature of any function index. Imported
// functions come first in the index space:
//
//	ft := module.GetFuncType(0) // first imported function
//
// # LEB128 Encoding
//
//	n, err := wasm.ReadLEB128u(r)  // Unsigned, r is an io.ByteReader
//	n, err := wasm.ReadLEB128s(r)  // Signed
package wasm
