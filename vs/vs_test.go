//go:build amd64 && cgo && !windows

// Package vs benchmarks this interpreter against wasmer and wasmtime on the
// same module bytes. These are compiled runtimes, so the gap shows the cost
// of direct interpretation rather than a target to close.
package vs

import (
	"testing"

	"github.com/bytecodealliance/wasmtime-go"
	wasmerlib "github.com/wasmerio/wasmer-go/wasmer"

	"github.com/wasmkit/wasmkit"
	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/binary"
)

// fibModule exports fib(i32) -> i32, the naive recursion.
func fibModule() []byte {
	return binary.EncodeModule(&wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection: map[string]*wasm.ExportSegment{
			"fib": {Name: "fib", Kind: wasm.ExportKindFunc, Index: 0},
		},
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeI32Const, 0x02,
				wasm.OpcodeI32LtS,
				wasm.OpcodeIf, 0x7f,
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeElse,
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeI32Const, 0x01,
				wasm.OpcodeI32Sub,
				wasm.OpcodeCall, 0x00,
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeI32Const, 0x02,
				wasm.OpcodeI32Sub,
				wasm.OpcodeCall, 0x00,
				wasm.OpcodeI32Add,
				wasm.OpcodeEnd,
				wasm.OpcodeEnd,
			},
		}},
	})
}

const fibIn = 20

var fibExp = int32(6765)

func BenchmarkFib_wasmkit(b *testing.B) {
	r := wasmkit.NewRuntime()
	instance, err := r.InstantiateModule("bench", fibModule())
	if err != nil {
		b.Fatal(err)
	}
	fib, err := instance.Function("fib")
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ret, err := fib.Call(fibIn)
		if err != nil {
			b.Fatal(err)
		}
		if int32(ret[0]) != fibExp {
			b.Fatalf("fib(%d) = %d", fibIn, int32(ret[0]))
		}
	}
}

func BenchmarkFib_wasmer(b *testing.B) {
	store := wasmerlib.NewStore(wasmerlib.NewEngine())
	module, err := wasmerlib.NewModule(store, fibModule())
	if err != nil {
		b.Fatal(err)
	}
	instance, err := wasmerlib.NewInstance(module, wasmerlib.NewImportObject())
	if err != nil {
		b.Fatal(err)
	}
	fib, err := instance.Exports.GetFunction("fib")
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ret, err := fib(fibIn)
		if err != nil {
			b.Fatal(err)
		}
		if ret.(int32) != fibExp {
			b.Fatalf("fib(%d) = %v", fibIn, ret)
		}
	}
}

func BenchmarkFib_wasmtime(b *testing.B) {
	engine := wasmtime.NewEngine()
	store := wasmtime.NewStore(engine)
	module, err := wasmtime.NewModule(engine, fibModule())
	if err != nil {
		b.Fatal(err)
	}
	instance, err := wasmtime.NewInstance(store, module, nil)
	if err != nil {
		b.Fatal(err)
	}
	fib := instance.GetExport(store, "fib").Func()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ret, err := fib.Call(store, fibIn)
		if err != nil {
			b.Fatal(err)
		}
		if ret.(int32) != fibExp {
			b.Fatalf("fib(%d) = %v", fibIn, ret)
		}
	}
}

func BenchmarkInstantiate_wasmkit(b *testing.B) {
	bin := fibModule()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := wasmkit.NewRuntime()
		if _, err := r.InstantiateModule("bench", bin); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkInstantiate_wasmer(b *testing.B) {
	bin := fibModule()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store := wasmerlib.NewStore(wasmerlib.NewEngine())
		module, err := wasmerlib.NewModule(store, bin)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := wasmerlib.NewInstance(module, wasmerlib.NewImportObject()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkInstantiate_wasmtime(b *testing.B) {
	bin := fibModule()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine := wasmtime.NewEngine()
		store := wasmtime.NewStore(engine)
		module, err := wasmtime.NewModule(engine, bin)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := wasmtime.NewInstance(store, module, nil); err != nil {
			b.Fatal(err)
		}
	}
}
