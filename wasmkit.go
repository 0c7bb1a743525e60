// Package wasmkit embeds a WebAssembly 1.0 interpreter: decode a binary
// module, validate it, instantiate it against host-provided imports and call
// its exported functions.
package wasmkit

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/binary"
	"github.com/wasmkit/wasmkit/wasm/interpreter"
)

// RuntimeConfig controls how a Runtime executes. The zero value uses the
// default call depth limit, no fuel metering and no logging. With* methods
// return a copy, so configs can be shared and forked.
type RuntimeConfig struct {
	callStackLimit int
	fuel           uint64
	fuelLimited    bool
	logger         *zap.Logger
}

func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{}
}

// WithCallStackLimit caps nested wasm calls. Exceeding the limit makes the
// call return wasm.ErrRuntimeCallStackOverflow instead of exhausting the Go
// stack.
func (c *RuntimeConfig) WithCallStackLimit(limit int) *RuntimeConfig {
	ret := *c
	ret.callStackLimit = limit
	return &ret
}

// WithFuel limits the total instructions executed across all calls into the
// runtime. When spent, calls trap with wasm.ErrRuntimeFuelExhausted.
func (c *RuntimeConfig) WithFuel(fuel uint64) *RuntimeConfig {
	ret := *c
	ret.fuel = fuel
	ret.fuelLimited = true
	return &ret
}

func (c *RuntimeConfig) WithLogger(logger *zap.Logger) *RuntimeConfig {
	ret := *c
	ret.logger = logger
	return &ret
}

// Runtime owns a store and an interpreter engine. It is safe for concurrent
// use; execution serializes on the store's lock.
type Runtime struct {
	store  *wasm.Store
	engine *interpreter.Engine
	log    *zap.Logger
}

func NewRuntime() *Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

func NewRuntimeWithConfig(config *RuntimeConfig) *Runtime {
	var opts []interpreter.Option
	if config.callStackLimit > 0 {
		opts = append(opts, interpreter.WithCallDepthLimit(config.callStackLimit))
	}
	if config.fuelLimited {
		opts = append(opts, interpreter.WithFuel(config.fuel))
	}
	log := config.logger
	if log == nil {
		log = zap.NewNop()
	}
	engine := interpreter.NewEngine(opts...)
	return &Runtime{
		store:  wasm.NewStore(engine),
		engine: engine,
		log:    log,
	}
}

// InstantiateModule decodes, validates and instantiates a binary module
// under the given name. Imports resolve against previously instantiated
// modules and registered host entities.
func (r *Runtime) InstantiateModule(name string, bin []byte) (*Instance, error) {
	m, err := binary.DecodeModule(bin)
	if err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if err := r.store.Instantiate(m, name); err != nil {
		return nil, fmt.Errorf("instantiate %q: %w", name, err)
	}
	r.log.Info("module instantiated",
		zap.String("module", name),
		zap.Int("functions", len(m.FunctionSection)),
		zap.Int("exports", len(m.ExportSection)))
	return &Instance{runtime: r, name: name}, nil
}

// ExportHostFunction registers a Go function importable by modules as
// moduleName.funcName. See wasm.Store.AddHostFunction for the required
// signature.
func (r *Runtime) ExportHostFunction(moduleName, funcName string, fn interface{}) error {
	return r.store.AddHostFunction(moduleName, funcName, reflect.ValueOf(fn))
}

// ExportHostGlobal registers a global importable as moduleName.name.
func (r *Runtime) ExportHostGlobal(moduleName, name string, value uint64, valueType wasm.ValueType, mutable bool) error {
	return r.store.AddGlobal(moduleName, name, value, valueType, mutable)
}

// ExportHostMemory registers a memory importable as moduleName.name.
func (r *Runtime) ExportHostMemory(moduleName, name string, minPages uint32, maxPages *uint32) error {
	return r.store.AddMemoryInstance(moduleName, name, minPages, maxPages)
}

// ExportHostTable registers a funcref table importable as moduleName.name.
func (r *Runtime) ExportHostTable(moduleName, name string, min uint32, max *uint32) error {
	return r.store.AddTableInstance(moduleName, name, min, max)
}

// Store exposes the underlying store for host integrations that need more
// than the facade offers.
func (r *Runtime) Store() *wasm.Store {
	return r.store
}

// StackSnapshot reports the engine's current operand stack and call frames
// for debugging, typically from inside a host function.
func (r *Runtime) StackSnapshot() (operands []uint64, frames []interpreter.FrameInfo) {
	return r.engine.StackSnapshot()
}

// Instance is a handle on one instantiated module.
type Instance struct {
	runtime *Runtime
	name    string
}

func (i *Instance) Name() string {
	return i.name
}

// Function is an exported wasm function. Arguments and results are raw
// 64bit values in the order of the function's signature; use the value
// types from Signature to interpret them.
type Function struct {
	instance *Instance
	funcName string
	sig      *wasm.FunctionType
}

// Function resolves an exported function by name.
func (i *Instance) Function(name string) (*Function, error) {
	exp, err := i.runtime.store.GetExport(i.name, name)
	if err != nil {
		return nil, err
	}
	if exp.Kind != wasm.ExportKindFunc {
		return nil, fmt.Errorf("export %q of %q is not a function", name, i.name)
	}
	return &Function{instance: i, funcName: name, sig: exp.Function.Signature}, nil
}

func (f *Function) Signature() *wasm.FunctionType {
	return f.sig
}

func (f *Function) Call(args ...uint64) ([]uint64, error) {
	r := f.instance.runtime
	returns, _, err := r.store.CallFunction(f.instance.name, f.funcName, args...)
	if err != nil {
		r.log.Warn("call failed",
			zap.String("module", f.instance.name),
			zap.String("function", f.funcName),
			zap.Error(err))
		return nil, err
	}
	return returns, nil
}

// Memory returns the instance's exported memory, or an error when the
// module exports none under that name.
func (i *Instance) Memory(name string) (*wasm.MemoryInstance, error) {
	exp, err := i.runtime.store.GetExport(i.name, name)
	if err != nil {
		return nil, err
	}
	if exp.Kind != wasm.ExportKindMemory {
		return nil, fmt.Errorf("export %q of %q is not a memory", name, i.name)
	}
	return exp.Memory, nil
}
