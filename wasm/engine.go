package wasm

// Engine turns validated functions into something callable. The interpreter
// implements this; alternative execution strategies can plug in behind the
// same interface.
type Engine interface {
	// Compile prepares the function for execution. It is called once per
	// function instance, before any call.
	Compile(f *FunctionInstance) error
	// Call invokes the function with args laid out per its signature. Each
	// argument and result is the raw 64bit representation of its value
	// type. Traps are reported as errors wrapping the ErrRuntime* sentinels.
	Call(f *FunctionInstance, args ...uint64) (returns []uint64, err error)
}

// HostFunctionCallContext is passed as the first argument of every host
// function, exposing the calling module's state.
type HostFunctionCallContext struct {
	Memory *MemoryInstance
}
