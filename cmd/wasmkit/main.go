// Command wasmkit runs an exported function of a WebAssembly module:
//
//	wasmkit run <module.wasm> <function> [arg...]
//
// Arguments are parsed according to the function's signature and results
// are printed one per line.
package main

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/wasmkit/wasmkit"
	"github.com/wasmkit/wasmkit/wasm"
)

func main() {
	if len(os.Args) < 4 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: wasmkit run <module.wasm> <function> [arg...]")
		os.Exit(2)
	}
	if err := run(os.Args[2], os.Args[3], os.Args[4:]); err != nil {
		fmt.Fprintln(os.Stderr, "wasmkit:", err)
		os.Exit(1)
	}
}

func run(path, funcName string, rawArgs []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	bin, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	r := wasmkit.NewRuntimeWithConfig(wasmkit.NewRuntimeConfig().WithLogger(logger))
	instance, err := r.InstantiateModule("main", bin)
	if err != nil {
		return err
	}

	fn, err := instance.Function(funcName)
	if err != nil {
		return err
	}
	sig := fn.Signature()
	if len(rawArgs) != len(sig.Params) {
		return fmt.Errorf("%s takes %d arguments, got %d", funcName, len(sig.Params), len(rawArgs))
	}

	args := make([]uint64, len(rawArgs))
	for i, raw := range rawArgs {
		args[i], err = parseArg(raw, sig.Params[i])
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}

	returns, err := fn.Call(args...)
	if err != nil {
		return err
	}
	for i, ret := range returns {
		fmt.Println(formatValue(ret, sig.Results[i]))
	}
	return nil
}

func parseArg(raw string, vt wasm.ValueType) (uint64, error) {
	switch vt {
	case wasm.ValueTypeI32:
		v, err := strconv.ParseInt(raw, 0, 32)
		if err != nil {
			return 0, err
		}
		return uint64(uint32(int32(v))), nil
	case wasm.ValueTypeI64:
		v, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	case wasm.ValueTypeF32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return 0, err
		}
		return uint64(math.Float32bits(float32(v))), nil
	case wasm.ValueTypeF64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, err
		}
		return math.Float64bits(v), nil
	default:
		return 0, fmt.Errorf("unsupported value type %#x", vt)
	}
}

func formatValue(v uint64, vt wasm.ValueType) string {
	switch vt {
	case wasm.ValueTypeI32:
		return strconv.FormatInt(int64(int32(v)), 10)
	case wasm.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case wasm.ValueTypeF32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v))), 'g', -1, 32)
	case wasm.ValueTypeF64:
		return strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64)
	default:
		return strconv.FormatUint(v, 10)
	}
}
