package binary

import (
	"fmt"
	"io"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/leb128"
)

func decodeTypeSection(r io.Reader) ([]*wasm.FunctionType, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.FunctionType, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeFunctionType(r); err != nil {
			return nil, fmt.Errorf("read type %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeImportSection(r io.Reader) ([]*wasm.ImportSegment, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.ImportSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeImport(r); err != nil {
			return nil, fmt.Errorf("read import %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeFunctionSection(r io.Reader) ([]wasm.Index, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]wasm.Index, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read type index %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeTableSection(r io.Reader) ([]*wasm.TableType, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.TableType, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeTableType(r); err != nil {
			return nil, fmt.Errorf("read table %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeMemorySection(r io.Reader) ([]*wasm.MemoryType, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.MemoryType, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeLimitsType(r); err != nil {
			return nil, fmt.Errorf("read memory %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeGlobalSection(r io.Reader) ([]*wasm.GlobalSegment, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.GlobalSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeGlobal(r); err != nil {
			return nil, fmt.Errorf("read global %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeExportSection(r io.Reader) (map[string]*wasm.ExportSegment, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make(map[string]*wasm.ExportSegment, vs)
	for i := uint32(0); i < vs; i++ {
		export, err := decodeExport(r)
		if err != nil {
			return nil, fmt.Errorf("read export %d: %w", i, err)
		}
		if _, ok := result[export.Name]; ok {
			return nil, fmt.Errorf("export %d duplicates name %q", i, export.Name)
		}
		result[export.Name] = export
	}
	return result, nil
}

func decodeStartSection(r io.Reader) (*wasm.Index, error) {
	index, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read function index: %w", err)
	}
	return &index, nil
}

func decodeElementSection(r io.Reader) ([]*wasm.ElementSegment, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.ElementSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeElementSegment(r); err != nil {
			return nil, fmt.Errorf("read element segment %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeCodeSection(r io.Reader) ([]*wasm.CodeSegment, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.CodeSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeCode(r); err != nil {
			return nil, fmt.Errorf("read code segment %d: %w", i, err)
		}
	}
	return result, nil
}

func decodeDataSection(r io.Reader) ([]*wasm.DataSegment, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	result := make([]*wasm.DataSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeDataSegment(r); err != nil {
			return nil, fmt.Errorf("read data segment %d: %w", i, err)
		}
	}
	return result, nil
}
