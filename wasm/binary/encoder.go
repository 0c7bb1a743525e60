package binary

import (
	"sort"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/leb128"
)

// EncodeModule encodes the module in the WebAssembly 1.0 (MVP) binary
// format, the inverse of DecodeModule. The type, function and code sections
// are always emitted, even when empty, so the output decodes back without a
// missing-section error; other sections are omitted when empty. Custom
// sections are written first, sorted by name.
func EncodeModule(m *wasm.Module) (ret []byte) {
	ret = append(ret, magic...)
	ret = append(ret, version...)
	for _, name := range sortedKeys(m.CustomSections) {
		ret = append(ret, encodeCustomSection(name, m.CustomSections[name])...)
	}
	ret = append(ret, encodeTypeSection(m.TypeSection)...)
	if len(m.ImportSection) > 0 {
		ret = append(ret, encodeImportSection(m.ImportSection)...)
	}
	ret = append(ret, encodeFunctionSection(m.FunctionSection)...)
	if len(m.TableSection) > 0 {
		ret = append(ret, encodeTableSection(m.TableSection)...)
	}
	if len(m.MemorySection) > 0 {
		ret = append(ret, encodeMemorySection(m.MemorySection)...)
	}
	if len(m.GlobalSection) > 0 {
		ret = append(ret, encodeGlobalSection(m.GlobalSection)...)
	}
	if len(m.ExportSection) > 0 {
		ret = append(ret, encodeExportSection(m.ExportSection)...)
	}
	if m.StartSection != nil {
		ret = append(ret, encodeSection(wasm.SectionIDStart, leb128.EncodeUint32(*m.StartSection))...)
	}
	if len(m.ElementSection) > 0 {
		ret = append(ret, encodeElementSection(m.ElementSection)...)
	}
	ret = append(ret, encodeCodeSection(m.CodeSection)...)
	if len(m.DataSection) > 0 {
		ret = append(ret, encodeDataSection(m.DataSection)...)
	}
	return
}

// encodeSection prepends the section id and the byte length of contents.
// See https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
func encodeSection(sectionID wasm.SectionID, contents []byte) []byte {
	return append([]byte{sectionID}, encodeSizePrefixed(contents)...)
}

func encodeCustomSection(name string, data []byte) []byte {
	contents := append(encodeUTF8(name), data...)
	return encodeSection(wasm.SectionIDCustom, contents)
}

func encodeTypeSection(types []*wasm.FunctionType) []byte {
	contents := leb128.EncodeUint32(uint32(len(types)))
	for _, t := range types {
		contents = append(contents, encodeFunctionType(t)...)
	}
	return encodeSection(wasm.SectionIDType, contents)
}

func encodeFunctionType(t *wasm.FunctionType) []byte {
	ret := []byte{0x60}
	ret = append(ret, encodeValTypes(t.Params)...)
	return append(ret, encodeValTypes(t.Results)...)
}

func encodeImportSection(imports []*wasm.ImportSegment) []byte {
	contents := leb128.EncodeUint32(uint32(len(imports)))
	for _, i := range imports {
		contents = append(contents, encodeImport(i)...)
	}
	return encodeSection(wasm.SectionIDImport, contents)
}

func encodeImport(i *wasm.ImportSegment) []byte {
	ret := encodeUTF8(i.Module)
	ret = append(ret, encodeUTF8(i.Name)...)
	ret = append(ret, i.Desc.Kind)
	switch i.Desc.Kind {
	case wasm.ImportKindFunc:
		ret = append(ret, leb128.EncodeUint32(*i.Desc.TypeIndexPtr)...)
	case wasm.ImportKindTable:
		ret = append(ret, encodeTableType(i.Desc.TableTypePtr)...)
	case wasm.ImportKindMemory:
		ret = append(ret, encodeLimitsType(i.Desc.MemTypePtr)...)
	case wasm.ImportKindGlobal:
		ret = append(ret, encodeGlobalType(i.Desc.GlobalTypePtr)...)
	}
	return ret
}

func encodeFunctionSection(typeIndices []wasm.Index) []byte {
	contents := leb128.EncodeUint32(uint32(len(typeIndices)))
	for _, index := range typeIndices {
		contents = append(contents, leb128.EncodeUint32(index)...)
	}
	return encodeSection(wasm.SectionIDFunction, contents)
}

func encodeTableSection(tables []*wasm.TableType) []byte {
	contents := leb128.EncodeUint32(uint32(len(tables)))
	for _, t := range tables {
		contents = append(contents, encodeTableType(t)...)
	}
	return encodeSection(wasm.SectionIDTable, contents)
}

func encodeTableType(t *wasm.TableType) []byte {
	return append([]byte{t.ElemType}, encodeLimitsType(t.Limits)...)
}

func encodeMemorySection(memories []*wasm.MemoryType) []byte {
	contents := leb128.EncodeUint32(uint32(len(memories)))
	for _, m := range memories {
		contents = append(contents, encodeLimitsType(m)...)
	}
	return encodeSection(wasm.SectionIDMemory, contents)
}

// encodeLimitsType writes the limits flag byte followed by min and, when
// present, max.
// See https://www.w3.org/TR/wasm-core-1/#limits%E2%91%A6
func encodeLimitsType(l *wasm.LimitsType) []byte {
	if l.Max == nil {
		return append([]byte{0x00}, leb128.EncodeUint32(l.Min)...)
	}
	ret := append([]byte{0x01}, leb128.EncodeUint32(l.Min)...)
	return append(ret, leb128.EncodeUint32(*l.Max)...)
}

func encodeGlobalSection(globals []*wasm.GlobalSegment) []byte {
	contents := leb128.EncodeUint32(uint32(len(globals)))
	for _, g := range globals {
		contents = append(contents, encodeGlobalType(g.Type)...)
		contents = append(contents, encodeConstantExpression(g.Init)...)
	}
	return encodeSection(wasm.SectionIDGlobal, contents)
}

func encodeGlobalType(t *wasm.GlobalType) []byte {
	if t.Mutable {
		return []byte{t.ValType, 0x01}
	}
	return []byte{t.ValType, 0x00}
}

func encodeExportSection(exports map[string]*wasm.ExportSegment) []byte {
	contents := leb128.EncodeUint32(uint32(len(exports)))
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := exports[name]
		contents = append(contents, encodeUTF8(e.Name)...)
		contents = append(contents, e.Kind)
		contents = append(contents, leb128.EncodeUint32(e.Index)...)
	}
	return encodeSection(wasm.SectionIDExport, contents)
}

func encodeElementSection(elements []*wasm.ElementSegment) []byte {
	contents := leb128.EncodeUint32(uint32(len(elements)))
	for _, e := range elements {
		contents = append(contents, leb128.EncodeUint32(e.TableIndex)...)
		contents = append(contents, encodeConstantExpression(e.OffsetExpr)...)
		contents = append(contents, leb128.EncodeUint32(uint32(len(e.Init)))...)
		for _, fi := range e.Init {
			contents = append(contents, leb128.EncodeUint32(fi)...)
		}
	}
	return encodeSection(wasm.SectionIDElement, contents)
}

func encodeCodeSection(code []*wasm.CodeSegment) []byte {
	contents := leb128.EncodeUint32(uint32(len(code)))
	for _, c := range code {
		contents = append(contents, encodeCode(c)...)
	}
	return encodeSection(wasm.SectionIDCode, contents)
}

// encodeCode writes one code section entry: the local declarations run
// length encoded, then the body, all size prefixed.
func encodeCode(c *wasm.CodeSegment) []byte {
	// Group consecutive locals of the same type.
	type localGroup struct {
		count uint32
		typ   wasm.ValueType
	}
	var groups []localGroup
	for _, t := range c.LocalTypes {
		if len(groups) > 0 && groups[len(groups)-1].typ == t {
			groups[len(groups)-1].count++
		} else {
			groups = append(groups, localGroup{count: 1, typ: t})
		}
	}

	contents := leb128.EncodeUint32(uint32(len(groups)))
	for _, g := range groups {
		contents = append(contents, leb128.EncodeUint32(g.count)...)
		contents = append(contents, g.typ)
	}
	contents = append(contents, c.Body...)
	return encodeSizePrefixed(contents)
}

func encodeDataSection(data []*wasm.DataSegment) []byte {
	contents := leb128.EncodeUint32(uint32(len(data)))
	for _, d := range data {
		contents = append(contents, leb128.EncodeUint32(d.MemoryIndex)...)
		contents = append(contents, encodeConstantExpression(d.OffsetExpr)...)
		contents = append(contents, encodeSizePrefixed(d.Init)...)
	}
	return encodeSection(wasm.SectionIDData, contents)
}

func encodeConstantExpression(expr *wasm.ConstantExpression) []byte {
	ret := append([]byte{expr.Opcode}, expr.Data...)
	return append(ret, wasm.OpcodeEnd)
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
