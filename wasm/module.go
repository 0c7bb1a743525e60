package wasm

// Module is the decoded form of a WebAssembly 1.0 (MVP) binary module. The
// fields mirror the known sections in their binary order. A Module is inert:
// it must pass Validate and then be instantiated into a Store before any of
// its functions can run.
// See https://www.w3.org/TR/wasm-core-1/#modules%E2%91%A8
type Module struct {
	TypeSection     []*FunctionType
	ImportSection   []*ImportSegment
	FunctionSection []Index
	TableSection    []*TableType
	MemorySection   []*MemoryType
	GlobalSection   []*GlobalSegment
	ExportSection   map[string]*ExportSegment
	StartSection    *Index
	ElementSection  []*ElementSegment
	CodeSection     []*CodeSegment
	DataSection     []*DataSegment

	// CustomSections maps the name of each custom section to its raw
	// payload. Custom sections have no semantic effect.
	CustomSections map[string][]byte
}

// ImportFuncCount returns how many function imports the module declares.
// Defined functions are indexed after these.
func (m *Module) ImportFuncCount() uint32 {
	return m.importCount(ImportKindFunc)
}

// ImportGlobalCount returns how many global imports the module declares.
func (m *Module) ImportGlobalCount() uint32 {
	return m.importCount(ImportKindGlobal)
}

// ImportTableCount returns how many table imports the module declares.
func (m *Module) ImportTableCount() uint32 {
	return m.importCount(ImportKindTable)
}

// ImportMemoryCount returns how many memory imports the module declares.
func (m *Module) ImportMemoryCount() uint32 {
	return m.importCount(ImportKindMemory)
}

func (m *Module) importCount(kind ImportKind) (ret uint32) {
	for _, im := range m.ImportSection {
		if im.Desc.Kind == kind {
			ret++
		}
	}
	return
}

// funcTypeIndexes returns the type index of every function in the function
// index space, imports first.
func (m *Module) funcTypeIndexes() []Index {
	ret := make([]Index, 0, int(m.ImportFuncCount())+len(m.FunctionSection))
	for _, im := range m.ImportSection {
		if im.Desc.Kind == ImportKindFunc {
			ret = append(ret, *im.Desc.TypeIndexPtr)
		}
	}
	return append(ret, m.FunctionSection...)
}

// globalTypes returns the type of every global in the global index space,
// imports first.
func (m *Module) globalTypes() []*GlobalType {
	ret := make([]*GlobalType, 0, int(m.ImportGlobalCount())+len(m.GlobalSection))
	for _, im := range m.ImportSection {
		if im.Desc.Kind == ImportKindGlobal {
			ret = append(ret, im.Desc.GlobalTypePtr)
		}
	}
	for _, g := range m.GlobalSection {
		ret = append(ret, g.Type)
	}
	return ret
}

// tableCount returns the size of the table index space.
func (m *Module) tableCount() uint32 {
	return m.ImportTableCount() + uint32(len(m.TableSection))
}

// memoryCount returns the size of the memory index space.
func (m *Module) memoryCount() uint32 {
	return m.ImportMemoryCount() + uint32(len(m.MemorySection))
}
