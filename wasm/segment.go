package wasm

// ImportDesc is the description part of an import: exactly one of the typed
// fields is set, as selected by Kind.
// See https://www.w3.org/TR/wasm-core-1/#binary-importdesc
type ImportDesc struct {
	Kind ImportKind

	// TypeIndexPtr is set when Kind is ImportKindFunc. It is a pointer so
	// that the zero index and "absent" are distinguishable.
	TypeIndexPtr  *Index
	TableTypePtr  *TableType
	MemTypePtr    *MemoryType
	GlobalTypePtr *GlobalType
}

// ImportSegment names an entity supplied to instantiation by the embedder.
type ImportSegment struct {
	Module string
	Name   string
	Desc   *ImportDesc
}

// GlobalSegment defines a module global and its initializer.
type GlobalSegment struct {
	Type *GlobalType
	Init *ConstantExpression
}

// ExportSegment makes one entity of the index space named by Kind visible to
// the embedder under Name.
type ExportSegment struct {
	Name  string
	Kind  ExportKind
	Index Index
}

// ElementSegment initializes a range of a table with function indices at
// instantiation time.
type ElementSegment struct {
	TableIndex Index
	OffsetExpr *ConstantExpression
	Init       []Index
}

// CodeSegment holds one function body from the code section.
type CodeSegment struct {
	// LocalTypes lists the declared locals with their local group counts
	// flattened, in declaration order. Parameters are not included.
	LocalTypes []ValueType
	// Body is the instruction sequence including the terminal end opcode.
	Body []byte
	// Blocks maps the byte offset of each block, loop and if instruction in
	// Body to its control metadata. It is populated by Module.Validate and
	// consumed by the interpreter for branch resolution.
	Blocks map[uint64]*CodeBlock
}

// CodeBlock is the control metadata of one structured instruction, recorded
// during validation so the interpreter can branch without rescanning.
type CodeBlock struct {
	// StartAt is the byte offset of the block, loop or if opcode.
	StartAt uint64
	// ElseAt is the offset of the else opcode for an if with an else arm.
	// For an if without else it is EndAt-1 so the false branch lands on end.
	ElseAt uint64
	// EndAt is the byte offset of the matching end opcode.
	EndAt uint64
	// BlockType is the resolved type of the block, nil for the empty type.
	BlockType *FunctionType
	// BlockTypeBytes is how many bytes the blocktype immediate occupied.
	BlockTypeBytes uint64
	IsLoop         bool
	IsIf           bool
}

// DataSegment initializes a range of linear memory at instantiation time.
type DataSegment struct {
	MemoryIndex Index
	OffsetExpr  *ConstantExpression
	Init        []byte
}

// ConstantExpression is an initializer expression: a single const or
// global.get instruction followed by end. Data holds the instruction's
// immediate still in its binary encoding.
// See https://www.w3.org/TR/wasm-core-1/#constant-expressions%E2%91%A0
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}
