package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/leb128"
)

// reader counts consumed bytes so each section can be checked against its
// declared size.
type reader struct {
	buffer *bytes.Reader
	read   int
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.buffer.Read(p)
	r.read += n
	return
}

// DecodeModule decodes a module from the WebAssembly 1.0 (MVP) binary
// format. Non-custom sections must appear at most once and in increasing id
// order; the type, function and code sections must be present, though they
// may be empty. Each section must consume exactly its declared byte length.
//
// The returned module is decoded but not validated: call Module.Validate
// before instantiating it.
func DecodeModule(b []byte) (*wasm.Module, error) {
	r := &reader{buffer: bytes.NewReader(b)}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, magic) {
		return nil, wasm.ErrInvalidMagicNumber
	}
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, version) {
		return nil, wasm.ErrInvalidVersion
	}

	m := &wasm.Module{}
	// Tracks the highest non-custom section id seen so far. Sections must
	// arrive in increasing id order, which also rules out duplicates.
	prevNonCustomSection := -1
	seen := [wasm.SectionIDData + 1]bool{}
	sectionID := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, sectionID); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}
		id := sectionID[0]
		if id > wasm.SectionIDData {
			return nil, fmt.Errorf("%w: 0x%x", wasm.ErrInvalidSectionID, id)
		}

		sectionSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read size of %s section: %w", wasm.SectionIDName(id), err)
		}

		if id != wasm.SectionIDCustom {
			if int(id) <= prevNonCustomSection {
				return nil, fmt.Errorf("%s section out of order", wasm.SectionIDName(id))
			}
			prevNonCustomSection = int(id)
			seen[id] = true
		}

		sectionStart := r.read
		switch id {
		case wasm.SectionIDCustom:
			err = decodeCustomSection(r, m, sectionSize)
		case wasm.SectionIDType:
			m.TypeSection, err = decodeTypeSection(r)
		case wasm.SectionIDImport:
			m.ImportSection, err = decodeImportSection(r)
		case wasm.SectionIDFunction:
			m.FunctionSection, err = decodeFunctionSection(r)
		case wasm.SectionIDTable:
			m.TableSection, err = decodeTableSection(r)
		case wasm.SectionIDMemory:
			m.MemorySection, err = decodeMemorySection(r)
		case wasm.SectionIDGlobal:
			m.GlobalSection, err = decodeGlobalSection(r)
		case wasm.SectionIDExport:
			m.ExportSection, err = decodeExportSection(r)
		case wasm.SectionIDStart:
			m.StartSection, err = decodeStartSection(r)
		case wasm.SectionIDElement:
			m.ElementSection, err = decodeElementSection(r)
		case wasm.SectionIDCode:
			m.CodeSection, err = decodeCodeSection(r)
		case wasm.SectionIDData:
			m.DataSection, err = decodeDataSection(r)
		}
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", wasm.SectionIDName(id), err)
		}
		if consumed := r.read - sectionStart; consumed != int(sectionSize) {
			return nil, fmt.Errorf("%s section: declared %d bytes but read %d",
				wasm.SectionIDName(id), sectionSize, consumed)
		}
	}

	for _, id := range []wasm.SectionID{wasm.SectionIDType, wasm.SectionIDFunction, wasm.SectionIDCode} {
		if !seen[id] {
			return nil, fmt.Errorf("missing %s section", wasm.SectionIDName(id))
		}
	}
	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d vs %d",
			len(m.FunctionSection), len(m.CodeSection))
	}
	return m, nil
}

// decodeCustomSection stores an uninterpreted custom section. sectionSize
// covers both the name and the payload.
func decodeCustomSection(r *reader, m *wasm.Module, sectionSize uint32) error {
	start := r.read
	name, _, err := decodeUTF8(r, "custom section name")
	if err != nil {
		return err
	}
	nameLen := r.read - start
	if int(sectionSize) < nameLen {
		return fmt.Errorf("custom section %q: name longer than the section", name)
	}
	data := make([]byte, int(sectionSize)-nameLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("custom section %q: read data: %w", name, err)
	}
	if _, ok := m.CustomSections[name]; ok {
		return fmt.Errorf("redundant custom section %q", name)
	}
	if m.CustomSections == nil {
		m.CustomSections = map[string][]byte{}
	}
	m.CustomSections[name] = data
	return nil
}
