// Package testutil writes small but genuine managed PE images so tests can
// exercise the metadata reader and everything above it without checked-in binaries.
package testutil

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/mabhi256/dllcheck/internal/assembly/model"
)

// Reference is one AssemblyRef row
type Reference struct {
	Name    string
	Version string
}

// Assembly describes the image to write. Name is the assembly name without
// extension ("Lib"), versions are dotted strings ("2.0.0.0").
type Assembly struct {
	Name    string
	Version string
	Refs    []Reference

	// NoManifest leaves out the Assembly row, like a netmodule
	NoManifest bool
	// WideStrings forces 4-byte #Strings indexes
	WideStrings bool
	// Unoptimized names the table stream "#-" and adds the extra header word
	Unoptimized bool
	// MachineMask is XOR'd into the COFF machine, as ReadyToRun does for
	// images compiled for a non-Windows OS
	MachineMask uint16
}

// Ref is shorthand for a Reference
func Ref(name, version string) Reference {
	return Reference{Name: name, Version: version}
}

const (
	peOffset       = 0x80
	fileAlignment  = 0x200
	sectionRVA     = 0x2000
	cliHeaderBytes = 72
)

// Build returns the bytes of a PE32 image carrying the metadata described by a
func Build(a Assembly) []byte {
	md := metadata(a)
	text := append(cliHeader(sectionRVA+cliHeaderBytes, len(md)), md...)
	return image(text, pe.DataDirectory{VirtualAddress: sectionRVA, Size: cliHeaderBytes}, pe.IMAGE_FILE_MACHINE_I386^a.MachineMask)
}

// NativeImage returns a valid PE32 image without a CLI header
func NativeImage() []byte {
	return image(make([]byte, 16), pe.DataDirectory{}, pe.IMAGE_FILE_MACHINE_I386)
}

// WriteAssembly writes the image for a to dir/file and returns its path
func WriteAssembly(t testing.TB, dir, file string, a Assembly) string {
	t.Helper()
	return WriteFile(t, dir, file, Build(a))
}

// WriteFile writes raw bytes to dir/file, creating dir if needed
func WriteFile(t testing.TB, dir, file string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func image(text []byte, cli pe.DataDirectory, machine uint16) []byte {
	var buf bytes.Buffer

	dos := make([]byte, peOffset)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], peOffset)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	oh := pe.OptionalHeader32{
		Magic:                 0x10b,
		SizeOfCode:            uint32(align(len(text), fileAlignment)),
		ImageBase:             0x10000000,
		SectionAlignment:      0x2000,
		FileAlignment:         fileAlignment,
		MajorSubsystemVersion: 4,
		SizeOfImage:           uint32(sectionRVA + align(len(text), 0x2000)),
		SizeOfHeaders:         fileAlignment,
		Subsystem:             3,
		NumberOfRvaAndSizes:   16,
	}
	oh.DataDirectory[14] = cli

	fh := pe.FileHeader{
		Machine:              machine,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(oh)),
		Characteristics:      0x2102,
	}

	sh := pe.SectionHeader32{
		VirtualSize:      uint32(len(text)),
		VirtualAddress:   sectionRVA,
		SizeOfRawData:    uint32(align(len(text), fileAlignment)),
		PointerToRawData: fileAlignment,
		Characteristics:  0x60000020,
	}
	copy(sh.Name[:], ".text")

	put(&buf, fh)
	put(&buf, oh)
	put(&buf, sh)
	pad(&buf, fileAlignment)

	buf.Write(text)
	pad(&buf, fileAlignment)
	return buf.Bytes()
}

func cliHeader(mdRVA, mdSize int) []byte {
	h := make([]byte, cliHeaderBytes)
	binary.LittleEndian.PutUint32(h[0:], cliHeaderBytes)
	binary.LittleEndian.PutUint16(h[4:], 2)
	binary.LittleEndian.PutUint16(h[6:], 5)
	binary.LittleEndian.PutUint32(h[8:], uint32(mdRVA))
	binary.LittleEndian.PutUint32(h[12:], uint32(mdSize))
	binary.LittleEndian.PutUint32(h[16:], 1) // ILONLY
	return h
}

type stream struct {
	name string
	data []byte
}

func metadata(a Assembly) []byte {
	strs := newStringHeap()
	tables := tableStream(a, strs)
	blobs := []byte{0, 0, 0, 0}

	tableName := "#~"
	if a.Unoptimized {
		tableName = "#-"
	}
	streams := []stream{
		{tableName, tables},
		{"#Strings", strs.bytes()},
		{"#Blob", blobs},
	}

	version := []byte("v4.0.30319\x00\x00")

	var hdr bytes.Buffer
	put(&hdr, uint32(0x424A5342))
	put(&hdr, uint16(1))
	put(&hdr, uint16(1))
	put(&hdr, uint32(0))
	put(&hdr, uint32(len(version)))
	hdr.Write(version)
	put(&hdr, uint16(0))
	put(&hdr, uint16(len(streams)))

	headerSize := hdr.Len()
	for _, s := range streams {
		headerSize += 8 + align(len(s.name)+1, 4)
	}

	offset := headerSize
	for _, s := range streams {
		put(&hdr, uint32(offset))
		put(&hdr, uint32(len(s.data)))
		name := make([]byte, align(len(s.name)+1, 4))
		copy(name, s.name)
		hdr.Write(name)
		offset += len(s.data)
	}
	for _, s := range streams {
		hdr.Write(s.data)
	}
	return hdr.Bytes()
}

func tableStream(a Assembly, strs *stringHeap) []byte {
	const (
		module      = 0x00
		assembly    = 0x20
		assemblyRef = 0x23
	)

	var heapSizes uint8
	if a.WideStrings {
		heapSizes |= 0x01
	}
	if a.Unoptimized {
		heapSizes |= 0x40
	}

	valid := uint64(1) << module
	rows := []uint32{1}
	if !a.NoManifest {
		valid |= 1 << assembly
		rows = append(rows, 1)
	}
	if len(a.Refs) > 0 {
		valid |= 1 << assemblyRef
		rows = append(rows, uint32(len(a.Refs)))
	}

	var buf bytes.Buffer
	put(&buf, uint32(0))
	put(&buf, uint8(2))
	put(&buf, uint8(0))
	put(&buf, heapSizes)
	put(&buf, uint8(1))
	put(&buf, valid)
	put(&buf, uint64(0))
	for _, n := range rows {
		put(&buf, n)
	}
	if a.Unoptimized {
		put(&buf, uint32(0))
	}

	str := func(s string) {
		idx := strs.add(s)
		if a.WideStrings {
			put(&buf, idx)
		} else {
			put(&buf, uint16(idx))
		}
	}
	ver := func(s string) {
		v := model.MustParseVersion(s)
		put(&buf, v.Major)
		put(&buf, v.Minor)
		put(&buf, v.Build)
		put(&buf, v.Revision)
	}

	// Module: Generation, Name, Mvid, EncId, EncBaseId
	put(&buf, uint16(0))
	str(a.Name + ".dll")
	put(&buf, uint16(0))
	put(&buf, uint16(0))
	put(&buf, uint16(0))

	if !a.NoManifest {
		// Assembly: HashAlgId, version, Flags, PublicKey, Name, Culture
		put(&buf, uint32(0x8004))
		ver(a.Version)
		put(&buf, uint32(0))
		put(&buf, uint16(0))
		str(a.Name)
		put(&buf, uint16(0))
		if a.WideStrings {
			put(&buf, uint16(0))
		}
	}

	for _, r := range a.Refs {
		// AssemblyRef: version, Flags, PublicKeyOrToken, Name, Culture, HashValue
		ver(r.Version)
		put(&buf, uint32(0))
		put(&buf, uint16(0))
		str(r.Name)
		put(&buf, uint16(0))
		if a.WideStrings {
			put(&buf, uint16(0))
		}
		put(&buf, uint16(0))
	}

	pad(&buf, 4)
	return buf.Bytes()
}

type stringHeap struct {
	data    []byte
	offsets map[string]uint32
}

func newStringHeap() *stringHeap {
	return &stringHeap{data: []byte{0}, offsets: map[string]uint32{"": 0}}
}

func (h *stringHeap) add(s string) uint32 {
	if off, ok := h.offsets[s]; ok {
		return off
	}
	off := uint32(len(h.data))
	h.data = append(h.data, s...)
	h.data = append(h.data, 0)
	h.offsets[s] = off
	return off
}

func (h *stringHeap) bytes() []byte {
	out := append([]byte(nil), h.data...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

func put(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

func pad(buf *bytes.Buffer, n int) {
	for buf.Len()%n != 0 {
		buf.WriteByte(0)
	}
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}
