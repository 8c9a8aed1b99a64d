package parser

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// comDescriptorIndex is IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR
	comDescriptorIndex = 14

	cliHeaderSize = 72

	// maxMetadataSize bounds the single allocation made for the metadata blob
	maxMetadataSize = 256 << 20
)

// ReadyToRun images built for other operating systems XOR the COFF machine
// with one of these values
var osMachineMasks = []uint16{
	0x7B79, // Linux
	0x4644, // Apple
	0xADC4, // FreeBSD
	0x1993, // NetBSD
	0x1992, // SunOS
}

var knownMachines = map[uint16]bool{
	pe.IMAGE_FILE_MACHINE_I386:  true,
	pe.IMAGE_FILE_MACHINE_AMD64: true,
	pe.IMAGE_FILE_MACHINE_ARMNT: true,
	pe.IMAGE_FILE_MACHINE_ARM64: true,
}

/*
*	CLI header (ECMA-335 II.25.3.3), located by data directory 14
*
*	u4		cb (72)
*	u2, u2	runtime version
*	u4, u4	metadata RVA and size
*	...		flags, entry point, resources, strong name, ...
 */

// readMetadataBlob locates the CLI header of a PE image and returns the raw
// metadata root it points at
func readMetadataBlob(r io.ReaderAt) ([]byte, error) {
	f, err := pe.NewFile(normalizeMachine(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPE, err)
	}

	dir, ok := cliDirectory(f)
	if !ok || dir.VirtualAddress == 0 || dir.Size < cliHeaderSize {
		return nil, ErrNotManaged
	}

	header, err := readRVA(f, dir.VirtualAddress, cliHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read CLI header: %w", err)
	}

	mdRVA := binary.LittleEndian.Uint32(header[8:])
	mdSize := binary.LittleEndian.Uint32(header[12:])
	if mdRVA == 0 || mdSize == 0 {
		return nil, badMetadata("CLI header has no metadata directory")
	}
	if mdSize > maxMetadataSize {
		return nil, badMetadata("metadata size %d too large", mdSize)
	}

	blob, err := readRVA(f, mdRVA, mdSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	return blob, nil
}

func cliDirectory(f *pe.File) (pe.DataDirectory, bool) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > comDescriptorIndex {
			return oh.DataDirectory[comDescriptorIndex], true
		}
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes > comDescriptorIndex {
			return oh.DataDirectory[comDescriptorIndex], true
		}
	}
	return pe.DataDirectory{}, false
}

// readRVA maps a relative virtual address onto the section that contains it
func readRVA(f *pe.File, rva, size uint32) ([]byte, error) {
	for _, s := range f.Sections {
		span := s.VirtualSize
		if s.Size > span {
			span = s.Size
		}
		if rva < s.VirtualAddress || uint64(rva) >= uint64(s.VirtualAddress)+uint64(span) {
			continue
		}

		offset := rva - s.VirtualAddress
		if uint64(offset)+uint64(size) > uint64(s.Size) {
			return nil, badMetadata("RVA 0x%x+%d runs past section %s", rva, size, s.Name)
		}

		buf := make([]byte, size)
		if _, err := s.ReadAt(buf, int64(offset)); err != nil {
			return nil, fmt.Errorf("failed to read section %s: %w", s.Name, err)
		}
		return buf, nil
	}
	return nil, badMetadata("RVA 0x%x is not inside any section", rva)
}

// machineReader presents the COFF machine field at off as fixed
type machineReader struct {
	io.ReaderAt
	off   int64
	fixed [2]byte
}

func (m *machineReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := m.ReaderAt.ReadAt(p, off)
	for i, b := range m.fixed {
		if pos := m.off + int64(i) - off; pos >= 0 && pos < int64(n) {
			p[pos] = b
		}
	}
	return n, err
}

// normalizeMachine undoes the OS mask on a ReadyToRun machine field so
// debug/pe accepts the image. Anything else is returned unchanged.
func normalizeMachine(r io.ReaderAt) io.ReaderAt {
	var dos [0x40]byte
	if _, err := r.ReadAt(dos[:], 0); err != nil || dos[0] != 'M' || dos[1] != 'Z' {
		return r
	}
	off := int64(binary.LittleEndian.Uint32(dos[0x3c:]))

	var hdr [6]byte
	if _, err := r.ReadAt(hdr[:], off); err != nil || string(hdr[:4]) != "PE\x00\x00" {
		return r
	}
	machine := binary.LittleEndian.Uint16(hdr[4:])
	if knownMachines[machine] {
		return r
	}
	for _, mask := range osMachineMasks {
		if knownMachines[machine^mask] {
			m := &machineReader{ReaderAt: r, off: off + 4}
			binary.LittleEndian.PutUint16(m.fixed[:], machine^mask)
			return m
		}
	}
	return r
}
