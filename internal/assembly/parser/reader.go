package parser

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BinaryReader reads little-endian values from an in-memory image region and
// tracks its position. Every read is bounds-checked.
type BinaryReader struct {
	data []byte
	pos  int
}

func NewBinaryReader(data []byte) *BinaryReader {
	return &BinaryReader{data: data}
}

func (br *BinaryReader) Pos() int {
	return br.pos
}

func (br *BinaryReader) Len() int {
	return len(br.data)
}

// Seek moves to an absolute offset
func (br *BinaryReader) Seek(offset int) error {
	if offset < 0 || offset > len(br.data) {
		return fmt.Errorf("seek to %d outside %d bytes", offset, len(br.data))
	}
	br.pos = offset
	return nil
}

// ReadNBytes reads exactly n bytes and advances the position
func (br *BinaryReader) ReadNBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length: %d", n)
	}
	if br.pos+n > len(br.data) {
		return nil, io.ErrUnexpectedEOF
	}
	buf := br.data[br.pos : br.pos+n]
	br.pos += n
	return buf, nil
}

// Skip skips n bytes
func (br *BinaryReader) Skip(n int) error {
	if _, err := br.ReadNBytes(n); err != nil {
		return fmt.Errorf("failed to skip %d bytes: %w", n, err)
	}
	return nil
}

// Align advances to the next multiple of n
func (br *BinaryReader) Align(n int) error {
	if rem := br.pos % n; rem != 0 {
		return br.Skip(n - rem)
	}
	return nil
}

func (br *BinaryReader) ReadU1() (uint8, error) {
	buf, err := br.ReadNBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (br *BinaryReader) ReadU2() (uint16, error) {
	buf, err := br.ReadNBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (br *BinaryReader) ReadU4() (uint32, error) {
	buf, err := br.ReadNBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (br *BinaryReader) ReadU8() (uint64, error) {
	buf, err := br.ReadNBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadIndex reads a 2- or 4-byte heap or table index
func (br *BinaryReader) ReadIndex(size int) (uint32, error) {
	switch size {
	case 2:
		v, err := br.ReadU2()
		return uint32(v), err
	case 4:
		return br.ReadU4()
	default:
		return 0, fmt.Errorf("invalid index size: %d", size)
	}
}

// ReadString reads a null-terminated string
func (br *BinaryReader) ReadString() (string, error) {
	for i := br.pos; i < len(br.data); i++ {
		if br.data[i] == 0 {
			s := string(br.data[br.pos:i])
			br.pos = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("unterminated string at offset %d", br.pos)
}
