package parser

const metadataSignature = 0x424A5342 // "BSJB"

// Stream names used by the reader
const (
	streamTables            = "#~"
	streamTablesUnoptimized = "#-"
	streamStrings           = "#Strings"
)

// metadataRoot is the parsed metadata root with its named streams
type metadataRoot struct {
	Version string
	Streams map[string][]byte
}

/*
*	Metadata root (ECMA-335 II.24.2.1)
*
*	u4		signature "BSJB"
*	u2, u2	major/minor version
*	u4		reserved
*	u4		length of version string (padded to 4)
*	[]u1	version string
*	u2		flags
*	u2		number of streams
*	then per stream: u4 offset, u4 size, null-terminated name padded to 4
 */
func parseMetadataRoot(blob []byte) (*metadataRoot, error) {
	br := NewBinaryReader(blob)

	sig, err := br.ReadU4()
	if err != nil {
		return nil, badMetadata("unable to read signature: %v", err)
	}
	if sig != metadataSignature {
		return nil, badMetadata("invalid metadata signature 0x%08x", sig)
	}

	// major, minor, reserved
	if err := br.Skip(8); err != nil {
		return nil, badMetadata("truncated metadata root")
	}

	length, err := br.ReadU4()
	if err != nil {
		return nil, badMetadata("unable to read version length: %v", err)
	}
	versionBytes, err := br.ReadNBytes(int(length))
	if err != nil {
		return nil, badMetadata("truncated version string")
	}

	// flags
	if err := br.Skip(2); err != nil {
		return nil, badMetadata("truncated metadata root")
	}
	count, err := br.ReadU2()
	if err != nil {
		return nil, badMetadata("unable to read stream count: %v", err)
	}

	root := &metadataRoot{
		Version: trimNull(versionBytes),
		Streams: make(map[string][]byte, count),
	}

	for i := 0; i < int(count); i++ {
		offset, err := br.ReadU4()
		if err != nil {
			return nil, badMetadata("truncated stream header %d", i)
		}
		size, err := br.ReadU4()
		if err != nil {
			return nil, badMetadata("truncated stream header %d", i)
		}
		name, err := br.ReadString()
		if err != nil {
			return nil, badMetadata("stream header %d: %v", i, err)
		}
		if err := br.Align(4); err != nil {
			return nil, badMetadata("stream header %d: %v", i, err)
		}

		end := uint64(offset) + uint64(size)
		if end > uint64(len(blob)) {
			return nil, badMetadata("stream %s runs past metadata (%d > %d)", name, end, len(blob))
		}

		// first stream of a given name wins, as in the runtime loader
		if _, dup := root.Streams[name]; !dup {
			root.Streams[name] = blob[offset:end]
		}
	}

	return root, nil
}

func trimNull(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// heapString reads a null-terminated UTF-8 string from the #Strings heap
func heapString(heap []byte, index uint32) (string, error) {
	if int(index) >= len(heap) {
		return "", badMetadata("string index %d outside #Strings (%d bytes)", index, len(heap))
	}
	br := NewBinaryReader(heap)
	if err := br.Seek(int(index)); err != nil {
		return "", badMetadata("%v", err)
	}
	s, err := br.ReadString()
	if err != nil {
		return "", badMetadata("#Strings: %v", err)
	}
	return s, nil
}
