package parser

import (
	"fmt"
	"math/bits"
)

type tableID uint8

// Metadata tables (ECMA-335 II.22). Only the ids needed to lay out the
// table stream are named.
const (
	tableModule                 tableID = 0x00
	tableTypeRef                tableID = 0x01
	tableTypeDef                tableID = 0x02
	tableFieldPtr               tableID = 0x03
	tableField                  tableID = 0x04
	tableMethodPtr              tableID = 0x05
	tableMethodDef              tableID = 0x06
	tableParamPtr               tableID = 0x07
	tableParam                  tableID = 0x08
	tableInterfaceImpl          tableID = 0x09
	tableMemberRef              tableID = 0x0A
	tableConstant               tableID = 0x0B
	tableCustomAttribute        tableID = 0x0C
	tableFieldMarshal           tableID = 0x0D
	tableDeclSecurity           tableID = 0x0E
	tableClassLayout            tableID = 0x0F
	tableFieldLayout            tableID = 0x10
	tableStandAloneSig          tableID = 0x11
	tableEventMap               tableID = 0x12
	tableEventPtr               tableID = 0x13
	tableEvent                  tableID = 0x14
	tablePropertyMap            tableID = 0x15
	tablePropertyPtr            tableID = 0x16
	tableProperty               tableID = 0x17
	tableMethodSemantics        tableID = 0x18
	tableMethodImpl             tableID = 0x19
	tableModuleRef              tableID = 0x1A
	tableTypeSpec               tableID = 0x1B
	tableImplMap                tableID = 0x1C
	tableFieldRVA               tableID = 0x1D
	tableEncLog                 tableID = 0x1E
	tableEncMap                 tableID = 0x1F
	tableAssembly               tableID = 0x20
	tableAssemblyProcessor      tableID = 0x21
	tableAssemblyOS             tableID = 0x22
	tableAssemblyRef            tableID = 0x23
	tableAssemblyRefProcessor   tableID = 0x24
	tableAssemblyRefOS          tableID = 0x25
	tableFile                   tableID = 0x26
	tableExportedType           tableID = 0x27
	tableManifestResource       tableID = 0x28
	tableNestedClass            tableID = 0x29
	tableGenericParam           tableID = 0x2A
	tableMethodSpec             tableID = 0x2B
	tableGenericParamConstraint tableID = 0x2C

	// noTable fills unused tags of a coded index
	noTable tableID = 0xFF

	maxTables = 64
)

// Heap size flags of the table stream header
const (
	heapBigStrings = 0x01
	heapBigGUID    = 0x02
	heapBigBlob    = 0x04
	heapExtraData  = 0x40
)

type codedIndex struct {
	tagBits int
	tables  []tableID
}

var (
	ciTypeDefOrRef        = codedIndex{2, []tableID{tableTypeDef, tableTypeRef, tableTypeSpec}}
	ciHasConstant         = codedIndex{2, []tableID{tableField, tableParam, tableProperty}}
	ciHasFieldMarshal     = codedIndex{1, []tableID{tableField, tableParam}}
	ciHasDeclSecurity     = codedIndex{2, []tableID{tableTypeDef, tableMethodDef, tableAssembly}}
	ciMemberRefParent     = codedIndex{3, []tableID{tableTypeDef, tableTypeRef, tableModuleRef, tableMethodDef, tableTypeSpec}}
	ciHasSemantics        = codedIndex{1, []tableID{tableEvent, tableProperty}}
	ciMethodDefOrRef      = codedIndex{1, []tableID{tableMethodDef, tableMemberRef}}
	ciMemberForwarded     = codedIndex{1, []tableID{tableField, tableMethodDef}}
	ciImplementation      = codedIndex{2, []tableID{tableFile, tableAssemblyRef, tableExportedType}}
	ciCustomAttributeType = codedIndex{3, []tableID{noTable, noTable, tableMethodDef, tableMemberRef, noTable}}
	ciResolutionScope     = codedIndex{2, []tableID{tableModule, tableModuleRef, tableAssemblyRef, tableTypeRef}}
	ciTypeOrMethodDef     = codedIndex{1, []tableID{tableTypeDef, tableMethodDef}}
	ciHasCustomAttribute  = codedIndex{5, []tableID{
		tableMethodDef, tableField, tableTypeRef, tableTypeDef, tableParam, tableInterfaceImpl,
		tableMemberRef, tableModule, tableDeclSecurity, tableProperty, tableEvent, tableStandAloneSig,
		tableModuleRef, tableTypeSpec, tableAssembly, tableAssemblyRef, tableFile, tableExportedType,
		tableManifestResource, tableGenericParam, tableGenericParamConstraint, tableMethodSpec,
	}}
)

type columnKind uint8

const (
	colFixed columnKind = iota
	colString
	colGUID
	colBlob
	colTable
	colCoded
)

type column struct {
	kind  columnKind
	size  int
	table tableID
	coded codedIndex
}

func fixed(n int) column         { return column{kind: colFixed, size: n} }
func index(t tableID) column     { return column{kind: colTable, table: t} }
func coded(ci codedIndex) column { return column{kind: colCoded, coded: ci} }

var (
	u2   = fixed(2)
	u4   = fixed(4)
	str  = column{kind: colString}
	guid = column{kind: colGUID}
	blob = column{kind: colBlob}
)

// schema lists the columns of every table that can precede or include AssemblyRef
var schema = map[tableID][]column{
	tableModule:                 {u2, str, guid, guid, guid},
	tableTypeRef:                {coded(ciResolutionScope), str, str},
	tableTypeDef:                {u4, str, str, coded(ciTypeDefOrRef), index(tableField), index(tableMethodDef)},
	tableFieldPtr:               {index(tableField)},
	tableField:                  {u2, str, blob},
	tableMethodPtr:              {index(tableMethodDef)},
	tableMethodDef:              {u4, u2, u2, str, blob, index(tableParam)},
	tableParamPtr:               {index(tableParam)},
	tableParam:                  {u2, u2, str},
	tableInterfaceImpl:          {index(tableTypeDef), coded(ciTypeDefOrRef)},
	tableMemberRef:              {coded(ciMemberRefParent), str, blob},
	tableConstant:               {u2, coded(ciHasConstant), blob},
	tableCustomAttribute:        {coded(ciHasCustomAttribute), coded(ciCustomAttributeType), blob},
	tableFieldMarshal:           {coded(ciHasFieldMarshal), blob},
	tableDeclSecurity:           {u2, coded(ciHasDeclSecurity), blob},
	tableClassLayout:            {u2, u4, index(tableTypeDef)},
	tableFieldLayout:            {u4, index(tableField)},
	tableStandAloneSig:          {blob},
	tableEventMap:               {index(tableTypeDef), index(tableEvent)},
	tableEventPtr:               {index(tableEvent)},
	tableEvent:                  {u2, str, coded(ciTypeDefOrRef)},
	tablePropertyMap:            {index(tableTypeDef), index(tableProperty)},
	tablePropertyPtr:            {index(tableProperty)},
	tableProperty:               {u2, str, blob},
	tableMethodSemantics:        {u2, index(tableMethodDef), coded(ciHasSemantics)},
	tableMethodImpl:             {index(tableTypeDef), coded(ciMethodDefOrRef), coded(ciMethodDefOrRef)},
	tableModuleRef:              {str},
	tableTypeSpec:               {blob},
	tableImplMap:                {u2, coded(ciMemberForwarded), str, index(tableModuleRef)},
	tableFieldRVA:               {u4, index(tableField)},
	tableEncLog:                 {u4, u4},
	tableEncMap:                 {u4},
	tableAssembly:               {u4, u2, u2, u2, u2, u4, blob, str, str},
	tableAssemblyProcessor:      {u4},
	tableAssemblyOS:             {u4, u4, u4},
	tableAssemblyRef:            {u2, u2, u2, u2, u4, blob, str, str, blob},
	tableAssemblyRefProcessor:   {u4, index(tableAssemblyRef)},
	tableAssemblyRefOS:          {u4, u4, u4, index(tableAssemblyRef)},
	tableFile:                   {u4, str, blob},
	tableExportedType:           {u4, u4, str, str, coded(ciImplementation)},
	tableManifestResource:       {u4, u4, str, coded(ciImplementation)},
	tableNestedClass:            {index(tableTypeDef), index(tableTypeDef)},
	tableGenericParam:           {u2, u2, coded(ciTypeOrMethodDef), str},
	tableMethodSpec:             {coded(ciMethodDefOrRef), blob},
	tableGenericParamConstraint: {index(tableGenericParam), coded(ciTypeDefOrRef)},
}

/*
*	Table stream "#~" (ECMA-335 II.24.2.6)
*
*	u4		reserved
*	u1, u1	major/minor version
*	u1		heap sizes
*	u1		reserved
*	u8		valid (bit vector of present tables)
*	u8		sorted
*	u4[]	row count per present table
*	then the tables, in id order
 */
type tableStream struct {
	heapSizes uint8
	rows      [maxTables]uint32
	offsets   [maxTables]int
	data      []byte
}

func parseTableStream(data []byte) (*tableStream, error) {
	br := NewBinaryReader(data)

	if err := br.Skip(6); err != nil {
		return nil, badMetadata("truncated table stream header")
	}
	heapSizes, err := br.ReadU1()
	if err != nil {
		return nil, badMetadata("truncated table stream header")
	}
	if err := br.Skip(1); err != nil {
		return nil, badMetadata("truncated table stream header")
	}
	valid, err := br.ReadU8()
	if err != nil {
		return nil, badMetadata("unable to read valid mask: %v", err)
	}
	// sorted
	if err := br.Skip(8); err != nil {
		return nil, badMetadata("truncated table stream header")
	}

	ts := &tableStream{heapSizes: heapSizes, data: data}
	for id := 0; id < maxTables; id++ {
		if valid&(1<<uint(id)) == 0 {
			continue
		}
		n, err := br.ReadU4()
		if err != nil {
			return nil, badMetadata("truncated row counts (%d tables)", bits.OnesCount64(valid))
		}
		ts.rows[id] = n
	}

	if heapSizes&heapExtraData != 0 {
		if err := br.Skip(4); err != nil {
			return nil, badMetadata("truncated table stream header")
		}
	}

	offset := br.Pos()
	for id := 0; id < maxTables; id++ {
		if ts.rows[id] == 0 {
			continue
		}
		cols, ok := schema[tableID(id)]
		if !ok {
			// Tables past the known schema come after AssemblyRef, so
			// nothing we read depends on their size.
			if tableID(id) < tableAssemblyRef {
				return nil, badMetadata("unknown table 0x%02x", id)
			}
			break
		}
		ts.offsets[id] = offset
		offset += int(ts.rows[id]) * ts.rowSize(cols)
		if offset > len(data) {
			return nil, badMetadata("table 0x%02x runs past table stream", id)
		}
	}

	return ts, nil
}

func (ts *tableStream) rowSize(cols []column) int {
	size := 0
	for _, c := range cols {
		size += ts.columnSize(c)
	}
	return size
}

func (ts *tableStream) columnSize(c column) int {
	switch c.kind {
	case colFixed:
		return c.size
	case colString:
		return ts.heapIndexSize(heapBigStrings)
	case colGUID:
		return ts.heapIndexSize(heapBigGUID)
	case colBlob:
		return ts.heapIndexSize(heapBigBlob)
	case colTable:
		if ts.rows[c.table] > 0xFFFF {
			return 4
		}
		return 2
	case colCoded:
		var most uint32
		for _, t := range c.coded.tables {
			if t != noTable && ts.rows[t] > most {
				most = ts.rows[t]
			}
		}
		if most >= 1<<(16-c.coded.tagBits) {
			return 4
		}
		return 2
	default:
		panic(fmt.Sprintf("unknown column kind %d", c.kind))
	}
}

func (ts *tableStream) heapIndexSize(flag uint8) int {
	if ts.heapSizes&flag != 0 {
		return 4
	}
	return 2
}

// RowCount returns the number of rows in a table
func (ts *tableStream) RowCount(id tableID) int {
	return int(ts.rows[id])
}

// readRow decodes row i (zero-based) into one value per column
func (ts *tableStream) readRow(id tableID, i int) ([]uint32, error) {
	cols := schema[id]
	if i < 0 || i >= ts.RowCount(id) {
		return nil, badMetadata("row %d outside table 0x%02x (%d rows)", i, id, ts.RowCount(id))
	}

	br := NewBinaryReader(ts.data)
	if err := br.Seek(ts.offsets[id] + i*ts.rowSize(cols)); err != nil {
		return nil, badMetadata("%v", err)
	}

	values := make([]uint32, len(cols))
	for c, col := range cols {
		v, err := br.ReadIndex(ts.columnSize(col))
		if err != nil {
			return nil, badMetadata("table 0x%02x row %d column %d: %v", id, i, c, err)
		}
		values[c] = v
	}
	return values, nil
}
