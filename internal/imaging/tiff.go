package imaging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// TIFF tags and field types used for resolution metadata.
const (
	tagXResolution    uint16 = 0x011A
	tagYResolution    uint16 = 0x011B
	tagResolutionUnit uint16 = 0x0128

	typeShort    uint16 = 3
	typeRational uint16 = 5

	resolutionUnitInch = 2

	tiffHeaderLen = 8
	ifdEntryLen   = 12
)

var errMalformedTIFF = errors.New("malformed TIFF block")

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value [4]byte
	// payload is out-of-line data; its offset is assigned when the IFD is
	// written.
	payload []byte
}

func tiffByteOrder(t []byte) (binary.ByteOrder, error) {
	if len(t) < tiffHeaderLen {
		return nil, errMalformedTIFF
	}
	var order binary.ByteOrder
	switch string(t[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order %q", errMalformedTIFF, t[0:2])
	}
	if order.Uint16(t[2:4]) != 42 {
		return nil, fmt.Errorf("%w: bad magic", errMalformedTIFF)
	}
	return order, nil
}

func rationalEntry(order binary.ByteOrder, tag uint16, num, den uint32) ifdEntry {
	payload := make([]byte, 8)
	order.PutUint32(payload[0:4], num)
	order.PutUint32(payload[4:8], den)
	return ifdEntry{tag: tag, typ: typeRational, count: 1, payload: payload}
}

func shortEntry(order binary.ByteOrder, tag, v uint16) ifdEntry {
	e := ifdEntry{tag: tag, typ: typeShort, count: 1}
	order.PutUint16(e.value[0:2], v)
	return e
}

// appendIFD writes entries, sorted by tag, as a new IFD at the end of t and
// returns the extended block with the IFD offset.
func appendIFD(t []byte, order binary.ByteOrder, entries []ifdEntry, next uint32) ([]byte, uint32) {
	if len(t)%2 == 1 {
		t = append(t, 0)
	}
	base := uint32(len(t))
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifd := make([]byte, 2+len(entries)*ifdEntryLen+4)
	dataOff := base + uint32(len(ifd))
	var data []byte

	order.PutUint16(ifd[0:2], uint16(len(entries)))
	for i, e := range entries {
		p := ifd[2+i*ifdEntryLen:]
		order.PutUint16(p[0:2], e.tag)
		order.PutUint16(p[2:4], e.typ)
		order.PutUint32(p[4:8], e.count)
		if e.payload != nil {
			order.PutUint32(p[8:12], dataOff+uint32(len(data)))
			data = append(data, e.payload...)
			if len(data)%2 == 1 {
				data = append(data, 0)
			}
		} else {
			copy(p[8:12], e.value[:])
		}
	}
	order.PutUint32(ifd[len(ifd)-4:], next)

	t = append(t, ifd...)
	return append(t, data...), base
}

// minimalTIFF builds a big-endian TIFF block holding only the resolution
// tags.
func minimalTIFF(ppi uint32) []byte {
	order := binary.BigEndian
	t := []byte{'M', 'M', 0, 42, 0, 0, 0, 0}
	t, base := appendIFD(t, order, resolutionEntries(order, ppi, true, true, true), 0)
	order.PutUint32(t[4:8], base)
	return t
}

func resolutionEntries(order binary.ByteOrder, ppi uint32, x, y, unit bool) []ifdEntry {
	var entries []ifdEntry
	if x {
		entries = append(entries, rationalEntry(order, tagXResolution, ppi, 1))
	}
	if y {
		entries = append(entries, rationalEntry(order, tagYResolution, ppi, 1))
	}
	if unit {
		entries = append(entries, shortEntry(order, tagResolutionUnit, resolutionUnitInch))
	}
	return entries
}

// validValueOffset reports whether an 8-byte value at off lies inside the
// block without touching the header or IFD0 itself.
func validValueOffset(off, ifdOff, ifdEnd, size int) bool {
	if off < tiffHeaderLen || off+8 > size {
		return false
	}
	return off+8 <= ifdOff || off >= ifdEnd+4
}

// setTIFFResolution returns a copy of the TIFF block with IFD0 declaring ppi
// pixels per inch. Well-formed existing tags are patched in place. When any
// tag is missing or has an unexpected type, IFD0 is rebuilt at the end of
// the block with every other entry kept as is, so existing value offsets
// stay valid.
func setTIFFResolution(src []byte, ppi uint32) ([]byte, error) {
	order, err := tiffByteOrder(src)
	if err != nil {
		return nil, err
	}
	t := append([]byte(nil), src...)

	ifdOff := int(order.Uint32(t[4:8]))
	if ifdOff < tiffHeaderLen || ifdOff+2 > len(t) {
		return nil, fmt.Errorf("%w: IFD0 offset %d out of range", errMalformedTIFF, ifdOff)
	}
	n := int(order.Uint16(t[ifdOff : ifdOff+2]))
	end := ifdOff + 2 + n*ifdEntryLen
	if end+4 > len(t) {
		return nil, fmt.Errorf("%w: IFD0 with %d entries overruns block", errMalformedTIFF, n)
	}
	next := order.Uint32(t[end : end+4])

	var (
		kept                   []ifdEntry
		haveX, haveY, haveUnit bool
	)
	for i := 0; i < n; i++ {
		p := t[ifdOff+2+i*ifdEntryLen : ifdOff+2+(i+1)*ifdEntryLen]
		e := ifdEntry{tag: order.Uint16(p[0:2]), typ: order.Uint16(p[2:4]), count: order.Uint32(p[4:8])}
		copy(e.value[:], p[8:12])

		switch e.tag {
		case tagXResolution, tagYResolution:
			off := int(order.Uint32(p[8:12]))
			if e.typ != typeRational || e.count != 1 || !validValueOffset(off, ifdOff, end, len(t)) {
				continue
			}
			order.PutUint32(t[off:off+4], ppi)
			order.PutUint32(t[off+4:off+8], 1)
			if e.tag == tagXResolution {
				haveX = true
			} else {
				haveY = true
			}
		case tagResolutionUnit:
			if e.typ != typeShort || e.count != 1 {
				continue
			}
			order.PutUint16(p[8:10], resolutionUnitInch)
			copy(e.value[:], p[8:12])
			haveUnit = true
		}
		kept = append(kept, e)
	}

	if haveX && haveY && haveUnit {
		return t, nil
	}

	entries := append(kept, resolutionEntries(order, ppi, !haveX, !haveY, !haveUnit)...)
	t, base := appendIFD(t, order, entries, next)
	order.PutUint32(t[4:8], base)
	return t, nil
}
