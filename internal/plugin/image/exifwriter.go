package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// tagDateTime and friends are the TIFF/Exif tag IDs this writer
// knows how to locate, per the EXIF 2.3 tag tables (the same ones piexif
// and goexif's exif.Make/Model/DateTime constants refer to).
const (
	tagMake     = 0x010F
	tagModel    = 0x0110
	tagDateTime = 0x0132

	asciiType = 2
)

// ifdEntry is one parsed TIFF IFD entry.
type ifdEntry struct {
	tag       uint16
	typ       uint16
	count     uint32
	valueOff  int // absolute file offset of the entry's value bytes
	valueSize int
}

// findApp1Tiff locates the JPEG's APP1/Exif segment and returns the
// absolute offset of the start of its embedded TIFF structure, plus the
// byte order it uses.
func findApp1Tiff(data []byte) (tiffStart int, order binary.ByteOrder, err error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 0, nil, fmt.Errorf("image: not a JPEG file")
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return 0, nil, fmt.Errorf("image: malformed JPEG segment at offset %d", pos)
		}
		marker := data[pos+1]
		if marker == 0xD8 || marker == 0xD9 {
			pos += 2
			continue
		}
		segLen := int(data[pos+2])<<8 | int(data[pos+3])
		segStart := pos + 4
		if marker == 0xE1 && segStart+6 <= len(data) && bytes.Equal(data[segStart:segStart+6], []byte("Exif\x00\x00")) {
			tiffStart = segStart + 6
			if tiffStart+8 > len(data) {
				return 0, nil, fmt.Errorf("image: truncated Exif TIFF header")
			}
			switch string(data[tiffStart : tiffStart+2]) {
			case "II":
				order = binary.LittleEndian
			case "MM":
				order = binary.BigEndian
			default:
				return 0, nil, fmt.Errorf("image: unrecognised TIFF byte order")
			}
			return tiffStart, order, nil
		}
		if marker == 0xDA {
			break // start of scan: no more metadata segments follow
		}
		pos = segStart + segLen - 2
	}
	return 0, nil, fmt.Errorf("image: no Exif segment found")
}

// findIFDEntry walks the IFD at ifdOffset (relative to tiffStart) looking
// for tag. It does not follow sub-IFD pointers other than the one the
// caller already resolved into ifdOffset.
func findIFDEntry(data []byte, tiffStart int, order binary.ByteOrder, ifdOffset uint32, tag uint16) (*ifdEntry, error) {
	base := tiffStart + int(ifdOffset)
	if base+2 > len(data) {
		return nil, fmt.Errorf("image: IFD offset out of range")
	}
	count := int(order.Uint16(data[base : base+2]))
	for i := 0; i < count; i++ {
		entryOff := base + 2 + i*12
		if entryOff+12 > len(data) {
			return nil, fmt.Errorf("image: truncated IFD entry")
		}
		entryTag := order.Uint16(data[entryOff : entryOff+2])
		entryType := order.Uint16(data[entryOff+2 : entryOff+4])
		entryCount := order.Uint32(data[entryOff+4 : entryOff+8])
		if entryTag != tag {
			continue
		}
		size := int(entryCount) * typeSize(entryType)
		var valueOff int
		if size <= 4 {
			valueOff = entryOff + 8
		} else {
			rel := order.Uint32(data[entryOff+8 : entryOff+12])
			valueOff = tiffStart + int(rel)
		}
		return &ifdEntry{tag: entryTag, typ: entryType, count: entryCount, valueOff: valueOff, valueSize: size}, nil
	}
	return nil, fmt.Errorf("image: tag 0x%04X not found", tag)
}

func typeSize(t uint16) int {
	switch t {
	case 1, 2, 6, 7:
		return 1
	case 3, 8:
		return 2
	case 4, 9, 11:
		return 4
	case 5, 10, 12:
		return 8
	default:
		return 1
	}
}

// ifd0Offset returns the offset of IFD0 as recorded in the TIFF header,
// relative to tiffStart (the form findIFDEntry takes).
func ifd0Offset(data []byte, tiffStart int, order binary.ByteOrder) (uint32, error) {
	if tiffStart+8 > len(data) {
		return 0, fmt.Errorf("image: truncated TIFF header")
	}
	return order.Uint32(data[tiffStart+4 : tiffStart+8]), nil
}

// patchDateTime overwrites the IFD0 DateTime (0x0132) ASCII tag in place.
// The replacement is always formatted "YYYY:MM:DD HH:MM:SS\x00" (20 bytes),
// matching the tag's fixed EXIF width, so no IFD resizing is needed.
func patchDateTime(srcPath, newValue string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	tiffStart, order, err := findApp1Tiff(data)
	if err != nil {
		return err
	}
	off, err := ifd0Offset(data, tiffStart, order)
	if err != nil {
		return err
	}
	entry, err := findIFDEntry(data, tiffStart, order, off, tagDateTime)
	if err != nil {
		return err
	}
	if entry.typ != asciiType {
		return fmt.Errorf("image: DateTime tag has unexpected type %d", entry.typ)
	}
	value := append([]byte(newValue), 0)
	if len(value) != entry.valueSize {
		return fmt.Errorf("image: DateTime value length %d does not match tag size %d", len(value), entry.valueSize)
	}
	copy(data[entry.valueOff:entry.valueOff+entry.valueSize], value)
	return os.WriteFile(srcPath, data, 0644)
}

// patchASCIITag overwrites an ASCII IFD0 tag (Make/Model) in place,
// padding with trailing NULs when the new value is shorter. A new value
// longer than the existing tag's declared size cannot be accommodated
// without relocating the IFD and is rejected.
func patchASCIITag(srcPath, key, newValue string) error {
	var tag uint16
	switch key {
	case "Make":
		tag = tagMake
	case "Model":
		tag = tagModel
	default:
		return fmt.Errorf("image: no writable tag for key %q", key)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	tiffStart, order, err := findApp1Tiff(data)
	if err != nil {
		return err
	}
	off, err := ifd0Offset(data, tiffStart, order)
	if err != nil {
		return err
	}
	entry, err := findIFDEntry(data, tiffStart, order, off, tag)
	if err != nil {
		return err
	}
	value := append([]byte(newValue), 0)
	if len(value) > entry.valueSize {
		return fmt.Errorf("image: %s value %q too long for existing tag (max %d bytes)", key, newValue, entry.valueSize-1)
	}
	padded := make([]byte, entry.valueSize)
	copy(padded, value)
	copy(data[entry.valueOff:entry.valueOff+entry.valueSize], padded)
	return os.WriteFile(srcPath, data, 0644)
}
