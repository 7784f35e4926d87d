package audio

import (
	"bytes"
	"fmt"
	"os"
)

// id3Frame is one parsed ID3v2 frame: a 4-character id and its raw body
// (including the leading text-encoding byte for text frames).
type id3Frame struct {
	id   string
	body []byte
}

// patchID3TextFrame rewrites (or inserts) a single ID3v2 text frame inside
// the file at srcPath. It is a minimal, from-scratch ID3v2.3/2.4 reader
// and writer: it keeps the id and body of every other frame (APIC
// pictures, etc.) unchanged, but it fully re-serialises the tag
// header/frame list so the tag can grow or shrink to fit the new value.
// Frame flags are not preserved (every frame is written with zero flag
// bytes), and the tag's trailing padding is dropped.
func patchID3TextFrame(srcPath, key, frameID, value string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	if len(data) < 10 || !bytes.Equal(data[0:3], []byte("ID3")) {
		return fmt.Errorf("audio: %s has no ID3v2 tag", srcPath)
	}
	version := data[3]
	tagSize := decodeSynchsafe(data[6:10])
	if 10+tagSize > len(data) {
		return fmt.Errorf("audio: %s: truncated ID3v2 tag", srcPath)
	}

	frames, err := parseFrames(data[10:10+tagSize], version)
	if err != nil {
		return err
	}

	effectiveID := frameID
	if key == "date" {
		if version >= 4 {
			effectiveID = "TDRC"
		} else {
			effectiveID = "TYER"
		}
	}

	newBody := append([]byte{0}, []byte(value)...) // encoding 0: ISO-8859-1
	replaced := false
	for i, fr := range frames {
		if fr.id == effectiveID {
			frames[i].body = newBody
			replaced = true
			break
		}
	}
	if !replaced {
		frames = append(frames, id3Frame{id: effectiveID, body: newBody})
	}

	var framesBuf bytes.Buffer
	for _, fr := range frames {
		framesBuf.WriteString(fr.id)
		framesBuf.Write(encodeFrameSize(version, len(fr.body)))
		framesBuf.Write([]byte{0, 0}) // flags
		framesBuf.Write(fr.body)
	}

	newTagSize := framesBuf.Len()
	header := make([]byte, 10)
	copy(header, data[0:10])
	copy(header[6:10], encodeSynchsafe(newTagSize))

	var out bytes.Buffer
	out.Write(header)
	out.Write(framesBuf.Bytes())
	out.Write(data[10+tagSize:])

	return os.WriteFile(srcPath, out.Bytes(), 0644)
}

// parseFrames walks the frame list until it hits padding (a null frame id)
// or runs out of declared tag bytes.
func parseFrames(buf []byte, version byte) ([]id3Frame, error) {
	var frames []id3Frame
	pos := 0
	for pos+10 <= len(buf) {
		id := string(buf[pos : pos+4])
		if id[0] == 0 {
			break // padding
		}
		size := decodeFrameSize(buf[pos+4:pos+8], version)
		pos += 10
		if pos+size > len(buf) {
			break
		}
		frames = append(frames, id3Frame{id: id, body: append([]byte(nil), buf[pos:pos+size]...)})
		pos += size
	}
	return frames, nil
}

// decodeFrameSize reads a frame's declared size: synchsafe (7 bits/byte)
// under ID3v2.4, plain big-endian under 2.3 and earlier.
func decodeFrameSize(b []byte, version byte) int {
	if version >= 4 {
		return decodeSynchsafe(b)
	}
	return int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
}

func encodeFrameSize(version byte, size int) []byte {
	if version >= 4 {
		return encodeSynchsafe(size)
	}
	return []byte{byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size)}
}

// decodeSynchsafe decodes a 4-byte synchsafe integer (the high bit of each
// byte is always 0), used for the tag header size and, under ID3v2.4,
// frame sizes too.
func decodeSynchsafe(b []byte) int {
	return int(b[0])<<21 | int(b[1])<<14 | int(b[2])<<7 | int(b[3])
}

func encodeSynchsafe(size int) []byte {
	return []byte{
		byte((size >> 21) & 0x7f),
		byte((size >> 14) & 0x7f),
		byte((size >> 7) & 0x7f),
		byte(size & 0x7f),
	}
}
