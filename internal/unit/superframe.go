package unit

// FrameRange locates one frame inside a VP9 superframe.
type FrameRange struct {
	Offset int
	Size   int
}

// SuperframeIndex is the trailing index of a VP9 superframe.
type SuperframeIndex struct {
	Start  int
	Size   int
	Frames []FrameRange
}

// ParseSuperframeIndex reads the superframe index at the end of buf. It
// reports false when buf carries no index or the index is inconsistent
// (mismatched markers or sizes exceeding the data in front of it). Zero
// sized entries are dropped.
func ParseSuperframeIndex(buf []byte) (SuperframeIndex, bool) {
	if len(buf) == 0 {
		return SuperframeIndex{}, false
	}
	marker := buf[len(buf)-1]
	if marker&0xE0 != 0xC0 {
		return SuperframeIndex{}, false
	}
	frames := int(marker&0x07) + 1
	mag := int(marker>>3&0x03) + 1
	size := 2 + mag*frames
	if size > len(buf) {
		return SuperframeIndex{}, false
	}
	start := len(buf) - size
	if buf[start] != marker {
		return SuperframeIndex{}, false
	}

	idx := SuperframeIndex{Start: start, Size: size}
	pos := start + 1
	offset := 0
	for i := 0; i < frames; i++ {
		var fs int
		for b := 0; b < mag; b++ {
			fs |= int(buf[pos+b]) << (8 * uint(b))
		}
		pos += mag
		if fs == 0 {
			continue
		}
		if offset+fs > start {
			return SuperframeIndex{}, false
		}
		idx.Frames = append(idx.Frames, FrameRange{Offset: offset, Size: fs})
		offset += fs
	}
	return idx, true
}

// AppendSuperframeIndex appends an index describing frames of the given
// sizes using the smallest magnitude that fits.
func AppendSuperframeIndex(buf []byte, sizes []int) []byte {
	if len(sizes) == 0 || len(sizes) > 8 {
		return buf
	}
	mag := 1
	for _, s := range sizes {
		for mag < 4 && s >= 1<<(8*uint(mag)) {
			mag++
		}
	}
	marker := byte(0xC0 | (mag-1)<<3 | (len(sizes) - 1))
	buf = append(buf, marker)
	for _, s := range sizes {
		for b := 0; b < mag; b++ {
			buf = append(buf, byte(s>>(8*uint(b))))
		}
	}
	return append(buf, marker)
}
