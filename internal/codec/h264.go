package codec

import "bytes"

// H.264 NAL unit types
const (
	NALUnitTypeNonIDR = 1
	NALUnitTypeIDR    = 5
	NALUnitTypeSEI    = 6
	NALUnitTypeSPS    = 7
	NALUnitTypePPS    = 8
	NALUnitTypeAUD    = 9
)

// Annex-B start codes
var (
	startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
	startCode3 = []byte{0x00, 0x00, 0x01}
)

// IsAnnexBFormat detects if data starts with an Annex-B start code.
func IsAnnexBFormat(data []byte) bool {
	if len(data) >= 4 && bytes.Equal(data[0:4], startCode4) {
		return true
	}
	return len(data) >= 3 && bytes.Equal(data[0:3], startCode3)
}

// NALUnits splits an Annex-B byte stream into its NAL units, start codes
// stripped. Bytes before the first start code are ignored.
func NALUnits(data []byte) [][]byte {
	var units [][]byte
	offset := 0

	// Find the start of the first NAL unit.
	for offset < len(data) && startCodeLenAt(data, offset) == 0 {
		offset++
	}

	for offset < len(data) {
		offset += startCodeLenAt(data, offset)

		next := offset
		for next < len(data) && startCodeLenAt(data, next) == 0 {
			next++
		}
		if next > offset {
			units = append(units, data[offset:next])
		}
		offset = next
	}
	return units
}

// ContainsIDR reports whether the Annex-B stream holds an IDR NAL unit,
// i.e. whether this access unit is a keyframe the decoder can
// resynchronize from.
func ContainsIDR(data []byte) bool {
	for _, nal := range NALUnits(data) {
		// nal_unit_type is the lower 5 bits of the first byte.
		if nal[0]&0x1F == NALUnitTypeIDR {
			return true
		}
	}
	return false
}

func startCodeLenAt(data []byte, offset int) int {
	if offset+4 <= len(data) && bytes.Equal(data[offset:offset+4], startCode4) {
		return 4
	}
	if offset+3 <= len(data) && bytes.Equal(data[offset:offset+3], startCode3) {
		return 3
	}
	return 0
}
