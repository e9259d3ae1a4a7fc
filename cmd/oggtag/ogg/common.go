package ogg

const (
	pageHeaderSignature = "OggS"
	pageHeaderLen       = 27
	checksumOffset      = 22
	maxSegments         = 255
	maxSegmentSize      = 255
	crcPoly             = 0x04c11db7
)

var checksumTable = generateChecksumTable()

func generateChecksumTable() *[256]uint32 {
	var table [256]uint32

	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if (r & 0x80000000) != 0 {
				r = (r << 1) ^ crcPoly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return &table
}

// Checksum returns the CRC-32 of a rendered page. The four checksum bytes
// (offsets 22 to 25) are treated as zero regardless of their content.
func Checksum(page []byte) uint32 {
	var crc uint32
	for i, b := range page {
		if i >= checksumOffset && i < checksumOffset+4 {
			b = 0
		}
		crc = (crc << 8) ^ checksumTable[byte(crc>>24)^b]
	}
	return crc
}
