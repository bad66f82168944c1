package mpegts

import "errors"

// MPEG-2 CRC32, polynomial 0x04C11DB7, no reflection, no final xor.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

var (
	errCRCShort    = errors.New("mpegts: data too short for CRC32")
	errCRCMismatch = errors.New("mpegts: CRC32 mismatch")
)

func computeCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// appendCRC32 appends the big-endian CRC of section to section.
func appendCRC32(section []byte) []byte {
	crc := computeCRC32(section)
	return append(section, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// verifyCRC32 checks a section that ends with its own CRC; running the
// CRC over such a section yields zero.
func verifyCRC32(data []byte) error {
	if len(data) < 4 {
		return errCRCShort
	}
	if computeCRC32(data) != 0 {
		return errCRCMismatch
	}
	return nil
}
