package protocol

import "hash/crc32"

// CRC32 computes the frame checksum (IEEE, reflected, init and xorout 0xFFFFFFFF)
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
