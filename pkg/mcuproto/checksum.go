package mcuproto

import "github.com/sigurn/crc16"

// CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF, no reflection, no final xor.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the frame checksum over data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
