package link

// CRC-16 with polynomial 0x8005, zero init, no reflection and no final XOR
// (CRC-16/UMTS). The check value for "123456789" is 0xFEE8.
const crcPoly = 0x8005

var crcTable = func() (t [256]uint16) {
	for i := range t {
		c := uint16(i) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ crcPoly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC16 returns the frame checksum of b.
func CRC16(b []byte) uint16 {
	var crc uint16
	for _, v := range b {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^v]
	}
	return crc
}
