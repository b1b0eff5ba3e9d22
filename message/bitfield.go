package message

// Availability is the payload of a Bitfield message: one bit per piece,
// high bit of the first byte is piece 0.
//
// Example:
//   - [0 0 1 0 1 0 0 0] (only pieces 2 and 4 are available)
//   - [0 0 0 0 0 0 0 0] [0 0 0 0 0 0 0 1] (only piece 15 is available)
type Availability []byte

// HasPiece reports whether the piece at index is advertised.
func (bf Availability) HasPiece(index int) bool {
	byteIndex := index / 8
	offset := index % 8
	if index < 0 || byteIndex >= len(bf) {
		return false
	}
	return bf[byteIndex]>>(7-offset)&1 != 0
}

// SetPiece marks the piece at index as available.
func (bf Availability) SetPiece(index int) {
	byteIndex := index / 8
	offset := index % 8
	if index < 0 || byteIndex >= len(bf) {
		return
	}
	bf[byteIndex] |= 1 << (7 - offset)
}

// Missing returns how many of the first n pieces are not advertised.
func (bf Availability) Missing(n int) int {
	missing := 0
	for i := 0; i < n; i++ {
		if !bf.HasPiece(i) {
			missing++
		}
	}
	return missing
}
