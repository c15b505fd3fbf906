package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
)

// NBit is the 32-bit compact encoding of a proof-of-work target.
type NBit uint32

func NewNBitFromString(s string) (NBit, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid nbits %q: %w", s, err)
	}

	return NBit(v), nil
}

// NewNBitFromSlice reads bits the way they appear in a serialized header (little endian).
func NewNBitFromSlice(b []byte) (NBit, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("nbits should be 4 bytes long, got %d", len(b))
	}

	return NBit(binary.LittleEndian.Uint32(b)), nil
}

func (n NBit) Bytes() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(n))

	return b
}

func (n NBit) Uint32() uint32 {
	return uint32(n)
}

func (n NBit) String() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))

	return hex.EncodeToString(b)
}

// CalculateTarget expands the bits: target = mantissa * 256^(exponent-3), with a 24 bit unsigned
// mantissa.
func (n NBit) CalculateTarget() *big.Int {
	mantissa := uint32(n) & 0x00ffffff
	exponent := uint(uint32(n) >> 24)

	if exponent <= 3 {
		return big.NewInt(int64(mantissa >> (8 * (3 - exponent))))
	}

	bn := big.NewInt(int64(mantissa))

	return bn.Lsh(bn, 8*(exponent-3))
}
