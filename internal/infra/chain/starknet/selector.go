package starknet

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// selectorMask keeps the low 250 bits of the keccak digest.
var selectorMask = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 250), uint256.NewInt(1))

var selectorCache sync.Map

// Selector returns the entry point selector for a function name:
// keccak256(name) truncated to 250 bits.
func Selector(name string) string {
	if v, ok := selectorCache.Load(name); ok {
		return v.(string)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	v := new(uint256.Int).SetBytes(h.Sum(nil))
	sel := v.And(v, selectorMask).Hex()
	selectorCache.Store(name, sel)
	return sel
}

// FeltToUint64 decodes a hex felt that fits in 64 bits. Leading zeros are
// accepted. The value is 0 whenever err is set.
func FeltToUint64(felt string) (uint64, error) {
	if !strings.HasPrefix(felt, "0x") && !strings.HasPrefix(felt, "0X") {
		return 0, fmt.Errorf("felt %q lacks 0x prefix", felt)
	}
	digits := strings.TrimLeft(felt[2:], "0")
	if digits == "" {
		return 0, nil
	}
	v, err := hexutil.DecodeUint64("0x" + digits)
	if err != nil {
		return 0, fmt.Errorf("felt %q: %w", felt, err)
	}
	return v, nil
}
