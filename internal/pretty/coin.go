package pretty

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

// SatoshiPerCoin is the number of satoshis in one coin.
const SatoshiPerCoin = 100000000

// coinBoundary is the smallest amount, in satoshis, shown in coins.
const coinBoundary = SatoshiPerCoin / 1000

// Coin implements a String() formatter for an amount in satoshis that
// switches to whole coins for larger values.
type Coin int64

func (c Coin) String() string {
	v := int64(c)
	abs := v
	if abs < 0 {
		abs = -abs
	}
	if abs < coinBoundary {
		return fmt.Sprintf("%d sat", v)
	}
	s := big.NewRat(v, SatoshiPerCoin).FloatString(8)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s + " BTC"
}

// ParseCoin takes a string like "0.5 btc" or "1000 sat" and converts it to
// satoshis. A bare number is in satoshis.
func ParseCoin(s string) (int64, error) {
	var splitPos int
	for pos, ch := range s {
		if !unicode.IsNumber(ch) && ch != '-' && ch != '.' {
			splitPos = pos
			break
		}
	}

	number, unit := s, ""
	if splitPos > 0 {
		number, unit = s[:splitPos], s[splitPos:]
	}

	n, ok := new(big.Rat).SetString(number)
	if !ok {
		return 0, fmt.Errorf("failed to parse coin value: %q", s)
	}

	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "sat", "sats", "satoshi":
	case "bits", "ubtc":
		n.Mul(n, big.NewRat(100, 1))
	case "mbtc":
		n.Mul(n, big.NewRat(100000, 1))
	case "btc", "coin":
		n.Mul(n, big.NewRat(SatoshiPerCoin, 1))
	default:
		return 0, fmt.Errorf("failed to parse coin unit: %q", s)
	}

	if !n.IsInt() {
		return 0, fmt.Errorf("coin value is not a whole number of satoshis: %q", s)
	}
	return n.Num().Int64(), nil
}
