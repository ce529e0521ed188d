package common

import (
	"encoding/hex"
	"math/big"
	"net/url"
	"strings"
)

func IsValidHTTPURL(input string) bool {
	parsed, err := url.ParseRequestURI(input)
	if err != nil {
		return false
	}

	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func DecodeHex(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}

	return hex.DecodeString(s)
}

// MulPercentage returns value * percentage / 100 without mutating value.
func MulPercentage(value *big.Int, percentage uint64) *big.Int {
	result := new(big.Int).Mul(value, new(big.Int).SetUint64(percentage))

	return result.Div(result, big.NewInt(100))
}
