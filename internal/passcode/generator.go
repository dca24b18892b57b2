// Package passcode はワンタイムパスコードの生成を行う。
package passcode

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	minCode = 100000
	maxCode = 999999
	// Length はパスコードの桁数。
	Length = 6
)

// Generator はパスコード生成のインターフェース。
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator は暗号論的乱数から6桁のパスコードを生成する。
type RandomGenerator struct {
	reader io.Reader
}

// NewRandomGenerator はcrypto/randを使用するRandomGeneratorを生成する。
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{reader: rand.Reader}
}

// Generate は [100000, 999999] の範囲から一様にパスコードを生成する。
func (g *RandomGenerator) Generate() (string, error) {
	n, err := rand.Int(g.reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+minCode), nil
}

// IsWellFormed はコードが6桁のASCII数字のみで構成されているかを判定する。
func IsWellFormed(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// compile-time interface check
var _ Generator = (*RandomGenerator)(nil)
