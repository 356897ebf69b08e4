package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// slugAlphabet 去掉易混淆字符（0/1/i/l/o）
const slugAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const publicSlugLength = 12

// IdentityGenerator 资产对外标识生成器（唯一性由 AssetRegistry 在写入前检查）
type IdentityGenerator interface {
	NewExternalCode(category string) string
	NewPublicSlug() (string, error)
}

type randomIdentityGenerator struct{}

// NewIdentityGenerator 默认实现：external_code = 类别前缀 + uuid 片段，public_slug = 12 位随机串
func NewIdentityGenerator() IdentityGenerator {
	return randomIdentityGenerator{}
}

func (randomIdentityGenerator) NewExternalCode(category string) string {
	prefix := strings.ToUpper(strings.TrimSpace(category))
	prefix = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, prefix)
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	if prefix == "" {
		prefix = "AST"
	}
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(raw[:10]))
}

func (randomIdentityGenerator) NewPublicSlug() (string, error) {
	var b strings.Builder
	b.Grow(publicSlugLength)
	alphabetLen := big.NewInt(int64(len(slugAlphabet)))
	for i := 0; i < publicSlugLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate public slug: %w", err)
		}
		b.WriteByte(slugAlphabet[n.Int64()])
	}
	return b.String(), nil
}
