package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BaSui01/convoflow/config"
)

// 未配置有效期时的令牌寿命
const defaultTokenTTL = 24 * time.Hour

// IssueToken 用 HS256 共享密钥签发操作令牌，subject 标识持有者
func IssueToken(cfg config.AuthConfig, subject string) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("auth secret is empty")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "convoflow",
	})

	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
