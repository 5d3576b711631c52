package auth

import (
	"context"
	"strings"
	"time"

	"github.com/dqmpipeline/dqm/internal/model"
)

// PlatformScope 始终附带的基础 scope
const PlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Token 不透明凭证：行源与日志写入端按需读取
type Token struct {
	// Principal 被模拟的服务账号；为空表示默认凭证
	Principal string
	Scopes    []string
	IssuedAt  time.Time
}

// Impersonated 是否为服务账号模拟凭证
func (t *Token) Impersonated() bool {
	return t != nil && t.Principal != ""
}

// Provider 凭证提供方
type Provider interface {
	Credentials(ctx context.Context, cfg *model.AuthConfig) (*Token, error)
}

// DefaultProvider 默认凭证提供方：不访问外部服务，仅组装 principal 与 scope
type DefaultProvider struct {
	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// Credentials 返回默认凭证；配置了服务账号时返回模拟凭证
func (p DefaultProvider) Credentials(ctx context.Context, cfg *model.AuthConfig) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	tok := &Token{Scopes: Scopes(cfg), IssuedAt: now().UTC()}
	if cfg != nil {
		tok.Principal = strings.TrimSpace(cfg.ServiceAccountEmail)
	}
	return tok, nil
}

// Scopes 基础 scope 加上配置中的额外 scope（去重，保持顺序）
func Scopes(cfg *model.AuthConfig) []string {
	out := []string{PlatformScope}
	if cfg == nil {
		return out
	}
	seen := map[string]struct{}{PlatformScope: {}}
	for _, s := range cfg.Scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
