package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/rollcall/internal/model"
)

// MinSecretLength は署名鍵の最小バイト長。
const MinSecretLength = 32

var (
	errAssertionExpired   = errors.New("identity: assertion expired")
	errAssertionMalformed = errors.New("identity: assertion malformed")
)

// Claims は認証トークンのペイロード。
// subは利用者ID、uidは学籍番号。
type Claims struct {
	Role         string `json:"role"`
	UniversityID string `json:"uid"`
	jwt.RegisteredClaims
}

// Signer はHS256で認証トークンの署名と検証を行う。
// 署名鍵は生成後に変更しない。
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSigner はSignerを生成する。鍵がMinSecretLength未満の場合はエラーを返す。
func NewSigner(secret []byte, issuer string, ttl time.Duration) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("assertion secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("assertion ttl must be positive: %s", ttl)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{secret: key, issuer: issuer, ttl: ttl}, nil
}

// Sign は利用者の認証トークンを発行し、トークンと有効期限を返す。
func (s *Signer) Sign(identity *model.Identity, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Role:         string(identity.Role),
		UniversityID: identity.UniversityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse は署名・アルゴリズム・発行者・有効期限を検証してClaimsを返す。
// 期限切れはerrAssertionExpired、それ以外の不正はerrAssertionMalformedでラップする。
func (s *Signer) Parse(assertion string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(assertion, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("%w: %w", errAssertionExpired, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errAssertionMalformed, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errAssertionMalformed
	}
	return claims, nil
}
