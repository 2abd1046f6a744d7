// Package checkin は出席トークンの発行と引き換えを、ロール検証付きの操作として提供する。
// 呼び出し元の利用者は常に引数で受け取り、コンテキストからは読まない。
package checkin

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/model"
)

// CredentialIssuer は出席トークン発行のインターフェース。
type CredentialIssuer interface {
	Issue(ctx context.Context, lectureID string, issuer model.Identity, validity time.Duration) (*model.Credential, error)
}

// RedemptionValidator は出席登録のインターフェース。
type RedemptionValidator interface {
	Redeem(ctx context.Context, token string, subject model.Identity) (*model.Redemption, error)
}

// QRRenderer はトークンをQRコード画像のdata URLに変換する。
type QRRenderer interface {
	DataURL(content string) (string, error)
}

// IssuedCredential は発行結果。QRImageは描画に失敗した場合は空。
type IssuedCredential struct {
	Credential       *model.Credential
	QRImage          string
	RemainingSeconds int
}

// Service は出席トークンの発行と出席登録を束ねるサービス層。
type Service struct {
	issuer          CredentialIssuer
	validator       RedemptionValidator
	renderer        QRRenderer
	metrics         metrics.MetricsCollector
	defaultValidity time.Duration
	now             func() time.Time
}

// NewService はServiceを生成する。defaultValidityは有効期間未指定時に使う。
func NewService(
	issuer CredentialIssuer,
	validator RedemptionValidator,
	renderer QRRenderer,
	collector metrics.MetricsCollector,
	defaultValidity time.Duration,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		issuer:          issuer,
		validator:       validator,
		renderer:        renderer,
		metrics:         collector,
		defaultValidity: defaultValidity,
		now:             time.Now,
	}
}

// SetClock はテスト用に時刻関数を差し替える。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// IssueCredential は講師が担当講義の出席トークンを発行する。
// validityがnilの場合は既定の有効期間を使う。
func (s *Service) IssueCredential(ctx context.Context, caller model.Identity, lectureID string, validity *time.Duration) (*IssuedCredential, error) {
	if !caller.IsLecturer() {
		return nil, model.NewRoleForbiddenError(model.RoleLecturer)
	}

	v := s.defaultValidity
	if validity != nil {
		v = *validity
	}

	credential, err := s.issuer.Issue(ctx, lectureID, caller, v)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCredentialIssued()

	result := &IssuedCredential{
		Credential:       credential,
		RemainingSeconds: remainingSeconds(credential, s.now()),
	}

	if s.renderer != nil {
		img, err := s.renderer.DataURL(credential.Token)
		if err != nil {
			slog.Error("QRコードの描画に失敗しました",
				slog.String("credential_id", credential.ID),
				slog.String("error", err.Error()),
			)
		} else {
			result.QRImage = img
		}
	}

	return result, nil
}

// RedeemCredential は学生が出席トークンを引き換えて出席を登録する。
func (s *Service) RedeemCredential(ctx context.Context, caller model.Identity, token string) (*model.Redemption, error) {
	if !caller.IsStudent() {
		s.metrics.RecordRedemption(metrics.OutcomeForbidden)
		return nil, model.NewRoleForbiddenError(model.RoleStudent)
	}

	start := time.Now()
	redemption, err := s.validator.Redeem(ctx, token, caller)
	s.metrics.RecordRedemptionLatency(time.Since(start))
	s.metrics.RecordRedemption(outcomeOf(err))

	if err != nil {
		return nil, err
	}
	return redemption, nil
}

// remainingSeconds は有効期限までの残り秒数を返す。切り上げ、失効済みは0。
func remainingSeconds(c *model.Credential, now time.Time) int {
	d := c.RemainingAt(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return metrics.OutcomeError
	}
	switch apiErr.Code {
	case model.ErrCodeCredentialInvalid:
		return metrics.OutcomeInvalid
	case model.ErrCodeEnrollmentMissing:
		return metrics.OutcomeNotEnrolled
	case model.ErrCodeDuplicateRedemption:
		return metrics.OutcomeDuplicate
	case model.ErrCodeRoleForbidden:
		return metrics.OutcomeForbidden
	case model.ErrCodeStoreUnavailable:
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
