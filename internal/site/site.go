// Package site holds the admin PIN and the consent policy texts shown on the
// landing page.
//
// The PIN is compared by exact string equality and stored in clear text. It
// gates the admin dashboard of a single-operator site and is not a
// credential store.
package site

import (
	"context"
	"errors"
)

const (
	KeyAdminPin         = "admin_pin"
	KeyPrivacyPolicy    = "privacy_policy"
	KeyThirdPartyPolicy = "third_party_policy"

	DefaultPin = "8673"

	DefaultPrivacyPolicy = `개인정보 수집 및 이용에 관한 동의

1. 개인정보 수집 목적: 상담 서비스 제공
2. 수집하는 개인정보 항목: 이름, 전화번호, 이메일
3. 개인정보 보유 및 이용기간: 상담 완료 후 1년
4. 동의 거부권: 개인정보 수집에 동의하지 않을 권리가 있으며, 동의 거부 시 상담 서비스 이용이 제한될 수 있습니다.`

	DefaultThirdPartyPolicy = `개인정보 제3자 제공에 관한 동의

1. 제공받는 자: 상담 서비스 제공업체
2. 제공 목적: 전문 상담 서비스 제공
3. 제공하는 개인정보 항목: 이름, 전화번호
4. 보유 및 이용기간: 상담 완료 후 6개월`
)

var ErrEmptyPin = errors.New("pin must not be empty")

// Preferences is a string key/value store. *store.Store satisfies it.
type Preferences interface {
	GetPreference(ctx context.Context, key, def string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
}

type Settings struct {
	prefs Preferences
}

func New(prefs Preferences) *Settings {
	return &Settings{prefs: prefs}
}

func (s *Settings) VerifyPin(ctx context.Context, pin string) (bool, error) {
	current, err := s.get(ctx, KeyAdminPin, DefaultPin)
	if err != nil {
		return false, err
	}
	return current == pin, nil
}

// ChangePin stores a new PIN. Sessions issued under the old PIN stay valid.
func (s *Settings) ChangePin(ctx context.Context, pin string) error {
	if pin == "" {
		return ErrEmptyPin
	}
	return s.prefs.SetPreference(ctx, KeyAdminPin, pin)
}

func (s *Settings) PrivacyPolicy(ctx context.Context) (string, error) {
	return s.get(ctx, KeyPrivacyPolicy, DefaultPrivacyPolicy)
}

func (s *Settings) UpdatePrivacyPolicy(ctx context.Context, text string) error {
	return s.prefs.SetPreference(ctx, KeyPrivacyPolicy, text)
}

func (s *Settings) ThirdPartyPolicy(ctx context.Context) (string, error) {
	return s.get(ctx, KeyThirdPartyPolicy, DefaultThirdPartyPolicy)
}

func (s *Settings) UpdateThirdPartyPolicy(ctx context.Context, text string) error {
	return s.prefs.SetPreference(ctx, KeyThirdPartyPolicy, text)
}

// get treats an empty stored value like a missing one.
func (s *Settings) get(ctx context.Context, key, def string) (string, error) {
	v, err := s.prefs.GetPreference(ctx, key, def)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}
