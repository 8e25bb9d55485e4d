package auth

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ExternalProfile is the canonical profile read from a verified provider assertion.
type ExternalProfile struct {
	Subject       string `mapstructure:"sub"`
	Email         string `mapstructure:"email"`
	EmailVerified bool   `mapstructure:"email_verified"`
	Name          string `mapstructure:"name"`
	GivenName     string `mapstructure:"given_name"`
	FamilyName    string `mapstructure:"family_name"`
	Picture       string `mapstructure:"picture"`
}

// DecodeProfile maps a raw claim set onto ExternalProfile.
// Providers disagree on types (email_verified arrives as "true" from some),
// so decoding is weakly typed. Unknown claims are ignored.
func DecodeProfile(claims map[string]interface{}) (*ExternalProfile, error) {
	profile := &ExternalProfile{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           profile,
	})
	if err != nil {
		return nil, fmt.Errorf("create claim decoder: %w", err)
	}
	if err := decoder.Decode(claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	if profile.Subject == "" {
		return nil, fmt.Errorf("claim field sub is empty")
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("claim field email is empty")
	}

	// Fall back to splitting "name" when given/family are absent.
	if profile.GivenName == "" && profile.FamilyName == "" && profile.Name != "" {
		first, last, _ := strings.Cut(strings.TrimSpace(profile.Name), " ")
		profile.GivenName = first
		profile.FamilyName = strings.TrimSpace(last)
	}
	return profile, nil
}
