package model

// TwoFactorChallenge is returned instead of a token pair when the account
// has two-factor enabled. The challenge token is single-use and short-lived
// and grants no access rights on its own.
type TwoFactorChallenge struct {
	TwoFactorRequired bool   `json:"two_factor_required"`
	ChallengeToken    string `json:"challenge_token"`
}

// TwoFactorSetup carries a pending secret back to the client for enrollment.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// VerifyTwoFactorRequest redeems a challenge with a TOTP code.
type VerifyTwoFactorRequest struct {
	ChallengeToken string `json:"challenge_token" binding:"required"`
	Code           string `json:"code" binding:"required,len=6,numeric"`
}

// TwoFactorCodeRequest carries a bare TOTP code for enable and disable.
type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}
