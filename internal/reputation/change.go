package reputation

import "github.com/teealloy/accountd/internal/models"

// Score bounds and fixed amounts of the trust model.
const (
	// MinScore is the lower score clamp.
	MinScore = 0
	// MaxScore is the upper score clamp.
	MaxScore = 100

	// EndorseThreshold is the minimum score required to vouch for others.
	EndorseThreshold = 50
	// SeniorEndorserThreshold is the score above which an endorsement awards
	// the larger amount.
	SeniorEndorserThreshold = 80
	// UnbanBaseline is the score an unbanned account is reset to.
	UnbanBaseline = 50

	// AmountIdentityLogin is awarded for an identity-provider login.
	AmountIdentityLogin = 30
	// AmountVerifiedContributor is awarded to verified project contributors.
	AmountVerifiedContributor = 100
	// AmountEndorsed is the regular endorsement award.
	AmountEndorsed = 30
	// AmountEndorsedBySenior is the award when the endorser's score exceeds
	// SeniorEndorserThreshold.
	AmountEndorsedBySenior = 50
	// AmountEndorsementRevoked is applied to endorsees when their endorser
	// is banned.
	AmountEndorsementRevoked = -30
	// AmountBanPenalty drives any score to zero under clamping.
	AmountBanPenalty = -100
	// AmountEndorserPenalty is the banned endorser's own extra penalty.
	AmountEndorserPenalty = -20
	// AmountFirst2FA is the one-time bonus for completing 2FA.
	AmountFirst2FA = 10
)

// Change describes one reputation-affecting event.
type Change struct {
	UserID        string             // Affected user, required.
	Type          models.ChangeType  // Change kind, required.
	Amount        int                // Signed delta, clamped against [MinScore, MaxScore].
	RelatedUserID string             // Optional counterpart (endorser, admin).
	Cause         models.ChangeCause // Optional machine-readable reason.
	Description   string             // Human-readable context for the log.
}

// clampScore bounds a score to [MinScore, MaxScore].
func clampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
