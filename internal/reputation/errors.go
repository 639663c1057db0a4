package reputation

import "errors"

// Validation errors: rejected before any mutation is attempted.
var (
	// ErrInvalidUserID indicates a malformed user identifier.
	ErrInvalidUserID = errors.New("reputation: invalid user id")
	// ErrSelfEndorsement indicates a user tried to vouch for themselves.
	ErrSelfEndorsement = errors.New("reputation: cannot endorse yourself")
)

// Precondition violations: the transaction is rolled back with no partial
// log entries. Distinguishable from validation errors via IsPrecondition.
var (
	// ErrScoreTooLow indicates the endorser lacks the trust to vouch.
	ErrScoreTooLow = errors.New("reputation: score too low to endorse")
	// ErrEndorseeUntracked indicates the endorsee has no reputation record.
	ErrEndorseeUntracked = errors.New("reputation: endorsee has no reputation record")
	// ErrEndorseeOutranks indicates the endorsee holds a strictly higher score.
	ErrEndorseeOutranks = errors.New("reputation: cannot endorse a user with higher standing")
	// ErrAlreadyEndorsed indicates the endorsee already holds a valid endorsement.
	ErrAlreadyEndorsed = errors.New("reputation: user is already endorsed")
	// ErrEndorsementExists indicates this endorser already endorsed this user
	// before, including revoked edges. Re-endorsing is not allowed.
	ErrEndorsementExists = errors.New("reputation: already endorsed this user")
	// ErrUserNotFound indicates the target account does not exist.
	ErrUserNotFound = errors.New("reputation: user not found")
	// ErrNotBanned indicates an unban was requested for a user whose score
	// is not zero.
	ErrNotBanned = errors.New("reputation: user is not banned")
)

// IsValidation reports whether err is a pre-mutation validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidUserID) || errors.Is(err, ErrSelfEndorsement)
}

// IsPrecondition reports whether err is a violated business precondition.
func IsPrecondition(err error) bool {
	for _, candidate := range []error{
		ErrScoreTooLow,
		ErrEndorseeUntracked,
		ErrEndorseeOutranks,
		ErrAlreadyEndorsed,
		ErrEndorsementExists,
		ErrUserNotFound,
		ErrNotBanned,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
