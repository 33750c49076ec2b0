package workbook

import "github.com/rotisserie/eris"

// State is the learner's position in the workbook.
type State string

// Workbook states, in progression order.
const (
	StateChoosingClaim     State = "choosing_claim"
	StateEvidenceUnlocked  State = "evidence_unlocked"
	StateEvidenceApproved  State = "evidence_approved"
	StateReasoningUnlocked State = "reasoning_unlocked"
	StateReasoningApproved State = "reasoning_approved"
	StateSubmitted         State = "submitted"
)

// Sentinel errors for illegal actions. An action that returns one of these
// changed nothing.
var (
	ErrInvalidClaim = eris.New("workbook: invalid claim")
	ErrNoClaim      = eris.New("workbook: no claim selected")
	ErrStepLocked   = eris.New("workbook: step is approved and locked")
	ErrNotApproved  = eris.New("workbook: prerequisite step not approved")
	ErrBusy         = eris.New("workbook: evaluation in progress")
)

// IsIllegal reports whether err is one of the illegal-action sentinels
// other than ErrBusy.
func IsIllegal(err error) bool {
	for _, s := range []error{ErrInvalidClaim, ErrNoClaim, ErrStepLocked, ErrNotApproved} {
		if eris.Is(err, s) {
			return true
		}
	}
	return false
}
