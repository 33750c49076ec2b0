package evaluator

import (
	"errors"
	"fmt"

	"github.com/sells-group/argument-tutor/internal/model"
)

// Kind classifies why an evaluation failed.
type Kind string

const (
	// KindConfiguration means the request could not be built: no prompt for
	// the step, or missing provider credentials. No remote call was made.
	KindConfiguration Kind = "configuration"
	// KindTransient means every attempt failed with a retryable status.
	KindTransient Kind = "transient"
	// KindRemote is a permanent remote failure (auth, bad request, network).
	KindRemote Kind = "remote"
	// KindParse means the response held no decodable JSON object.
	KindParse Kind = "parse"
	// KindContract means the response decoded but its label is not allowed
	// for the step.
	KindContract Kind = "contract"
)

// Error is returned by Evaluate. The workbook state is never changed by a
// failed evaluation, so the caller may simply try again.
type Error struct {
	Kind     Kind
	Step     model.Step
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("evaluator: %s %s failure after %d attempt(s): %v", e.Step, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("evaluator: %s %s failure: %v", e.Step, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of an evaluation error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func isKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// IsConfiguration reports a request that failed before any remote call.
func IsConfiguration(err error) bool { return isKind(err, KindConfiguration) }

// IsTransient reports an evaluation that ran out of retries.
func IsTransient(err error) bool { return isKind(err, KindTransient) }

// IsRemote reports a permanent remote failure.
func IsRemote(err error) bool { return isKind(err, KindRemote) }

// IsParse reports an unparsable evaluator response.
func IsParse(err error) bool { return isKind(err, KindParse) }

// IsContract reports a response whose label is outside the step's set.
func IsContract(err error) bool { return isKind(err, KindContract) }
