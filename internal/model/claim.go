package model

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Claim is the learner's position on the prediction under discussion.
type Claim string

// Claim values. ClaimNone means no position has been chosen yet.
const (
	ClaimNone     Claim = ""
	ClaimAgree    Claim = "agree"
	ClaimDisagree Claim = "disagree"
)

// Claims lists the concrete claim sides in display order.
var Claims = []Claim{ClaimAgree, ClaimDisagree}

// ParseClaim converts user input into a Claim. The empty string and "none"
// map to ClaimNone.
func ParseClaim(s string) (Claim, bool) {
	switch Claim(s) {
	case ClaimAgree, ClaimDisagree:
		return Claim(s), true
	case ClaimNone, "none":
		return ClaimNone, true
	default:
		return ClaimNone, false
	}
}

// IsConcrete reports whether c is Agree or Disagree.
func (c Claim) IsConcrete() bool {
	return c == ClaimAgree || c == ClaimDisagree
}

// Other returns the opposite concrete claim, or ClaimNone.
func (c Claim) Other() Claim {
	switch c {
	case ClaimAgree:
		return ClaimDisagree
	case ClaimDisagree:
		return ClaimAgree
	default:
		return ClaimNone
	}
}

// Display returns the capitalized claim name shown to learners.
func (c Claim) Display() string {
	if c == ClaimNone {
		return "None"
	}
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English).String(string(c))
}
