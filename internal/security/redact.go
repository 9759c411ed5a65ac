package security

import (
	"sort"
	"strings"

	"github.com/yoanbernabeu/provisioner/internal/constants"
)

// Redactor masks known secret values in text bound for output, logs or
// traces.
type Redactor struct {
	secrets []string
	mask    string
}

// maskCandidates are tried in order. A mask shares no character with any
// secret, so masked text can never spell one out again.
var maskCandidates = []string{constants.Mask, "####", "xxxx", "[redacted]"}

// NewRedactor creates a Redactor for the given secrets. Empty values are
// ignored.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{mask: constants.Mask}
	r.Add(secrets...)
	return r
}

// Add registers more secrets.
func (r *Redactor) Add(secrets ...string) {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		r.secrets = append(r.secrets, s)
	}
	// Longest first so a secret containing another one is masked whole.
	sort.Slice(r.secrets, func(i, j int) bool {
		return len(r.secrets[i]) > len(r.secrets[j])
	})
	r.mask = r.pickMask()
}

// pickMask returns the first candidate disjoint from every secret, or ""
// when none is.
func (r *Redactor) pickMask() string {
	for _, mask := range maskCandidates {
		disjoint := true
		for _, secret := range r.secrets {
			if strings.ContainsAny(secret, mask) {
				disjoint = false
				break
			}
		}
		if disjoint {
			return mask
		}
	}
	return ""
}

// Redact returns s with every registered secret replaced by the mask.
// Captured command output goes through Redact only, so it stays verbatim
// apart from the secrets themselves.
func (r *Redactor) Redact(s string) string {
	if r == nil || s == "" {
		return s
	}
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, r.mask)
	}
	if r.mask != "" {
		return s
	}
	// No usable mask: delete until the text no longer heals into a secret.
	// Every pass shortens s, so this ends.
	for r.leaks(s) {
		for _, secret := range r.secrets {
			s = strings.ReplaceAll(s, secret, "")
		}
	}
	return s
}

func (r *Redactor) leaks(s string) bool {
	for _, secret := range r.secrets {
		if strings.Contains(s, secret) {
			return true
		}
	}
	return false
}

// RedactCommand masks registered secrets and sensitive assignments in a
// command line before it is printed or logged.
func (r *Redactor) RedactCommand(cmd string) string {
	return SanitizeCommandForLog(r.Redact(cmd))
}
