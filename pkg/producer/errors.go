package producer

import (
	"fmt"
	"strings"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/version"
)

// ChecksumError reports an integrity round-trip whose checksum did not
// match. The cycle that produced it always rolls back.
type ChecksumError struct {
	Kind blob.Kind
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("integrity: %s round-trip checksum mismatch", e.Kind)
}

// ValidationError aggregates every validator failure of a cycle. All
// validators run even after one fails; the first failure is the primary
// cause. This is the only error RunCycle returns to its caller.
type ValidationError struct {
	Version  version.Version
	Failures []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation of version %s failed (%d): %s",
		e.Version, len(e.Failures), strings.Join(msgs, "; "))
}

// Primary returns the first failure encountered.
func (e *ValidationError) Primary() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0]
}

func (e *ValidationError) Unwrap() []error {
	return e.Failures
}

// RestoreMismatchError reports a restore whose retrieved version did not
// match the requested one. The producer's state is unchanged.
type RestoreMismatchError struct {
	Desired version.Version
	Reached version.Version
}

func (e *RestoreMismatchError) Error() string {
	return fmt.Sprintf("restore: requested version %s but reached %s", e.Desired, e.Reached)
}
