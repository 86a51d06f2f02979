package producer

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/metrics"
)

// Validator inspects the cycle's pending read state before it is
// announced. Returning an error vetoes the cycle.
type Validator interface {
	Validate(rs *ReadState) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(rs *ReadState) error

func (f ValidatorFunc) Validate(rs *ReadState) error {
	return f(rs)
}

// runValidators runs every validator against the pending state. All of
// them run even after one fails; the collected failures become a single
// ValidationError in encounter order.
func (p *Producer) runValidators(rs *ReadState) error {
	var failures []error
	for i, v := range p.validators {
		if err := safeValidate(v, rs); err != nil {
			failures = append(failures, err)
			metrics.ValidationFailuresTotal.Inc()
			p.logger.Warn().
				Int("validator", i).
				Stringer("version", rs.Version()).
				Err(err).
				Msg("Validator failed")
		}
	}
	if len(failures) > 0 {
		return &ValidationError{Version: rs.Version(), Failures: failures}
	}
	return nil
}

// safeValidate converts a validator panic into an error so one misbehaved
// validator cannot skip the rest.
func safeValidate(v Validator, rs *ReadState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panicked: %v", r)
		}
	}()
	return v.Validate(rs)
}
