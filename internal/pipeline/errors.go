package pipeline

import (
	"fmt"
)

// ValidationError reports the first element whose computed value is not the
// square of its source.
type ValidationError struct {
	Mode      Mode
	Strategy  string
	Iteration int
	Index     int
	Source    float32
	Expected  float32
	Got       float32
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s/%s, iteration %d): dst[%d] = %g, want %g (src %g)",
		e.Mode, e.Strategy, e.Iteration, e.Index, e.Got, e.Expected, e.Source)
}
