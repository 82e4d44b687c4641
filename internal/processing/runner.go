package processing

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/kdimtricp/arcwatch/internal/logging"
)

// Runner executes one unit of work, turning a panic into an error.
type Runner interface {
	Run(ctx context.Context, process func(ctx context.Context) error) error
}

type runner struct{}

func NewRunner() Runner {
	return runner{}
}

func (runner) Run(ctx context.Context, process func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic while processing")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return process(ctx)
}
