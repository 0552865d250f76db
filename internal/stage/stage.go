package stage

import (
	"context"

	"papercast/internal/jobs"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *jobs.Job) error
	Execute(context.Context, *jobs.Job) error
	HealthCheck(context.Context) Health
}
