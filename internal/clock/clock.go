package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so services and jobs can be driven by tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
