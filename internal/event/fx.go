package event

import (
	"github.com/smallbiznis/attendly/internal/event/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("event.directory",
	fx.Provide(repository.Provide),
)
