package attendance

import (
	"github.com/smallbiznis/attendly/internal/attendance/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("attendance.directory",
	fx.Provide(repository.Provide),
)
