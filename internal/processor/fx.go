package processor

import (
	"github.com/smallbiznis/attendly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("processor.client",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Client {
		return NewHTTPClient(HTTPClientConfig{
			BaseURL: cfg.ProcessorBaseURL,
			APIKey:  cfg.ProcessorAPIKey,
			Timeout: cfg.ProcessorTimeout,
		}, log)
	}),
)
