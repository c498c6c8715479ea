package di

import (
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands/bus"
	"github.com/MartinFunctu/lifeos/application/ports"
	querybus "github.com/MartinFunctu/lifeos/application/queries/bus"
	"github.com/MartinFunctu/lifeos/infrastructure/config"
	"github.com/MartinFunctu/lifeos/interfaces/http/rest"
	"github.com/MartinFunctu/lifeos/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	LogLevel   zap.AtomicLevel
	Store      Store
	Repository ports.GraphRepository
	EventBus   ports.EventBus
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Metrics    *observability.Collector
	Limiters   *RateLimiters
	Router     *rest.Router
}

// WatchConfig starts hot reloading of the config file. Only the log level
// and the rate limits change at runtime; everything else needs a restart.
func (c *Container) WatchConfig() (*config.Watcher, error) {
	w, err := config.NewWatcher(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(next *config.Config) {
		c.Limiters.Apply(next.RateLimitRPM, next.RateLimitBurst)
		if err := c.LogLevel.UnmarshalText([]byte(next.LogLevel)); err != nil {
			c.Logger.Warn("Ignoring invalid log level", zap.String("level", next.LogLevel))
		}
	})
	return w, nil
}
