package speech

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/plugin"
)

// PluginAnnouncer sends an announce request to plugins.
type PluginAnnouncer struct {
	plugins  []*plugin.Plugin
	executor *plugin.Executor
	logger   zerolog.Logger
}

// NewPluginAnnouncer selects the named plugin from manager, or every plugin
// declaring the announce action when name is empty.
func NewPluginAnnouncer(manager *plugin.Manager, executor *plugin.Executor, name string) (*PluginAnnouncer, error) {
	var plugins []*plugin.Plugin
	if name != "" {
		p, err := manager.Get(name)
		if err != nil {
			return nil, err
		}
		plugins = []*plugin.Plugin{p}
	} else {
		plugins = manager.ForAction(plugin.ActionAnnounce)
	}
	if len(plugins) == 0 {
		return nil, plugin.ErrPluginNotFound
	}
	return &PluginAnnouncer{
		plugins:  plugins,
		executor: executor,
		logger:   observability.Component("speech"),
	}, nil
}

// Plugins returns the selected plugins.
func (p *PluginAnnouncer) Plugins() []*plugin.Plugin {
	return p.plugins
}

// Announce runs each selected plugin in turn.
func (p *PluginAnnouncer) Announce(label string) {
	req := &plugin.Request{Action: plugin.ActionAnnounce, Sign: label}
	for _, pl := range p.plugins {
		resp, err := p.executor.Execute(context.Background(), pl, req)
		switch {
		case err != nil:
			p.logger.Warn().Err(err).Str("plugin", pl.Manifest.Name).Str("sign", label).Msg("plugin failed")
		case !resp.Success:
			p.logger.Warn().Str("plugin", pl.Manifest.Name).Str("sign", label).Str("error", resp.Error).Msg("plugin reported failure")
		default:
			p.logger.Debug().Str("plugin", pl.Manifest.Name).Str("sign", label).Msg("plugin announced")
		}
	}
}
