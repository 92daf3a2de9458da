package cmd

import (
	"github.com/grovetools/tether/cli"
	"github.com/grovetools/tether/config"
	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/api"
	"github.com/grovetools/tether/pkg/credstore"
	"github.com/grovetools/tether/pkg/gateway"
	"github.com/grovetools/tether/pkg/host"
	"github.com/grovetools/tether/pkg/notify"
	"github.com/grovetools/tether/pkg/paths"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/grovetools/tether/pkg/session"
	"github.com/grovetools/tether/state"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app bundles the services a command needs. It is built once per invocation.
type app struct {
	cfg        *config.Config
	store      credstore.Store
	client     *api.Client
	sessions   *session.Manager
	gateway    *gateway.Gateway
	thresholds *proximity.ThresholdStore
	local      *state.File
	logger     *logrus.Entry
	opts       cli.CommandOptions
}

// newApp loads configuration and wires the session and gateway layers.
func newApp(cmd *cobra.Command) (*app, error) {
	opts := cli.GetOptions(cmd)
	logging.ConfigureColor(opts.NoColor)
	logger := cli.GetLogger(cmd)

	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		logger.WithError(err).Debug("Failed to create state directories")
	}

	store, err := credstore.Open(cfg.Store)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to open credential store")
	}

	local := state.Default()
	thresholds, err := proximity.NewThresholdStore(proximity.Thresholds{
		Safe:    cfg.Thresholds.Safe,
		Warning: cfg.Thresholds.Warning,
		Danger:  cfg.Thresholds.Danger,
	})
	if err != nil {
		return nil, err
	}
	var confirmed proximity.Thresholds
	if ok, err := local.Decode(state.KeyThresholds, &confirmed); err != nil {
		logger.WithError(err).Warn("Ignoring unreadable local state")
	} else if ok {
		if err := thresholds.Set(confirmed); err != nil {
			logger.WithError(err).Debug("Ignoring invalid stored thresholds")
		}
	}

	client := api.NewClient(cfg.Server.BaseURL, cfg.Server.RequestTimeout.Std(),
		api.WithLogger(logger.WithField("component", "api")))
	sessions := session.NewManager(client, store, session.WithLogger(logger.WithField("component", "session")))

	return &app{
		cfg:        cfg,
		store:      store,
		client:     client,
		sessions:   sessions,
		gateway:    gateway.New(client, sessions, logger.WithField("component", "gateway")),
		thresholds: thresholds,
		local:      local,
		logger:     logger,
		opts:       opts,
	}, nil
}

// requireServer fails early when no backend is configured.
func (a *app) requireServer() error {
	if a.cfg.Server.BaseURL == "" {
		return errors.New(errors.ErrCodeConfigValidation, "server.base_url is not configured").
			WithDetail("field", "server.base_url")
	}
	return nil
}

// hostClient returns the host operations client, routed through the gateway.
func (a *app) hostClient() *host.Client {
	return host.NewClient(a.gateway, a.thresholds, a.logger.WithField("component", "host"))
}

// journalPath returns where departure alerts are recorded, or "" when disabled.
func (a *app) journalPath() string {
	if a.cfg.Alerts.Disabled {
		return ""
	}
	if a.cfg.Alerts.Journal != "" {
		return a.cfg.Alerts.Journal
	}
	return paths.AlertsDBPath()
}

// openJournal opens the alert journal, or returns nil when it is disabled.
func (a *app) openJournal() (*notify.Journal, error) {
	path := a.journalPath()
	if path == "" {
		return nil, nil
	}
	return notify.OpenJournal(path)
}

// rememberThresholds records the active thresholds as confirmed by the server.
func (a *app) rememberThresholds() {
	if err := a.local.Set(state.KeyThresholds, a.thresholds.Load()); err != nil {
		a.logger.WithError(err).Warn("Failed to save thresholds to local state")
	}
}
