package commands

import (
	"io"
	"net/http"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/aligner"
	"github.com/askiada/paladin-plugins/internal/config"
	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/filestore"
	"github.com/askiada/paladin-plugins/internal/logging"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/report"
)

// app owns what a run opens and must release.
type app struct {
	logger    *zap.Logger
	resources *resources.Resources
}

func setup(cfg *config.Config, stderr io.Writer) (*app, error) {
	logger, err := logging.NewWithWriter(cfg.Logging.Level, cfg.Logging.Format, stderr)
	if err != nil {
		return nil, err
	}

	client := &http.Client{}
	files, err := filestore.New(
		config.ExpandHome(cfg.Store.CacheDir),
		config.ExpandHome(cfg.Store.OutputDir),
		cfg.Store.TempPrefix,
		cfg.Store.ExpireDays,
		filestore.WithHTTPClient(client),
		filestore.WithLogger(logger.Named("filestore")),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		logger: logger,
		resources: &resources.Resources{
			Config:  cfg,
			Files:   files,
			Stores:  datastore.NewRegistry(),
			Reports: report.NewCache(),
			Aligner: aligner.NewExec(cfg.Aligner.Binary, logger.Named("aligner")),
			HTTP:    client,
		},
	}, nil
}

func (a *app) close() error {
	err := multierr.Combine(
		a.resources.Stores.Close(),
		a.resources.Files.Close(),
	)
	_ = a.logger.Sync()

	return err
}
