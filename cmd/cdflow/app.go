package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/peteski22/cdflow/internal/config"
	"github.com/peteski22/cdflow/internal/donation"
	"github.com/peteski22/cdflow/internal/logging"
	"github.com/peteski22/cdflow/internal/nationbuilder"
	"github.com/peteski22/cdflow/internal/plugin"
	"github.com/peteski22/cdflow/internal/storage"
)

// app holds what every command that talks to NationBuilder needs.
type app struct {
	// awsCfg is loaded on first use, so runs without AWS storage need no credentials.
	awsCfg *aws.Config

	// in is where confirmation prompts are read from.
	in io.Reader

	logger *logging.Logger

	// out receives user facing output.
	out io.Writer

	settings *config.Settings
}

// newApp loads the configuration and sets up logging.
func newApp(opts *rootOptions, in io.Reader, out io.Writer) (*app, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	path := opts.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}

	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	consoleLevel := settings.Logging.ConsoleLevel
	if opts.logLevel != "" {
		consoleLevel = opts.logLevel
	}
	console, err := logging.ParseLevel(consoleLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	file, err := logging.ParseLevel(settings.Logging.FileLevel)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		ConsoleLevel: console,
		Dir:          settings.Paths.Logs,
		FileLevel:    file,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	slog.SetDefault(logger.Logger)

	logger.Debug("loaded config", "path", path, "nation", settings.NationBuilder.Slug)

	return &app{
		in:       in,
		logger:   logger,
		out:      out,
		settings: settings,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Close()
}

func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

// tokenStore returns the Secrets Manager store when a token secret is configured, else the
// local token file.
func (a *app) tokenStore(ctx context.Context) (nationbuilder.TokenStore, error) {
	slug := a.settings.NationBuilder.Slug

	if id := a.settings.Storage.TokenSecretID; id != "" {
		cfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewSecretTokenStore(secretsmanager.NewFromConfig(cfg), id, slug)
		if err != nil {
			return nil, fmt.Errorf("creating token store: %w", err)
		}
		return store, nil
	}

	store, err := storage.NewFileTokenStore(a.settings.Paths.Token, slug)
	if err != nil {
		return nil, fmt.Errorf("creating token store: %w", err)
	}
	return store, nil
}

// credentials returns the OAuth client id and secret. Values missing from the config file
// and environment are read from SSM Parameter Store.
func (a *app) credentials(ctx context.Context) (string, string, error) {
	nb := a.settings.NationBuilder
	if nb.ClientID != "" && nb.ClientSecret != "" {
		return nb.ClientID, nb.ClientSecret, nil
	}
	if nb.SSMParameterPrefix == "" {
		return "", "", errors.New("nationbuilder client_id and client_secret are required")
	}

	cfg, err := a.awsConfig(ctx)
	if err != nil {
		return "", "", err
	}
	params, err := storage.NewParameterCredentials(ssm.NewFromConfig(cfg), nb.SSMParameterPrefix)
	if err != nil {
		return "", "", err
	}
	id, secret, err := params.Credentials(ctx)
	if err != nil {
		return "", "", fmt.Errorf("reading client credentials: %w", err)
	}
	if nb.ClientID != "" {
		id = nb.ClientID
	}
	if nb.ClientSecret != "" {
		secret = nb.ClientSecret
	}
	return id, secret, nil
}

// nationBuilder creates an API client, running the browser authorization first when no
// refresh token is stored for the nation.
func (a *app) nationBuilder(ctx context.Context) (*nationbuilder.Client, error) {
	store, err := a.tokenStore(ctx)
	if err != nil {
		return nil, err
	}
	clientID, clientSecret, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := store.RefreshToken(ctx); err != nil {
		if !errors.Is(err, storage.ErrNoToken) {
			return nil, fmt.Errorf("reading refresh token: %w", err)
		}
		a.logger.Info("no refresh token stored, starting browser authorization", "reason", err)
		if err := runAuthFlow(ctx, a.out, a.authFlow(store, clientID, clientSecret)); err != nil {
			return nil, err
		}
	}

	client, err := nationbuilder.NewClient(nationbuilder.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Slug:         a.settings.NationBuilder.Slug,
		TokenStore:   store,
	})
	if err != nil {
		return nil, fmt.Errorf("creating NationBuilder client: %w", err)
	}
	return client, nil
}

func (a *app) authFlow(store nationbuilder.TokenStore, clientID, clientSecret string) authFlow {
	slug := a.settings.NationBuilder.Slug
	return authFlow{
		authorizeURL: nationbuilder.AuthorizeURL(slug),
		clientID:     clientID,
		clientSecret: clientSecret,
		openBrowser:  launchBrowser,
		port:         a.settings.NationBuilder.CallbackPort,
		store:        store,
		timeout:      authTimeout,
		tokenURL:     nationbuilder.TokenURL(slug),
	}
}

// ledger returns the DynamoDB import ledger, or nil when none is configured.
func (a *app) ledger(ctx context.Context) (*storage.ImportLedger, error) {
	table := a.settings.Storage.LedgerTable
	if table == "" {
		return nil, nil
	}
	cfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := storage.NewImportLedger(dynamodb.NewFromConfig(cfg), table, "", a.settings.NationBuilder.Slug)
	if err != nil {
		return nil, fmt.Errorf("creating import ledger: %w", err)
	}
	return ledger, nil
}

// archive returns the S3 artifact archive, or nil when no bucket is configured.
func (a *app) archive(ctx context.Context) (*storage.ArtifactArchive, error) {
	bucket := a.settings.Storage.S3Bucket
	if bucket == "" {
		return nil, nil
	}
	cfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	archive, err := storage.NewArtifactArchive(s3.NewFromConfig(cfg), bucket, a.settings.Storage.ArchivePrefix)
	if err != nil {
		return nil, fmt.Errorf("creating artifact archive: %w", err)
	}
	return archive, nil
}

// loadPlugins loads the plugin files of each adapter from <plugins>/<adapter>.
func (a *app) loadPlugins(adapters ...donation.Adapter) (*plugin.Registry, *plugin.Loader, error) {
	registry := plugin.NewRegistry()
	loader, err := plugin.NewLoader(plugin.LoaderConfig{
		Logger:   a.logger.Logger,
		Registry: registry,
	})
	if err != nil {
		return nil, nil, err
	}

	for _, adapter := range adapters {
		n := loader.Load(adapter.Name(), pluginDir(a.settings.Paths.Plugins, adapter))
		a.logger.Debug("plugins loaded", "adapter", adapter.Name(), "files", n)
	}
	return registry, loader, nil
}

func pluginDir(root string, adapter donation.Adapter) string {
	return filepath.Join(root, strings.ToLower(adapter.Name()))
}
