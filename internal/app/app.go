// Package app wires a PDP from configuration: the decision engine, the
// entity provider and the audit trail.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	"github.com/cedar-policy/cedar-go"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/config"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/audit"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/engine"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/engine/avp"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/engine/local"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pdp"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/store"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/store/dynamostore"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/store/redisstore"
)

// ErrReadOnlyProvider is returned by Seed when the provider cannot be written.
var ErrReadOnlyProvider = errors.New("entity provider is read-only")

// App holds the wired components. Close releases store connections.
type App struct {
	PDP      *pdp.PDP
	Engine   engine.Engine
	Provider pip.Provider
	Schema   *pip.Schema
	Logger   *slog.Logger

	// Writer is the keyed store behind Provider, nil for read-only providers.
	Writer pip.EntityWriter

	awsCfg  *aws.Config
	closers []io.Closer
}

// NewLogger returns the slog logger selected by cfg.Log, writing to w.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// New builds an App. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Logger: logger}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	var err error
	if a.Schema, err = loadSchema(cfg); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	if a.Engine, err = a.newEngine(ctx, cfg); err != nil {
		return err
	}
	if a.Provider, err = a.newProvider(ctx, cfg); err != nil {
		return err
	}
	auditLog, err := a.newAudit(cfg)
	if err != nil {
		return err
	}

	a.PDP, err = pdp.New(pdp.Config{
		Logger:      a.Logger,
		Engine:      a.Engine,
		Provider:    a.Provider,
		Audit:       auditLog,
		ActionType:  engine.ActionType(a.Schema.Namespace()),
		PageSize:    cfg.Search.PageSize,
		Concurrency: cfg.Search.Concurrency,
	})
	return err
}

// loadSchema prefers an explicit path, then the entities directory, then the
// policy directory and its parent.
func loadSchema(cfg *config.Config) (*pip.Schema, error) {
	if cfg.Schema != "" {
		return pip.LoadSchemaFile(cfg.Schema)
	}
	var dirs []string
	if cfg.EntitiesKind() == config.EntitiesMemory {
		dirs = append(dirs, cfg.EntitiesDir())
	}
	if cfg.EngineKind() == config.EngineLocal {
		dirs = append(dirs, cfg.PolicyStoreID, filepath.Dir(cfg.PolicyStoreID))
	}
	for _, dir := range dirs {
		s, err := pip.LoadSchemaDir(dir)
		if err != nil || s != nil {
			return s, err
		}
	}
	return nil, nil
}

func (a *App) awsConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	a.awsCfg = &awsCfg
	return awsCfg, nil
}

func (a *App) newEngine(ctx context.Context, cfg *config.Config) (engine.Engine, error) {
	if cfg.EngineKind() == config.EngineLocal {
		ps, err := local.LoadDir(cfg.PolicyStoreID)
		if err != nil {
			return nil, err
		}
		a.Logger.Info("loaded local policies", "dir", cfg.PolicyStoreID)
		return local.New(local.Config{Logger: a.Logger, Policies: ps})
	}

	awsCfg, err := a.awsConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("using verified permissions", "policy_store_id", cfg.PolicyStoreID)
	return avp.New(verifiedpermissions.NewFromConfig(awsCfg), avp.Config{
		Logger:        a.Logger,
		PolicyStoreID: cfg.PolicyStoreID,
	})
}

func (a *App) storePIP(ks pip.KeyedStore, cfg *config.Config) *pip.StorePIP {
	return pip.NewStorePIP(ks,
		pip.WithParentHops(cfg.ParentHops),
		pip.WithSchema(a.Schema),
	)
}

func (a *App) newProvider(ctx context.Context, cfg *config.Config) (pip.Provider, error) {
	switch cfg.EntitiesKind() {
	case config.EntitiesNone:
		a.Logger.Warn("no entity provider configured, only inline entities are resolved")
		return nil, nil

	case config.EntitiesMemory:
		path := cfg.EntitiesFile(pip.EntitiesFileName)
		entities, err := pip.LoadEntitiesFile(path)
		if err != nil {
			return nil, err
		}
		a.Logger.Info("loaded entities", "path", path, "count", len(entities))
		return pip.NewMemoryPIP(entities, a.Schema), nil

	case config.EntitiesSQLite:
		s, err := store.Open(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("open entity store: %w", err)
		}
		a.closers = append(a.closers, s)
		a.Writer = s
		return a.storePIP(s, cfg), nil

	case config.EntitiesRedis:
		s, err := redisstore.Open(ctx, cfg.Entities)
		if err != nil {
			return nil, fmt.Errorf("open entity store: %w", err)
		}
		a.closers = append(a.closers, s)
		a.Writer = s
		return a.storePIP(s, cfg), nil
	}

	awsCfg, err := a.awsConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := dynamostore.New(dynamodb.NewFromConfig(awsCfg), cfg.Entities)
	a.Writer = s
	return a.storePIP(s, cfg), nil
}

func (a *App) newAudit(cfg *config.Config) (pdp.AuditLogger, error) {
	decisions := pdp.NewSlogAuditLogger(a.Logger)
	if cfg.Audit.DB == "" && cfg.Audit.Syslog == "" {
		return decisions, nil
	}
	loggers := []pdp.AuditLogger{decisions}
	if cfg.Audit.DB != "" {
		s, err := store.Open(cfg.Audit.DB)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		a.closers = append(a.closers, s)
		loggers = append(loggers, pdp.NewStoreAuditLogger(s))
	}
	if cfg.Audit.Syslog != "" {
		w, err := audit.NewSyslogWriter(audit.SyslogConfig{SocketPath: cfg.Audit.Syslog})
		if err != nil {
			// The other destinations still record decisions.
			a.Logger.Warn("syslog audit unavailable", "socket", cfg.Audit.Syslog, "error", err)
		} else {
			a.closers = append(a.closers, w)
			loggers = append(loggers, w)
		}
	}
	return pdp.NewMultiAuditLogger(loggers...), nil
}

// Seed writes entities into the configured keyed store.
func (a *App) Seed(ctx context.Context, entities []cedar.Entity) error {
	if a.Writer == nil {
		return ErrReadOnlyProvider
	}
	return a.Writer.PutEntities(ctx, entities)
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
