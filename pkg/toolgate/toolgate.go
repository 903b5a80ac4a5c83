// Package toolgate is the embedding surface of the governance layer. A
// host application (an assistant runtime, a test harness) constructs one
// Runtime from its configuration and a tool transport, then talks to the
// Selector per turn and the Gateway per call.
package toolgate

import (
	"context"
	"fmt"

	"toolgate/internal/blobstore"
	"toolgate/internal/catalog"
	"toolgate/internal/config"
	"toolgate/internal/embedding"
	"toolgate/internal/gateway"
	"toolgate/internal/secrets"
	"toolgate/internal/selector"
	"toolgate/internal/telemetry"
)

// Runtime wires the full stack: embedder, catalog index, selector,
// credential store, blob store, gateway, and trace export. Dispatches
// feed back into the selector's domain affinity automatically.
type Runtime struct {
	catalog  *catalog.Index
	selector *selector.Selector
	gateway  *gateway.Gateway

	secretStore  *secrets.SQLiteStore
	shutdownOTel func(context.Context) error
}

// Options tune Runtime construction beyond the config file.
type Options struct {
	// Auditor replaces the default log-line audit sink.
	Auditor gateway.Auditor
	// SecretsKey overrides TOOLGATE_SECRETS_KEY. Leave nil to read the
	// environment; if neither is present the credential store is skipped
	// and secret injection degrades to a no-op.
	SecretsKey *secrets.Key
}

// New builds a Runtime from configuration. The transport is the host's
// connection to its tool backends; everything else comes from cfg.
func New(ctx context.Context, cfg *config.Config, transport gateway.Transport, opts Options) (*Runtime, error) {
	embedder, err := embedding.NewFromConfig(cfg.Embedding.Provider, cfg.Embedding.APIKey,
		cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	index := catalog.New(embedder)

	key := opts.SecretsKey
	if key == nil {
		key, _ = secrets.KeyFromEnv()
	}
	var store *secrets.SQLiteStore
	if key != nil && cfg.Secrets.DatabaseURL != "" {
		store, err = secrets.OpenSQLite(cfg.Secrets.DatabaseURL, key)
		if err != nil {
			return nil, err
		}
	}

	blobs, err := blobstore.NewFileStore(cfg.BlobStore.Dir)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	sel := selector.New(index, embedder, cfg.Routing)

	gwOpts := []gateway.Option{gateway.WithDispatchHook(sel.NoteInvocation)}
	if opts.Auditor != nil {
		gwOpts = append(gwOpts, gateway.WithAuditor(opts.Auditor))
	}
	var secretStore secrets.Store
	if store != nil {
		secretStore = store
	}
	gw := gateway.New(index, transport, secretStore, key, blobs, cfg, gwOpts...)
	if err := gw.StartSweeper(); err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	return &Runtime{
		catalog:      index,
		selector:     sel,
		gateway:      gw,
		secretStore:  store,
		shutdownOTel: shutdown,
	}, nil
}

// Catalog is the live registry; plugin lifecycle hooks register and
// remove entries through it.
func (r *Runtime) Catalog() *catalog.Index { return r.catalog }

// Selector ranks the catalog per turn.
func (r *Runtime) Selector() *selector.Selector { return r.selector }

// Gateway executes calls.
func (r *Runtime) Gateway() *gateway.Gateway { return r.gateway }

// Secrets exposes the credential store for the plugin-management surface,
// or nil when no store key was available.
func (r *Runtime) Secrets() *secrets.SQLiteStore { return r.secretStore }

// Close stops the cache sweeper, flushes pending spans, and closes the
// credential store.
func (r *Runtime) Close(ctx context.Context) error {
	r.gateway.Close()
	var firstErr error
	if err := r.shutdownOTel(ctx); err != nil {
		firstErr = err
	}
	if r.secretStore != nil {
		if err := r.secretStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
