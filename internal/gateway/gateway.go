package gateway

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"toolgate/internal/blobstore"
	"toolgate/internal/catalog"
	"toolgate/internal/config"
	"toolgate/internal/logging"
	"toolgate/internal/secrets"
	"toolgate/pkg/models"
)

// Gateway executes one tool call safely: rate check, cache check, secret
// injection, bounded dispatch, size check, cache write, in that order,
// with an audit record emitted whichever way the call ends.
//
// Per-tool state (bucket, cache) is created lazily and locked per tool; a
// saturated tool never blocks calls to an unrelated one.
type Gateway struct {
	index     *catalog.Index
	transport Transport
	store     secrets.Store
	storeKey  *secrets.Key
	blobs     blobstore.Store
	auditor   Auditor
	cfg       *config.Config
	tracer    trace.Tracer

	// onDispatch is notified after every real dispatch; the selector
	// hangs its domain-affinity tracking off it.
	onDispatch func(toolID string)

	mu    sync.RWMutex
	tools map[string]*toolState

	sweeper *cron.Cron
}

type toolState struct {
	cfg     config.ToolConfig
	limiter *limiter
	cache   *resultCache // nil when cache_ttl is 0
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithAuditor replaces the default log-line auditor.
func WithAuditor(a Auditor) Option {
	return func(g *Gateway) { g.auditor = a }
}

// WithDispatchHook registers a callback invoked with the tool id after
// every dispatch that reached the transport.
func WithDispatchHook(fn func(toolID string)) Option {
	return func(g *Gateway) { g.onDispatch = fn }
}

// New wires a gateway. store and storeKey may be nil in deployments with
// no credential store; secret injection then becomes a no-op.
func New(index *catalog.Index, transport Transport, store secrets.Store, storeKey *secrets.Key,
	blobs blobstore.Store, cfg *config.Config, opts ...Option) *Gateway {
	g := &Gateway{
		index:     index,
		transport: transport,
		store:     store,
		storeKey:  storeKey,
		blobs:     blobs,
		auditor:   LogAuditor{},
		cfg:       cfg,
		tracer:    otel.Tracer("toolgate/gateway"),
		tools:     make(map[string]*toolState),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// StartSweeper schedules the background purge of expired cache entries on
// the configured cron expression. Expiry stays lazily checked on read, so
// running without a sweeper is correct, just less tidy.
func (g *Gateway) StartSweeper() error {
	if g.cfg.Gateway.SweepSchedule == "" {
		return nil
	}
	g.sweeper = cron.New()
	_, err := g.sweeper.AddFunc(g.cfg.Gateway.SweepSchedule, g.sweepCaches)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", g.cfg.Gateway.SweepSchedule, err)
	}
	g.sweeper.Start()
	return nil
}

// Close stops the sweeper if one is running.
func (g *Gateway) Close() {
	if g.sweeper != nil {
		g.sweeper.Stop()
	}
}

func (g *Gateway) sweepCaches() {
	now := time.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id, st := range g.tools {
		if st.cache == nil {
			continue
		}
		if removed := st.cache.sweep(now); removed > 0 {
			logging.Debug("gateway: swept %d expired cache entries for %s", removed, id)
		}
	}
}

// Invoke runs one tool call for the given caller. A non-nil error is
// terminal (unknown tool, permission denied, malformed arguments) and
// should not be retried; every transient condition comes back as a
// structured Result instead.
func (g *Gateway) Invoke(ctx context.Context, toolID string, args map[string]any, caller models.CallerIdentity) (*Result, error) {
	started := time.Now()
	rec := models.CallRecord{
		ID:        newCallID(started),
		ToolID:    toolID,
		CallerID:  caller.UserID,
		StartedAt: started,
	}
	defer func() {
		rec.Latency = time.Since(started)
		g.auditor.Record(rec)
	}()

	tool, ok := g.index.Tool(toolID)
	if !ok {
		rec.Status = models.CallStatusBadRequest
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, toolID)
	}
	if tool.RequiredRole > caller.Role {
		rec.Status = models.CallStatusDenied
		return nil, fmt.Errorf("%w: tool %s requires role %s, caller has %s",
			ErrPermissionDenied, toolID, tool.RequiredRole, caller.Role)
	}

	state := g.toolState(toolID)

	if err := g.validateArgs(tool, args, state.cfg.SecretKeys); err != nil {
		rec.Status = models.CallStatusBadRequest
		return nil, err
	}

	// Rate check. Non-blocking: an empty bucket turns into a structured
	// retry hint, never a stall of the reasoning loop.
	if ok, retryAfter := state.limiter.allow(started); !ok {
		rec.Status = models.CallStatusRateLimited
		return rateLimitedResult(toolID, retryAfter), nil
	}

	// The sanitized cache key is derived exactly once, before secrets
	// exist in this call, and reused for the write below. Injection can
	// never contaminate it.
	var key string
	if state.cache != nil {
		var err error
		key, err = cacheKey(toolID, args, state.cfg.SecretKeys)
		if err != nil {
			rec.Status = models.CallStatusBadRequest
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		if payload, hit := state.cache.get(key, started); hit {
			rec.Status = models.CallStatusCached
			return &Result{Status: models.CallStatusCached, Content: string(payload), Cached: true}, nil
		}
	}

	merged, injected, plaintexts := g.injectSecrets(ctx, caller, tool, args, state.cfg.SecretKeys)
	rec.InjectedKeys = injected

	payload, result, err := g.dispatch(ctx, tool, state, merged)
	if err != nil {
		rec.Status = models.CallStatusFailed
		return transportFailureResult(toolID, err), nil
	}
	if result.IsError {
		rec.Status = models.CallStatusFailed
		return transportFailureResult(toolID, fmt.Errorf("%s", resultError(result))), nil
	}

	if g.onDispatch != nil {
		g.onDispatch(toolID)
	}

	tainted := containsAny(payload, plaintexts)
	if tainted {
		logging.Debug("gateway: result of %s carries injected secret material, cache write skipped", toolID)
	}

	if len(payload) > g.cfg.Gateway.LargeResponseThreshold {
		return g.offload(ctx, &rec, toolID, payload)
	}

	// Cache write: only live, secret-free results, and only after a
	// dispatch that actually completed.
	if state.cache != nil && !tainted {
		state.cache.put(key, payload, time.Now())
	}

	rec.Status = models.CallStatusOK
	return &Result{Status: models.CallStatusOK, Content: string(payload)}, nil
}

// dispatch runs the transport call with the tool's timeout bound.
func (g *Gateway) dispatch(ctx context.Context, tool *models.ToolDescriptor, state *toolState, args map[string]any) ([]byte, *mcp.CallToolResult, error) {
	timeout := state.cfg.Timeout
	if timeout <= 0 {
		timeout = g.cfg.Gateway.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx, span := g.tracer.Start(callCtx, "gateway.dispatch",
		trace.WithAttributes(
			attribute.String("tool.id", tool.ID),
			attribute.String("tool.domain", tool.Domain),
		))
	defer span.End()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool.ID
	req.Params.Arguments = args

	result, err := g.transport.CallTool(callCtx, req)
	if err != nil {
		span.SetAttributes(attribute.Bool("tool.error", true))
		return nil, nil, err
	}

	payload, err := flattenResult(result)
	if err != nil {
		return nil, nil, err
	}
	return payload, result, nil
}

// offload writes an oversized payload to blob storage and returns the
// preview alert. When the store is down the call degrades to a truncated
// inline result instead of failing.
func (g *Gateway) offload(ctx context.Context, rec *models.CallRecord, toolID string, payload []byte) (*Result, error) {
	preview := buildPreview(payload, g.cfg.Gateway.PreviewItems, 1024)

	ref, err := g.blobs.Write(ctx, payload)
	if err != nil {
		logging.Error("gateway: offload of %s result failed, returning truncated inline: %v", toolID, err)
		content, _ := truncateInline(payload, g.cfg.Gateway.LargeResponseThreshold)
		rec.Status = models.CallStatusOK
		return &Result{
			Status:    models.CallStatusOK,
			Content:   content,
			Truncated: true,
			Message:   fmt.Sprintf("result was truncated to %d bytes because offload storage is unavailable", g.cfg.Gateway.LargeResponseThreshold),
		}, nil
	}

	rec.Status = models.CallStatusOffloaded
	return offloadedResult(ref, preview, len(payload)), nil
}

// injectSecrets late-binds the caller's credentials into the arguments.
// Only argument names declared as secret keys in the tool's config are
// injectable, which is also what keeps them out of the cache key. Store
// failures and missing keys degrade to dispatching without the secret.
func (g *Gateway) injectSecrets(ctx context.Context, caller models.CallerIdentity, tool *models.ToolDescriptor,
	args map[string]any, secretKeys []string) (merged map[string]any, injected []string, plaintexts [][]byte) {
	merged = make(map[string]any, len(args)+len(secretKeys))
	for k, v := range args {
		merged[k] = v
	}
	if g.store == nil || g.storeKey == nil || len(secretKeys) == 0 {
		return merged, nil, nil
	}

	records, err := g.store.ResolveSecrets(ctx, caller.UserID, pluginOf(tool.ID))
	if err != nil {
		logging.Error("gateway: secret resolution for %s failed, dispatching without credentials: %v", tool.ID, err)
		return merged, nil, nil
	}

	allowed := make(map[string]bool, len(secretKeys))
	for _, k := range secretKeys {
		allowed[k] = true
	}
	for _, recSecret := range records {
		if !allowed[recSecret.Key] {
			continue
		}
		plaintext, err := secrets.Decrypt(recSecret, g.storeKey)
		if err != nil {
			logging.Error("gateway: decrypting secret %s for %s failed, skipping: %v", recSecret.Key, tool.ID, err)
			continue
		}
		merged[recSecret.Key] = string(plaintext)
		injected = append(injected, recSecret.Key)
		plaintexts = append(plaintexts, plaintext)
	}
	return merged, injected, plaintexts
}

// validateArgs checks the call arguments against the tool's parameter
// schema. Declared secret keys get placeholders first so a schema that
// requires them does not reject a call whose credentials arrive by
// injection.
func (g *Gateway) validateArgs(tool *models.ToolDescriptor, args map[string]any, secretKeys []string) error {
	schemaJSON, err := tool.SchemaJSON()
	if err != nil || len(schemaJSON) == 0 || string(schemaJSON) == "null" {
		return nil
	}

	doc := make(map[string]any, len(args)+len(secretKeys))
	for k, v := range args {
		doc[k] = v
	}
	for _, k := range secretKeys {
		if _, present := doc[k]; !present {
			doc[k] = "injected-at-dispatch"
		}
	}

	validation, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		// A broken schema is the tool author's bug, not the caller's;
		// let the call through and leave a trace.
		logging.Debug("gateway: schema validation for %s unavailable: %v", tool.ID, err)
		return nil
	}
	if !validation.Valid() {
		issues := make([]string, 0, len(validation.Errors()))
		for _, e := range validation.Errors() {
			issues = append(issues, e.String())
		}
		return fmt.Errorf("%w: arguments for %s rejected: %s", ErrBadRequest, tool.ID, strings.Join(issues, "; "))
	}
	return nil
}

// toolState returns (creating on first use) the per-tool bucket and cache.
func (g *Gateway) toolState(toolID string) *toolState {
	g.mu.RLock()
	st, ok := g.tools[toolID]
	g.mu.RUnlock()
	if ok {
		return st
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok = g.tools[toolID]; ok {
		return st
	}

	tc := g.cfg.ToolConfigFor(toolID)
	st = &toolState{
		cfg:     tc,
		limiter: newLimiter(tc.RateLimit, tc.Burst),
	}
	if tc.CacheTTL > 0 {
		cache, err := newResultCache(g.cfg.Gateway.CacheSize, tc.TTL())
		if err != nil {
			logging.Error("gateway: cache for %s disabled: %v", toolID, err)
		} else {
			st.cache = cache
		}
	}
	g.tools[toolID] = st
	return st
}

// pluginOf maps a tool id to its owning plugin. Tool ids are namespaced
// "plugin.tool"; a bare id is its own plugin.
func pluginOf(toolID string) string {
	if i := strings.IndexByte(toolID, '.'); i > 0 {
		return toolID[:i]
	}
	return toolID
}

func containsAny(payload []byte, needles [][]byte) bool {
	for _, n := range needles {
		if len(n) > 0 && bytes.Contains(payload, n) {
			return true
		}
	}
	return false
}
