// Command flowrtd runs the workflow runtime: the actor scheduler, the
// process engine and its RPC surface, the saga orchestrator, and the
// HTTP/WebSocket/SSE transports that front system/rpc's router.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3e-network/flowrt/applications/transport"
	"github.com/r3e-network/flowrt/applications/workflowapi"
	"github.com/r3e-network/flowrt/infrastructure/config"
	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/infrastructure/metrics"
	"github.com/r3e-network/flowrt/infrastructure/middleware"
	"github.com/r3e-network/flowrt/infrastructure/observability"
	"github.com/r3e-network/flowrt/infrastructure/reqcontext"
	"github.com/r3e-network/flowrt/infrastructure/resilience"
	"github.com/r3e-network/flowrt/infrastructure/state"
	"github.com/r3e-network/flowrt/system/actor"
	"github.com/r3e-network/flowrt/system/conflict"
	"github.com/r3e-network/flowrt/system/eventstore"
	"github.com/r3e-network/flowrt/system/eventstore/postgres"
	"github.com/r3e-network/flowrt/system/process"
	"github.com/r3e-network/flowrt/system/rpc"
	"github.com/r3e-network/flowrt/system/saga"
)

func main() {
	cfg, err := config.LoadRuntimeConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.ServiceName, cfg.Logging.Level, cfg.Logging.Format)
	rootCtx := context.Background()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(cfg.ServiceName, reg)
	obs := observability.New(cfg.ServiceName, log, m)
	hostSampler := observability.NewHostSampler(reg, log)

	samplerCtx, stopHostSampler := context.WithCancel(rootCtx)
	go hostSampler.Run(samplerCtx, 15*time.Second)
	defer stopHostSampler()

	store, closeStore, err := openStore(cfg.Database)
	if err != nil {
		log.Fatal(rootCtx, "open event store", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	actorRuntime := actor.New(store, log, actor.Config{
		Workers:          cfg.Actor.Workers,
		MailboxCapacity:  cfg.Actor.MailboxCapacity,
		HotCacheSize:     cfg.Actor.HotCacheSize,
		AskTimeout:       time.Duration(cfg.Actor.AskTimeoutSeconds) * time.Second,
		NodeID:           cfg.Actor.NodeID,
		ConflictStrategy: conflict.Strategy(cfg.Actor.ConflictStrategy),
	})
	actorRuntime.Start(rootCtx)
	defer actorRuntime.Stop()

	// The saga orchestrator compensates multi-step processes driven by
	// process tasks; it has no RPC surface of its own (spec.md's minimal
	// procedure surface is process.* only).
	_ = saga.NewOrchestrator(log, store)

	processEngine := process.NewEngine(resilience.Config{})
	registerDefinitions(processEngine, log)
	workflowRegistry := workflowapi.NewRegistry(processEngine)

	instancePersistence, err := state.NewPersistentState(state.DefaultConfig())
	if err != nil {
		log.Fatal(rootCtx, "build instance persistence", err)
	}
	defer instancePersistence.Close(rootCtx)
	workflowRegistry.SetPersistence(instancePersistence, log)
	if err := workflowRegistry.Restore(rootCtx); err != nil {
		log.Fatal(rootCtx, "restore process instances", err)
	}

	router := rpc.NewRouter()
	if err := workflowRegistry.RegisterProcedures(router); err != nil {
		log.Fatal(rootCtx, "register procedures", err)
	}

	extractor, err := buildClaimsExtractor(cfg.Auth)
	if err != nil {
		log.Fatal(rootCtx, "build claims extractor", err)
	}

	policy, closePolicy, err := buildAccessPolicy(cfg.RateLimit)
	if err != nil {
		log.Fatal(rootCtx, "build rpc policy", err)
	}
	if closePolicy != nil {
		defer closePolicy()
	}

	broker := transport.NewBroker(cfg.Transport.BrokerBufferSize)

	httpTransport := transport.NewHTTPTransport(router, extractor)
	httpTransport.SetPolicy(policy)

	wsTransport := transport.NewWSTransport(router, broker, transport.WSConfig{
		HeartbeatInterval: time.Duration(cfg.Transport.WSHeartbeatSeconds) * time.Second,
		ConnectionTimeout: time.Duration(cfg.Transport.WSConnectionTimeoutSeconds) * time.Second,
		MaxConnections:    cfg.Transport.WSMaxConnections,
	}, log)
	wsTransport.SetPolicy(policy)

	sseTransport := transport.NewSSETransport(broker, time.Duration(cfg.Transport.SSEConnectionTimeoutSeconds)*time.Second)
	sseTransport.SetPolicy(policy)

	health := middleware.NewHealthChecker(cfg.ServiceName)
	health.RegisterCheck("eventstore", func() error {
		_, err := store.ActorIDs(rootCtx, "__health__")
		return err
	})
	ready := true

	limiterCfg := middleware.DefaultRateLimiterConfig(log)
	limiterCfg.RequestsPerSecond = cfg.HTTP.IPRequestsPerSecond
	limiterCfg.Burst = cfg.HTTP.IPBurst
	ipLimiter := middleware.NewRateLimiterFromConfig(limiterCfg)
	stopLimiterCleanup := middleware.StartCleanupFromConfig(ipLimiter, limiterCfg)
	defer stopLimiterCleanup()

	mux := chi.NewRouter()
	mux.Use(middleware.NewRecoveryMiddleware(log).Handler)
	mux.Use(middleware.NewTracingMiddleware(log).Handler)
	mux.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	mux.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: cfg.HTTP.CORSAllowedOrigins}).Handler)
	mux.Use(ipLimiter.Handler)

	// Body-size and wall-clock request timeouts apply only to the request/
	// response /rpc endpoint; wrapping /ws or /events in them would hijack
	// (and eventually kill) the long-lived WebSocket/SSE connections those
	// handlers keep open.
	mux.Group(func(r chi.Router) {
		r.Use(middleware.NewBodyLimitMiddleware(cfg.HTTP.MaxBodyBytes).Handler)
		r.Use(middleware.NewTimeoutMiddleware(time.Duration(cfg.HTTP.RequestTimeoutSecs) * time.Second).Handler)
		httpTransport.Mount(r)
	})

	mux.Handle("/ws", wsTransport)
	mux.Handle("/events", sseTransport)
	mux.Get("/healthz", health.Handler())
	mux.Get("/livez", middleware.LivenessHandler())
	mux.Get("/readyz", middleware.ReadinessHandler(&ready))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: mux,
	}

	go func() {
		obs.Log.Info(rootCtx, "flowrtd listening", map[string]any{"addr": cfg.Server.Addr()})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(rootCtx, "http server", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	ready = false

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown", err, nil)
	}
}

// openStore selects postgres.Open when a DSN is configured, falling back to
// an in-memory store for local/dev runs. The returned close func is nil for
// the in-memory store.
func openStore(cfg config.DatabaseConfig) (eventstore.Store, func(), error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return eventstore.NewMemoryStore(), nil, nil
	}
	store, err := postgres.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// buildClaimsExtractor returns nil (no bearer-token verification, dev mode)
// when no public key path is configured.
func buildClaimsExtractor(cfg config.AuthConfig) (reqcontext.ClaimsExtractor, error) {
	path := strings.TrimSpace(cfg.JWTPublicKeyPath)
	if path == "" {
		return nil, nil
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return reqcontext.NewJWTExtractor(key), nil
}

// buildAccessPolicy wires a Redis-backed limiter for multi-node deployments
// when REDIS_ADDR is set, otherwise an in-process rpcPolicy.
func buildAccessPolicy(cfg config.RateLimitConfig) (transport.AccessPolicy, func(), error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		policy := transport.NewRPCPolicy(transport.RPCPolicy{
			RequireTenant:      cfg.RequireTenant,
			PerTenantPerMinute: float64(cfg.PerTenantPerMinute),
			PerTokenPerMinute:  float64(cfg.PerTokenPerMinute),
		})
		return policy, nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	limiter := transport.NewRedisLimiter(client, int64(cfg.PerTenantPerMinute), time.Minute)
	policy := redisAccessPolicy{limiter: limiter, requireTenant: cfg.RequireTenant}
	return policy, func() { _ = client.Close() }, nil
}

// redisAccessPolicy adapts RedisLimiter's (ctx, key) shape to the
// AccessPolicy interface HTTPTransport/WSTransport/SSETransport consult,
// keying solely on tenant since the distributed limiter serves multi-node
// per-tenant quotas rather than the in-process per-token split.
type redisAccessPolicy struct {
	limiter       *transport.RedisLimiter
	requireTenant bool
}

func (p redisAccessPolicy) Allow(tenant, _ string) (bool, string) {
	if p.requireTenant && strings.TrimSpace(tenant) == "" {
		return false, "tenant-required"
	}
	key := tenant
	if strings.TrimSpace(key) == "" {
		key = "anonymous"
	}
	ok, err := p.limiter.Allow(context.Background(), key)
	if err != nil {
		return true, "" // fail open: a transient Redis error should not wedge the RPC surface
	}
	if !ok {
		return false, "tenant-limit"
	}
	return true, ""
}
