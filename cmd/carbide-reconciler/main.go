// Command carbide-reconciler is Carbide's single-process entrypoint: it
// wires the persistence store, Redfish client factory, optional DPF client,
// and the two independent drivers of the system — the Managed-Host State
// Reconciler and the exploration/preingestion engine — and ticks each on
// its own cadence until told to stop. There is no controller-runtime
// manager here: no leader election, no webhooks, no CRD scheme. Carbide
// owns its own process lifecycle directly via zap and signal.NotifyContext.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/carbide-fleet/carbide/pkg/config"
	"github.com/carbide-fleet/carbide/pkg/dpf"
	"github.com/carbide-fleet/carbide/pkg/exploration"
	"github.com/carbide-fleet/carbide/pkg/features"
	"github.com/carbide-fleet/carbide/pkg/metrics"
	"github.com/carbide-fleet/carbide/pkg/persistence"
	"github.com/carbide-fleet/carbide/pkg/persistence/memstore"
	"github.com/carbide-fleet/carbide/pkg/persistence/pgstore"
	"github.com/carbide-fleet/carbide/pkg/reconciler"
	"github.com/carbide-fleet/carbide/pkg/recovery"
	"github.com/carbide-fleet/carbide/pkg/redfish"
)

func main() {
	development := os.Getenv("CARBIDE_LOG_DEVELOPMENT") == "true"
	metricsAddr := envOr("CARBIDE_METRICS_BIND_ADDRESS", ":8080")
	healthAddr := envOr("CARBIDE_HEALTH_BIND_ADDRESS", metricsAddr)

	zl, err := newZapLogger(development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building zap logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	log := zapr.NewLogger(zl)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, metricsAddr, healthAddr); err != nil {
		log.Error(err, "carbide-reconciler exited")
		os.Exit(1)
	}
}

func newZapLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func run(ctx context.Context, log logr.Logger, metricsAddr, healthAddr string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := features.LoadFromEnv(); err != nil {
		return fmt.Errorf("loading feature overrides: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	serveMetrics(log, reg, metricsAddr, healthAddr)

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening persistence store: %w", err)
	}
	defer closeStore()

	var dpfClient dpf.KubeClientProvider
	if cfg.Policy.DPFEnabled {
		dyn, err := buildDynamicClient()
		if err != nil {
			return fmt.Errorf("building DPF kube client: %w", err)
		}
		dpfClient = dpf.New(dyn)
	}

	owner, err := os.Hostname()
	if err != nil {
		owner = "carbide-reconciler"
	}

	loop := &reconciler.Loop{
		Store:          store,
		Factory:        redfish.NewClient,
		DPF:            dpfClient,
		Policy:         cfg.Policy,
		Reconciler:     cfg.Reconciler,
		Escalator:      recovery.DefaultEscalator(),
		SecretResolver: config.EnvSecretResolver,
		Log:            log.WithName("reconciler"),
	}

	engine := exploration.New(store, redfish.NewClient, owner, explorationConfig(cfg), bmcCredentials(), log.WithName("exploration"))

	return driveLoops(ctx, log, loop, engine, cfg)
}

// openStore opens pgstore against CARBIDE_DATABASE_DSN when set, falling
// back to an in-memory store for a dependency-free dev run. The returned
// closer is always safe to call, even for the in-memory fallback.
func openStore(ctx context.Context) (persistence.Store, func(), error) {
	dsn := os.Getenv("CARBIDE_DATABASE_DSN")
	if dsn == "" {
		return memstore.New(), func() {}, nil
	}
	store, err := pgstore.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// buildDynamicClient builds a dynamic.Interface against the DPF operator's
// cluster: in-cluster config when running as a pod, otherwise the
// kubeconfig named by KUBECONFIG / the default loading rules, matching the
// way any out-of-cluster client-go consumer bootstraps against a cluster
// that isn't the one it's running in.
func buildDynamicClient() (dynamic.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			clientcmd.NewDefaultClientConfigLoadingRules(),
			&clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("no in-cluster config and no usable kubeconfig: %w", err)
		}
	}
	return dynamic.NewForConfig(restCfg)
}

func explorationConfig(cfg config.Config) exploration.Config {
	return exploration.Config{
		CandidateIPs:        parseCandidateIPs(os.Getenv("CARBIDE_EXPLORATION_CANDIDATE_IPS")),
		MaxConcurrentProbes: cfg.Exploration.MaxConcurrentProbes,
		LeaseDuration:       cfg.Exploration.LeaseDuration,
		Insecure:            cfg.Redfish.InsecureSkipVerify,
	}
}

func parseCandidateIPs(raw string) []net.IP {
	if raw == "" {
		return nil
	}
	var ips []net.IP
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if ip := net.ParseIP(f); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

func bmcCredentials() exploration.CredentialSet {
	return exploration.CredentialSet{
		Username:  os.Getenv("CARBIDE_BMC_USERNAME"),
		Password:  os.Getenv("CARBIDE_BMC_PASSWORD"),
		RotatedAt: time.Now(),
	}
}

// driveLoops ticks the reconciler and exploration engine on their own
// independent cadences until ctx is cancelled. Each tick's failure is
// logged, never fatal: a single bad iteration should not take the process
// down, matching both loops' own per-item fault isolation.
func driveLoops(ctx context.Context, log logr.Logger, loop *reconciler.Loop, engine *exploration.Engine, cfg config.Config) error {
	reconcileTicker := time.NewTicker(cfg.Reconciler.RequeueAfter)
	defer reconcileTicker.Stop()
	explorationTicker := time.NewTicker(cfg.Exploration.ScanInterval)
	defer explorationTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-reconcileTicker.C:
			if err := loop.RunOnce(ctx); err != nil {
				log.Error(err, "reconcile iteration failed")
			}
		case <-explorationTicker.C:
			if err := engine.RunOnce(ctx); err != nil {
				log.Error(err, "exploration iteration failed")
			}
		}
	}
}

// serveMetrics starts the /metrics and /healthz HTTP server in the
// background. A listen or serve failure is logged and never brings down the
// process, at startup or later.
func serveMetrics(log logr.Logger, reg *prometheus.Registry, metricsAddr, healthAddr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics server exited", "address", metricsAddr)
		}
	}()

	if healthAddr != "" && healthAddr != metricsAddr {
		healthMux := http.NewServeMux()
		healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		healthSrv := &http.Server{Addr: healthAddr, Handler: healthMux}
		go func() {
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(err, "health probe server exited", "address", healthAddr)
			}
		}()
	}
}
