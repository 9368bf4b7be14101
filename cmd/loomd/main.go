// Command loomd runs one node of a loom cluster: it loads a YAML
// config, joins (or bootstraps) the replicated store, probes local
// resources, then drives placement, supervision, and event dispatch
// until signalled to stop. Grounded on the teacher's cmd/warren/main.go
// for the cobra root-command/persistent-flags/signal-driven-shutdown
// shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/block"
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/dispatch"
	"github.com/loomhq/loom/internal/evaluator"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/placement"
	"github.com/loomhq/loom/internal/resource"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/telemetry"
)

var (
	Version = "dev"

	configPath  string
	verbose     bool
	quiet       bool
	metricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "loomd [NODENAME]",
	Short:   "loomd runs one node of a loom cluster",
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runNode,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and statically validate a config file without starting the runtime",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "loom.yaml", "path to the cluster config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "warn-level logging, quieter than default")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9090", "address the /metrics endpoint listens on")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(validateCmd)
}

func initLogging() {
	level := logging.InfoLevel
	switch {
	case verbose:
		level = logging.DebugLevel
	case quiet:
		level = logging.WarnLevel
	}
	logging.Init(logging.Config{Level: level})
}

func selfName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

func runValidate(cmd *cobra.Command, args []string) error {
	self := selfName(args)
	cfg, err := config.Load(configPath, self)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: %d node(s), %d block(s)\n", len(cfg.Membership.Nodes), len(cfg.Blocks))
	return nil
}

func runNode(cmd *cobra.Command, args []string) error {
	self := selfName(args)
	cfg, err := config.Load(configPath, self)
	if err != nil {
		return err
	}
	log := logging.WithNodeName(self)
	log.Info().Str("config", configPath).Msg("loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	selfNode, err := cfg.Membership.SelfNode()
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{
		Self:      self,
		Bind:      selfNode.RaftAddr,
		Bootstrap: cfg.Bootstrap,
	})
	if err != nil {
		return fmt.Errorf("open replicated store: %w", err)
	}
	defer func() {
		if err := st.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("store shutdown")
		}
	}()

	state := store.NewState(st)
	nodeNames := cfg.Membership.Names()
	eval := evaluator.New(self, nodeNames, state)

	var specs []resource.Spec
	describeSet := make(map[string]bool)
	var describes []string
	for _, spec := range cfg.Blocks {
		for _, r := range spec.Resources {
			specs = append(specs, r)
			if !describeSet[r.Describe()] {
				describeSet[r.Describe()] = true
				describes = append(describes, r.Describe())
			}
		}
	}

	eval.ProbeAll(ctx, specs)
	telemetry.ProbesPerformedTotal.Add(float64(len(resource.Dedup(specs))))

	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Minute)
	if err := eval.WaitCheckedAll(waitCtx, describes); err != nil {
		log.Warn().Err(err).Msg("resource_checked_all gate timed out, proceeding with partial data")
	}
	cancelWait()

	engine := placement.New(state, nodeNames)
	live := block.NewLiveRegistry()
	registry := block.NewRegistry()

	disp := dispatch.New(selfNode, cfg.Membership, live, telemetry.DispatchMetrics{})
	disp.SetStatusFunc(func() map[string]interface{} {
		return map[string]interface{}{"owners": state.Owners()}
	})

	fatalCh := make(chan error, 1)
	onFatal := func(err error) {
		log.Error().Err(err).Msg("fatal error, shutting down")
		select {
		case fatalCh <- err:
		default:
		}
		stop()
	}

	supervisor := block.NewSupervisor(self, cfg.Blocks, state, engine, live, registry, disp, onFatal)

	go disp.Run(ctx)
	go supervisor.Run(ctx, 2*time.Second)
	go serveMetrics(ctx, metricsAddr, log)
	go serveRPC(ctx, selfNode.RPCAddr, disp, log)
	go watchLeader(ctx, st)

	<-ctx.Done()
	log.Info().Msg("shutting down")
	select {
	case err := <-fatalCh:
		return err
	default:
		return nil
	}
}

// serveMetrics runs the /metrics HTTP server until ctx is cancelled,
// mirroring the teacher's metrics-server-goroutine shape in
// cmd/warren/main.go.
func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}

// watchLeader polls the replicated store's leader status and publishes
// it to the loom_raft_is_leader gauge until ctx is cancelled.
func watchLeader(ctx context.Context, st store.Store) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		leader := 0.0
		if st.IsLeader() {
			leader = 1
		}
		telemetry.RaftLeader.Set(leader)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// serveRPC runs the event RPC server (/rpc, /status) until ctx is
// cancelled.
func serveRPC(ctx context.Context, addr string, disp *dispatch.Dispatcher, log zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: disp.Mux()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("event rpc listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("rpc server failed")
	}
}
