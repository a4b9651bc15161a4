// Command stateline-server runs the delegator and sampler together in one
// process: it accepts worker connections, assembles batches, drives the
// parallel-tempered MCMC loop, and serves Prometheus metrics, per spec.md
// section 6's CLI table and section 2's server-wrapper architecture.
//
// Author: momentics <momentics@gmail.com>
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/stateline/internal/adapt"
	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/chainarray"
	"github.com/momentics/stateline/internal/config"
	"github.com/momentics/stateline/internal/convergence"
	"github.com/momentics/stateline/internal/delegator"
	"github.com/momentics/stateline/internal/endpoint"
	"github.com/momentics/stateline/internal/proposal"
	"github.com/momentics/stateline/internal/requester"
	"github.com/momentics/stateline/internal/sampler"
	"github.com/momentics/stateline/internal/server"
	"github.com/momentics/stateline/internal/socket"
	"github.com/momentics/stateline/internal/wire"
)

func main() {
	logLevel := flag.Int("log-level", 1, "log verbosity: 0=debug 1=info 2=warn 3=error")
	port := flag.Int("port", 5556, "TCP port the delegator listens on for worker/agent connections")
	configPath := flag.String("config", "", "path to the JSON run configuration (required)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on; empty disables it")
	flag.Parse()

	applog.SetLevel(*logLevel)
	log := applog.With("cmd")

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "stateline-server: --config is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, *port, *metricsAddr); err != nil {
		log.Error("exiting on error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, port int, metricsAddr string) error {
	log := applog.With("cmd")

	listenAddr := fmt.Sprintf(":%d", port)
	dialAddr := fmt.Sprintf("127.0.0.1:%d", port)

	delegatorSocket := socket.New(socket.Router)
	if err := delegatorSocket.SetIdentity(""); err != nil {
		return fmt.Errorf("server: identity: %w", err)
	}
	if err := delegatorSocket.Listen(listenAddr); err != nil {
		return fmt.Errorf("server: listen %s: %w", listenAddr, err)
	}
	defer delegatorSocket.Close()

	dg := delegator.New(delegator.Config{
		NumJobTypes:      cfg.NJobTypes,
		DefaultHBTimeout: cfg.HeartbeatTimeout(),
	}, delegatorSocket, delegatorSocket.Heartbeat())
	delegatorSocket.OnDisconnect(dg.HandleDisconnect)

	delegatorEndpoint := endpoint.New(delegatorSocket, endpoint.Handlers{
		OnHello:    dg.HandleHello,
		OnBatchJob: dg.HandleBatchJob,
		OnResult:   dg.HandleResult,
		OnBye:      dg.HandleBye,
	})
	router := endpoint.NewRouter(nil, delegatorEndpoint)
	router.AddIdler(delegatorSocket.Heartbeat())

	nTemps := cfg.ParallelTempering.Chains
	nStacks := cfg.ParallelTempering.Stacks

	chains, err := chainarray.New(chainarray.Config{
		NStacks:        nStacks,
		NTemps:         nTemps,
		OutputPath:     cfg.OutputPath,
		Recover:        cfg.OutputPath != "",
		Dimensionality: cfg.Dimensionality,
	})
	if err != nil {
		return fmt.Errorf("server: chain array: %w", err)
	}

	requesterSocket := socket.New(socket.Dealer)
	if err := requesterSocket.SetIdentity(""); err != nil {
		return fmt.Errorf("server: requester identity: %w", err)
	}
	if err := requesterSocket.Connect(dialAddr); err != nil {
		return fmt.Errorf("server: requester connect %s: %w", dialAddr, err)
	}
	defer requesterSocket.Close()

	req := requester.New(requesterSocket, chains.NumChains())
	go func() {
		for {
			msg, err := requesterSocket.Recv()
			if err != nil {
				log.Warn("requester socket closed", "err", err)
				return
			}
			if msg.Subject == wire.BatchResult {
				req.OnBatchResult(msg)
			}
		}
	}()

	sigmaAdapter := adapt.New(adapt.Config{
		NTemps:     nTemps,
		TargetRate: cfg.OptimalAcceptRate,
		Prior:      cfg.AdapterPrior(),
		Window:     cfg.WindowSize,
	})
	betaAdapter := adapt.New(adapt.Config{
		NTemps:     nTemps,
		TargetRate: cfg.OptimalSwapRate,
		Prior:      cfg.AdapterPrior(),
		Window:     cfg.WindowSize,
	})
	proposer := proposal.New(cfg.Dimensionality, proposal.Bounds{
		Min: cfg.Bounds.Min,
		Max: cfg.Bounds.Max,
	})

	smp := sampler.New(sampler.Config{SwapInterval: cfg.ParallelTempering.SwapInterval},
		chains, sigmaAdapter, betaAdapter, proposer, req)

	conv := convergence.New(nStacks, cfg.Dimensionality)
	metrics := server.NewMetrics(nil)

	initial := cfg.Initial
	if !cfg.UseInitial || len(initial) != cfg.Dimensionality {
		initial = make([]float64, cfg.Dimensionality)
	}

	srv := server.New(server.Config{
		NSamplesTotal: cfg.NSamplesTotal,
		LoggingRate:   cfg.LoggingRate(),
		InitialSample: initial,
	}, router, dg, smp, chains, conv, metrics)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpSrv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server failed", "err", err)
			}
		}()
		defer httpSrv.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		srv.Stop()
	}()

	start := time.Now()
	err = srv.Run()
	log.Info("run complete", "elapsed", time.Since(start))
	return err
}
