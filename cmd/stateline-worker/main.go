// Command stateline-worker runs either a worker ("minion") process or a
// per-host agent process, per spec.md section 6's CLI table. Exactly one
// binary covers both roles, selected by flag presence: passing
// --agent-addr runs this process as an agent (listening locally for
// worker connections while bridging to the network upstream); omitting it
// runs this process as a worker connecting directly to --network-addr
// (which may be an agent's local listen address or, in a minimal
// deployment, the delegator itself).
//
// Author: momentics <momentics@gmail.com>
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/momentics/stateline/internal/agent"
	"github.com/momentics/stateline/internal/applog"
	"github.com/momentics/stateline/internal/endpoint"
	"github.com/momentics/stateline/internal/socket"
	"github.com/momentics/stateline/internal/wire"
	"github.com/momentics/stateline/internal/worker"
)

func main() {
	logLevel := flag.Int("log-level", 1, "log verbosity: 0=debug 1=info 2=warn 3=error")
	networkAddr := flag.String("network-addr", "", "address of the upstream network peer (agent or delegator)")
	agentAddr := flag.String("agent-addr", "", "local address this process listens on for worker connections (agent mode)")
	jobTypeLo := flag.Int("job-type-lo", 1, "lowest job type this worker serves")
	jobTypeHi := flag.Int("job-type-hi", 1, "highest job type this worker serves")
	hbTimeoutSec := flag.Int("hb-timeout-sec", 15, "proposed heartbeat timeout in seconds")
	flag.Parse()

	applog.SetLevel(*logLevel)
	log := applog.With("cmd")

	if *networkAddr == "" {
		fmt.Fprintln(os.Stderr, "stateline-worker: --network-addr is required")
		flag.Usage()
		os.Exit(2)
	}

	var running atomic.Bool
	running.Store(true)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		running.Store(false)
	}()

	var err error
	if *agentAddr != "" {
		err = runAgent(&running, *networkAddr, *agentAddr)
	} else {
		err = runWorker(&running, *networkAddr, uint32(*jobTypeLo), uint32(*jobTypeHi), uint32(*hbTimeoutSec))
	}
	if err != nil {
		log.Error("exiting on error", "err", err)
		os.Exit(1)
	}
}

// demoLikelihood is a placeholder user likelihood: the specific numerical
// likelihood functions supplied by users are out of scope per spec.md
// section 1. It returns a simple quadratic potential so the binary is
// runnable end to end without a real forward model wired in.
func demoLikelihood(jobType uint32, data []float32) float32 {
	var sum float32
	for _, v := range data {
		sum += v * v
	}
	return 0.5 * sum
}

func runWorker(running *atomic.Bool, networkAddr string, jobTypeLo, jobTypeHi, hbTimeoutSec uint32) error {
	log := applog.With("worker")
	sock := socket.New(socket.Dealer)
	if err := sock.SetIdentity(""); err != nil {
		return fmt.Errorf("worker: set identity: %w", err)
	}
	if err := sock.Connect(networkAddr); err != nil {
		return fmt.Errorf("worker: connect %s: %w", networkAddr, err)
	}
	defer sock.Close()

	minion := worker.New(sock, demoLikelihood)
	ep := endpoint.New(sock, endpoint.Handlers{
		OnJob: minion.OnJob,
		OnWelcome: func(msg wire.Message) {
			w, err := wire.DecodeWelcome(msg.Payload)
			if err != nil {
				log.Warn("malformed WELCOME", "err", err)
				return
			}
			sock.Heartbeat().Connect(networkAddr, time.Duration(w.HBTimeoutSecs)*time.Second, time.Now())
			log.Info("received WELCOME, heartbeats started", "hb_timeout_sec", w.HBTimeoutSecs)
		},
	})
	router := endpoint.NewRouter(nil, ep)
	router.AddIdler(sock.Heartbeat())

	go minion.Run()
	minion.SayHello(jobTypeLo, jobTypeHi, hbTimeoutSec)
	log.Info("worker started", "network_addr", networkAddr)
	defer minion.Stop()

	return router.Poll(running)
}

func runAgent(running *atomic.Bool, networkAddr, agentAddr string) error {
	log := applog.With("agent")

	upstream := socket.New(socket.Dealer)
	if err := upstream.SetIdentity(""); err != nil {
		return fmt.Errorf("agent: set identity: %w", err)
	}
	if err := upstream.Connect(networkAddr); err != nil {
		return fmt.Errorf("agent: connect upstream %s: %w", networkAddr, err)
	}
	defer upstream.Close()

	local := socket.New(socket.Router)
	if err := local.SetIdentity(""); err != nil {
		return fmt.Errorf("agent: set identity: %w", err)
	}
	if err := local.Listen(agentAddr); err != nil {
		return fmt.Errorf("agent: listen %s: %w", agentAddr, err)
	}
	defer local.Close()

	shutdown := func() { running.Store(false) }
	a := agent.New(upstream, local, shutdown)

	upstreamEp := endpoint.New(upstream, endpoint.Handlers{
		OnWelcome: func(msg wire.Message) {
			a.OnNetworkWelcome(msg)
			w, err := wire.DecodeWelcome(msg.Payload)
			if err != nil {
				log.Warn("malformed WELCOME", "err", err)
				return
			}
			upstream.Heartbeat().Connect(networkAddr, time.Duration(w.HBTimeoutSecs)*time.Second, time.Now())
		},
		OnJob: a.OnNetworkJob,
		OnBye: a.OnNetworkBye,
	})
	localEp := endpoint.New(local, endpoint.Handlers{
		OnHello:  a.OnWorkerHello,
		OnResult: a.OnWorkerResult,
	})

	router := endpoint.NewRouter(nil, upstreamEp, localEp)
	router.AddIdler(upstream.Heartbeat())
	router.AddIdler(local.Heartbeat())

	log.Info("agent started", "network_addr", networkAddr, "agent_addr", agentAddr)
	return router.Poll(running)
}
