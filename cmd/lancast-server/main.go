// lancast-server broadcasts the contents of a directory to every
// listening client on the local network.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lancast/internal/config"
	"lancast/internal/hashlist"
	"lancast/internal/netio"
	"lancast/internal/observability"
	"lancast/internal/pipeline"
	"lancast/internal/ratelimit"
	"lancast/internal/server"
	"lancast/internal/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultServerConfig()
	var logLevel string

	cmd := &cobra.Command{
		Use:           "lancast-server",
		Short:         "Broadcast a directory over UDP to the local network",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, logLevel)
		},
	}

	flags := cmd.Flags()
	flags.Uint16Var(&cfg.SendPort, "send-port", cfg.SendPort, "port to transmit on (clients listen here)")
	flags.Uint16Var(&cfg.ListenPort, "listen-port", cfg.ListenPort, "port to listen on (defaults to the send port)")
	flags.StringSliceVar(&cfg.BroadcastIPs, "ip", cfg.BroadcastIPs, "broadcast addresses to transmit to")
	flags.StringVar(&cfg.Name, "name", cfg.Name, "server name shown to clients (generated if unset)")
	flags.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory to serve")
	flags.StringVar(&cfg.HashlistPath, "hashlist", cfg.HashlistPath, "precomputed hashlist file (skips rehashing)")
	flags.IntVar(&cfg.RateMin, "rate-min", cfg.RateMin, "minimum packets per second")
	flags.IntVar(&cfg.RateMax, "rate-max", cfg.RateMax, "maximum packets per second")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address for the Prometheus endpoint (disabled if unset)")
	flags.StringVar(&logLevel, "log-level", "", "log level: trace/debug/info/warn/error")
	return cmd
}

func run(cfg *config.ServerConfig, logLevel string) error {
	name := cfg.Name
	if name == "" {
		name = petname.Generate(3, "-")
	}
	log := observability.NewLogger("lancast-server", logLevel, os.Stderr).
		With().Str("name", name).Logger()

	listenPort := cfg.ListenPort
	if listenPort == 0 {
		listenPort = cfg.SendPort
	}

	dests := make([]*net.UDPAddr, 0, len(cfg.BroadcastIPs))
	for _, ip := range cfg.BroadcastIPs {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return fmt.Errorf("invalid broadcast address %q", ip)
		}
		dests = append(dests, &net.UDPAddr{IP: parsed, Port: int(cfg.SendPort)})
	}

	list, err := loadOrWalk(cfg, log)
	if err != nil {
		return err
	}
	fragments, err := hashlist.Fragments(list, cfg.ChunkSize)
	if err != nil {
		return err
	}
	log.Info().Int("files", len(fragments)).Str("dir", cfg.Dir).Msg("serving directory")

	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		metrics = observability.NewMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/healthz", observability.HealthHandler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint up")
	}

	limiter := ratelimit.New(cfg.RateMin, cfg.RateMax, log, metrics)
	bcast, err := netio.NewBroadcaster(dests, name, limiter, log, metrics)
	if err != nil {
		return fmt.Errorf("open broadcast socket: %w", err)
	}

	listener, err := netio.Listen(
		[]*net.UDPAddr{{IP: net.IPv4zero, Port: int(listenPort)}},
		name, log,
	)
	if err != nil {
		return fmt.Errorf("bind listen port %d: %w", listenPort, err)
	}

	pings, rest := pipeline.Branch(listener.C(), func(d netio.Datagram) bool {
		_, ok := d.Msg.(wire.Ping)
		return ok
	}, false)
	joins, rest := pipeline.Branch(rest, func(d netio.Datagram) bool {
		_, ok := d.Msg.(wire.JoinQuery)
		return ok
	}, false)

	server.ReplyToPings(pings, bcast.Priority(), limiter.Collector(), log, metrics)
	server.HandleJoins(joins, name, cfg.SendPort, log)
	server.BroadcastPresence(bcast.Priority(), listenPort, log)
	server.NewTransmitter(fragments, cfg.Dir, bcast.Normal(), log, metrics).Run(rest)

	log.Info().Uint16("send_port", cfg.SendPort).Uint16("listen_port", listenPort).Msg("server up")
	select {}
}

func loadOrWalk(cfg *config.ServerConfig, log zerolog.Logger) (hashlist.HashList, error) {
	if cfg.HashlistPath != "" {
		log.Info().Str("path", cfg.HashlistPath).Msg("loading precomputed hashlist")
		return hashlist.Load(cfg.HashlistPath)
	}
	log.Info().Str("dir", cfg.Dir).Msg("hashing directory")
	return hashlist.Walk(cfg.Dir)
}
