// lancast-client discovers a server on the local network and
// reconstructs its shared directory from broadcast chunks.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"

	"lancast/internal/client"
	"lancast/internal/config"
	"lancast/internal/netio"
	"lancast/internal/observability"
	"lancast/internal/pipeline"
	"lancast/internal/progress"
	"lancast/internal/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultClientConfig()
	var logLevel string

	cmd := &cobra.Command{
		Use:           "lancast-client",
		Short:         "Download a broadcast directory from the local network",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, logLevel)
		},
	}

	flags := cmd.Flags()
	flags.Uint16Var(&cfg.Port, "port", cfg.Port, "port to receive on")
	flags.StringVar(&cfg.BindIP, "ip", cfg.BindIP, "address to bind")
	flags.StringVar(&cfg.Name, "name", cfg.Name, "client name shown to the server (generated if unset)")
	flags.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "only join the server with this name")
	flags.Uint64Var(&cfg.RequestIntervalUS, "request-interval-us", cfg.RequestIntervalUS, "microseconds between chunk requests (0 disables)")
	flags.StringVar(&cfg.OutDir, "dir", cfg.OutDir, "directory to download into")
	flags.StringVar(&logLevel, "log-level", "", "log level: trace/debug/info/warn/error")
	return cmd
}

func run(cfg *config.ClientConfig, logLevel string) error {
	name := cfg.Name
	if name == "" {
		name = petname.Generate(3, "-")
	}
	log := observability.NewLogger("lancast-client", logLevel, os.Stderr).
		With().Str("name", name).Logger()

	bindIP := net.ParseIP(cfg.BindIP)
	if bindIP == nil {
		return fmt.Errorf("invalid bind address %q", cfg.BindIP)
	}
	listener, err := netio.Listen(
		[]*net.UDPAddr{{IP: bindIP, Port: int(cfg.Port)}},
		name, log,
	)
	if err != nil {
		return fmt.Errorf("bind port %d: %w", cfg.Port, err)
	}

	stream, counter := client.CountPackets(listener.C())

	serverAddr, err := client.Discover(stream, name, cfg.ServerName, log)
	if err != nil {
		return err
	}
	comm := client.ServerComm{Addr: serverAddr, Name: name}

	data, err := client.InitializeState(stream, comm, log)
	if err != nil {
		log.Error().Err(err).Msg("could not acquire the file listing")
		return err
	}

	pongs, rest := pipeline.Branch(stream, func(d netio.Datagram) bool {
		_, ok := d.Msg.(wire.Pong)
		return ok
	}, false)
	perFile, remainder := client.SplitByFiles(rest, len(data.Files))
	pipeline.Drain(remainder)

	names := make([]string, len(data.Files))
	numChunks := make([]uint64, len(data.Files))
	for i, f := range data.Files {
		names[i] = f.Fragment.Path
		numChunks[i] = f.Chunks.NumChunks()
	}
	indicator := progress.NewIndicator(names, numChunks, os.Stdout)
	events := make(chan progress.Event, 100)

	interval := time.Duration(cfg.RequestIntervalUS) * time.Microsecond
	for i, f := range data.Files {
		go func(in <-chan netio.Datagram, f client.FileState) {
			// A failed download logs and aborts its own task only;
			// the rest of the session keeps going.
			_ = client.DownloadFile(in, comm, f.Fragment, f.Chunks, events, interval, cfg.OutDir, log)
		}(perFile[i], f)
	}

	pingErr := make(chan error, 1)
	go func() {
		pingErr <- client.RunPinger(pongs, comm, counter, cfg.PingPeriod, cfg.PongThreshold, log)
	}()

	uiDone := make(chan struct{})
	go func() {
		indicator.Run(events)
		close(uiDone)
	}()

	select {
	case <-uiDone:
		if err := comm.Send(wire.Disconnect{Reason: wire.DisconnectDone}); err != nil {
			log.Warn().Err(err).Msg("disconnect notice dropped")
		}
		log.Info().Int("files", len(data.Files)).Msg("all downloads complete")
		return nil
	case err := <-pingErr:
		log.Error().Err(err).Msg("session lost")
		return err
	}
}
