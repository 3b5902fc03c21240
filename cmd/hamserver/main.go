// Command hamserver indexes a directory of files and serves them to
// hamclient peers over a fountain-coded packet-radio link (§6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThomasHabets/hamtransfer/internal/config"
	"github.com/ThomasHabets/hamtransfer/internal/directory"
	"github.com/ThomasHabets/hamtransfer/internal/logging"
	"github.com/ThomasHabets/hamtransfer/internal/metrics"
	"github.com/ThomasHabets/hamtransfer/internal/server"
	"github.com/ThomasHabets/hamtransfer/internal/transport"
)

func main() {
	var (
		routerAddr string
		parserAddr string
		input      string
		packetSize int
		repair     int
		source     string
		verbose    bool
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "hamserver",
		Short: "Serves a directory of files over a fountain-coded packet-radio link",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := buildLogger(verbose, logFile)
			if err != nil {
				return err
			}
			if err := config.ValidatePacketSize(packetSize); err != nil {
				return err
			}
			if err := config.ValidateRepair(repair); err != nil {
				return err
			}

			dir, err := directory.New(input)
			if err != nil {
				return err
			}

			laddr, raddr, err := splitRouterAddr(routerAddr)
			if err != nil {
				return err
			}
			router, err := transport.NewUDPRouter(laddr, raddr)
			if err != nil {
				return err
			}
			defer router.Close()

			if parserAddr != "" {
				log.Debug("--parser %s accepted but unused: the frame codec runs in-process (SimpleCodec)", parserAddr)
			}

			m := metrics.NewServer()
			eng := server.New(dir, router, transport.SimpleCodec{}, source, packetSize, repair, log, m)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.Info("hamserver listening: source=%s input=%s packet-size=%d repair=%d", source, input, packetSize, repair)
			return eng.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&routerAddr, "router", "127.0.0.1:9000,127.0.0.1:9001", `router endpoint, "listen,peer" UDP addresses (local stand-in for the real Router collaborator)`)
	flags.StringVar(&parserAddr, "parser", "", "frame codec service URL (unused: the frame codec runs in-process)")
	flags.StringVar(&input, "input", ".", "directory of files to serve")
	flags.IntVar(&packetSize, "packet-size", config.DefaultPacketSize, "encoding symbol length L, in bytes")
	flags.IntVar(&repair, "repair", config.DefaultRepair, "repair symbols beyond K")
	flags.StringVar(&source, "source", "SERVER", "this station's callsign")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flags.StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger(verbose bool, logFile string) (*logging.Logger, error) {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	if logFile == "" {
		return logging.New(level, os.Stderr), nil
	}
	return logging.NewFile(level, filepath.Dir(logFile), strings.TrimSuffix(filepath.Base(logFile), ".log"))
}

// splitRouterAddr parses the "listen,peer" shorthand this adapter uses in
// place of a real Router service URL (§6 --router).
func splitRouterAddr(v string) (listen, peer string, err error) {
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf(`--router must be "listen,peer", got %q`, v)
	}
	return parts[0], parts[1], nil
}
