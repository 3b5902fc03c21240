// Command hamclient discovers and downloads files from a hamserver peer
// over a fountain-coded packet-radio link (§6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThomasHabets/hamtransfer/internal/client"
	"github.com/ThomasHabets/hamtransfer/internal/config"
	"github.com/ThomasHabets/hamtransfer/internal/logging"
	"github.com/ThomasHabets/hamtransfer/internal/metrics"
	"github.com/ThomasHabets/hamtransfer/internal/transport"
)

func main() {
	var (
		routerAddr string
		parserAddr string
		source     string
		output     string
		dst        string
		packetLoss float32
		timeoutSec float32
		listMode   bool
		verbose    bool
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "hamclient [roothash]",
		Short: "Lists or downloads files from a hamtransfer server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := buildLogger(verbose, logFile)
			if err != nil {
				return err
			}
			if err := config.ValidateDropRate(packetLoss); err != nil {
				return err
			}
			timeout := time.Duration(float64(timeoutSec) * float64(time.Second))
			if err := config.ValidateTimeout(timeout); err != nil {
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

			m := metrics.NewClient()
			eng := client.New(router, transport.SimpleCodec{}, source, dst, timeout, packetLoss, log, m)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := eng.Start(ctx); err != nil {
				return err
			}

			if listMode {
				entries, err := eng.List(ctx)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Println("(no files)")
					return nil
				}
				for _, e := range entries {
					fmt.Printf("%s  %s\n", e.Hash, e.Name)
				}
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("a root hash argument is required unless --list is given")
			}
			hash := args[0]
			data, err := eng.Download(ctx, hash)
			if err != nil {
				return err
			}
			outPath := output
			if outPath == "" {
				outPath = hash
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			log.Info("wrote %d bytes to %s", len(data), outPath)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&routerAddr, "router", "127.0.0.1:9001,127.0.0.1:9000", `router endpoint, "listen,peer" UDP addresses (local stand-in for the real Router collaborator)`)
	flags.StringVar(&parserAddr, "parser", "", "frame codec service URL (unused: the frame codec runs in-process)")
	flags.StringVar(&source, "source", "CLIENT", "this station's callsign")
	flags.StringVar(&output, "output", "", "output file path (default: the root hash)")
	flags.StringVar(&dst, "dst", config.DefaultDst, "server callsign to address requests to")
	flags.Float32Var(&packetLoss, "packet_loss", config.DefaultDropRate, "simulated inbound packet loss probability (test hook)")
	flags.Float32Var(&timeoutSec, "timeout", float32(config.DefaultTimeout.Seconds()), "per-frame receive timeout, in seconds")
	flags.BoolVar(&listMode, "list", false, "list available files instead of downloading")
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
