package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coilstep/host/sim"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the firmware simulator on a TCP port",
	Long: `Run the firmware control loop on the host and serve it on a TCP port.
Connect to it with --device tcp://<addr>. Connections are served one at a
time; motor state survives reconnects.`,
	RunE: runSimulate,
}

var flagSimListen string

func init() {
	simulateCmd.Flags().StringVarP(&flagSimListen, "listen", "l", "127.0.0.1:7777", "TCP listen address")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Debug {
		sim.BridgeDebug(logger.Named("core"))
	}
	s := sim.New(logger, sim.WithInterval(cfg.SimInterval))

	ln, err := net.Listen("tcp", flagSimListen)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Infow("simulator listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		logger.Infow("host connected", "remote", conn.RemoteAddr().String())
		if err := s.Serve(ctx, conn); err != nil {
			logger.Warnw("connection ended", "error", err)
		}
	}
}
