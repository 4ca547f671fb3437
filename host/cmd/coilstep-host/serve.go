package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coilstep/host/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the device over HTTP",
	RunE:  runServe,
}

var flagListen string

func init() {
	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = flagListen
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sess, err := openSession(cfg, logger)
	if err != nil {
		return err
	}

	var opts []api.Option
	if sess.sim != nil {
		opts = append(opts, api.WithStatus(sess.sim))
	}
	srv := api.NewServer(sess.client, logger.Named("http"), opts...)
	srv.AddCloser(sess)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, cfg.Listen)
}
