package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <command> [value]",
	Short: "Send one command and print the reply",
	Long: `Send one command to the device and print its reply.

Commands: ` + strings.Join(commandNames(), ", "),
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

var flagRaw bool

func init() {
	sendCmd.Flags().BoolVar(&flagRaw, "raw", false, "treat <command> as a numeric request code")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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
	defer sess.Close()

	out := cmd.OutOrStdout()
	if flagRaw {
		code, err := parseValue(args[0])
		if err != nil || code > 0xFF {
			return fmt.Errorf("invalid request code %q", args[0])
		}
		var value uint16
		if len(args) > 1 {
			if value, err = parseValue(args[1]); err != nil {
				return err
			}
		}
		reply, err := sess.client.SendCode(uint8(code), value)
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "error: %v\n", err)
			return err
		}
		fmt.Fprintf(out, "%q\n", reply)
		return nil
	}

	reply, err := runCommand(sess.client, args[0], args[1:])
	if err != nil {
		color.New(color.FgRed).Fprintf(out, "error: %v\n", err)
		return err
	}
	color.New(color.FgGreen).Fprintln(out, reply)
	return nil
}
