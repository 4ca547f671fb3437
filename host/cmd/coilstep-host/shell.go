package main

import (
	"context"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"coilstep/core"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive command shell",
	RunE:  runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
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

	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	shell := ishell.New()
	shell.Println("coilstep shell, type help for commands")

	for _, c := range core.AllCommands {
		name := c.String()
		help := name
		if c == core.CmdStepsParam {
			help = name + " <value>"
		}
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: help,
			Func: func(ctx *ishell.Context) {
				reply, err := runCommand(sess.client, name, ctx.Args)
				if err != nil {
					ctx.Println(bad(err.Error()))
					return
				}
				ctx.Println(ok(reply))
			},
		})
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "raw",
		Help: "raw <code> [value]",
		Func: func(ctx *ishell.Context) {
			if len(ctx.Args) < 1 {
				ctx.Println(bad("usage: raw <code> [value]"))
				return
			}
			code, err := strconv.ParseUint(ctx.Args[0], 0, 8)
			if err != nil {
				ctx.Println(bad(err.Error()))
				return
			}
			var value uint16
			if len(ctx.Args) > 1 {
				if value, err = parseValue(ctx.Args[1]); err != nil {
					ctx.Println(bad(err.Error()))
					return
				}
			}
			reply, err := sess.client.SendCode(uint8(code), value)
			if err != nil {
				ctx.Println(bad(err.Error()))
				return
			}
			ctx.Printf("%q\n", reply)
		},
	})

	if sess.sim != nil {
		shell.AddCmd(&ishell.Cmd{
			Name: "status",
			Help: "show simulator motor state",
			Func: func(ctx *ishell.Context) {
				snap, err := sess.sim.Snapshot(context.Background())
				if err != nil {
					ctx.Println(bad(err.Error()))
					return
				}
				m := snap.Motor
				ctx.Printf("state=%s current=%d last=%d steps=%d speed=%d initialized=%v lines=%v\n",
					m.State, m.Current, m.Last, m.Steps, m.Speed, m.Initialized, snap.Lines)
			},
		})
	}

	shell.Run()
	return nil
}
