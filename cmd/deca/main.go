package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/deca-sh/gateway/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "deca",
		Usage: "Deca gateway — multi-channel conversational agent dispatcher",
		Commands: []*cli.Command{
			gwHwd.cmd(),
			msgHwd.cmd(),
			cronjobHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
