// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mwaldner/veriflow/internal/config"
	"github.com/mwaldner/veriflow/internal/server"
)

func main() {
	cmd := &cli.Command{
		Name:   "veriflow",
		Usage:  "Verification and confirmation engine for privileged account operations",
		Flags:  config.Flags(),
		Action: server.Run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
