// Copyright (c) 2026 DMC Robo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/dmc-robo/teleop_bridge/internal/app"
	"github.com/dmc-robo/teleop_bridge/internal/config"
)

func main() {
	configPath := flag.String("config", "./bridge_config.txt", "path to configuration file")
	input := flag.String("input", "", "replay controller lines from a file instead of the serial port")
	flag.Parse()

	log.Println("starting teleop-bridge (serial controller → motor/cmd)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunBridge(ctx, *input); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
