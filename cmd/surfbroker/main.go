// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// surfbroker is the MCP-to-browser-extension automation broker. It
// speaks MCP over stdio (or an alternative line-delimited JSON-RPC
// "script mode") to an agent, and forwards browser-tool calls to a
// single cooperating browser extension over a localhost WebSocket.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/logging"
	"github.com/robmacrae/surfbroker/internal/model"
	"github.com/robmacrae/surfbroker/internal/tools"
	"github.com/robmacrae/surfbroker/internal/transport"
)

var (
	debugFlag      string
	logFileFlag    string
	portFlag       int
	childFlag      bool
	scriptModeFlag bool
)

func main() {
	root := &cobra.Command{
		Use:   "surfbroker",
		Short: "MCP broker for browser automation via a companion extension",
		RunE:  run,
	}
	root.Flags().StringVar(&debugFlag, "debug", "", "enable debug mode; pass no_truncate for untruncated trail logs")
	root.Flags().Lookup("debug").NoOptDefVal = "on"
	root.Flags().StringVar(&logFileFlag, "log-file", "", "trail log directory (defaults to $HOME/.surfbroker/logs)")
	root.Flags().IntVar(&portFlag, "port", 5555, "localhost port the extension bridge listens on")
	root.Flags().BoolVar(&childFlag, "child", false, "internal: marks this process as a hot-reload child")
	_ = root.Flags().MarkHidden("child")
	root.Flags().BoolVar(&scriptModeFlag, "script-mode", false, "speak line-delimited JSON-RPC on stdio instead of MCP")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logging.SetDebug(debugFlag != "")

	if debugFlag != "" && !childFlag {
		return runWrapper()
	}
	return runBroker()
}

func debugMode() model.DebugMode {
	switch debugFlag {
	case "":
		return model.DebugOff
	case "no_truncate":
		return model.DebugFull
	default:
		return model.DebugTruncate
	}
}

func logDir() string {
	if logFileFlag != "" {
		return logFileFlag
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".surfbroker", "logs")
}

func runBroker() error {
	mode := logging.ModeTruncate
	if debugMode() == model.DebugFull {
		mode = logging.ModeFull
	}
	registry, err := logging.NewRegistry(logDir(), mode)
	if err != nil {
		return fmt.Errorf("surfbroker: init logging: %w", err)
	}
	defer registry.Close()

	mgr := connection.NewManager(connection.Config{Port: portFlag, DebugMode: debugMode()}, registry)
	reg := tools.NewRegistry()
	mgr.SetDispatcher(reg)

	logging.Diag.Info("surfbroker starting", "port", portFlag, "script_mode", scriptModeFlag)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go watchReload(cancel)

	if scriptModeFlag {
		sm := transport.NewScriptMode(mgr, registry.Server())
		return sm.Serve(ctx, os.Stdin, os.Stdout)
	}

	mcpTransport := transport.NewMCPStdio(mgr, registry.Server())
	return mcpTransport.Serve(ctx)
}

// watchReload polls the reload_mcp sentinel and exits 42 once an agent
// has asked the broker to restart, giving the in-flight tool response a
// brief window to flush to stdout first.
func watchReload(cancel context.CancelFunc) {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for range t.C {
		if connection.ReloadRequested {
			time.Sleep(500 * time.Millisecond)
			cancel()
			os.Exit(42)
		}
	}
}

// runWrapper spawns a --child copy of this binary, pumping the parent's
// stdio through it, and respawns on exit code 42 (hot reload).
func runWrapper() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("surfbroker: resolve executable: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		childArgs := append(os.Args[1:], "--child")
		c := exec.Command(self, childArgs...)
		c.Stderr = os.Stderr

		stdin, err := c.StdinPipe()
		if err != nil {
			return err
		}
		stdout, err := c.StdoutPipe()
		if err != nil {
			return err
		}
		if err := c.Start(); err != nil {
			return fmt.Errorf("surfbroker: start child: %w", err)
		}

		done := make(chan struct{})
		go func() { io.Copy(stdin, os.Stdin); stdin.Close() }()
		go func() { io.Copy(os.Stdout, stdout); close(done) }()

		waitErr := make(chan error, 1)
		go func() { waitErr <- c.Wait() }()

		select {
		case sig := <-sigCh:
			_ = sig
			_ = c.Process.Kill()
			<-waitErr
			return nil
		case err := <-waitErr:
			<-done
			if exitErr, ok := err.(*exec.ExitError); ok {
				if exitErr.ExitCode() == 42 {
					logging.Diag.Info("child requested reload, respawning")
					time.Sleep(100 * time.Millisecond)
					continue
				}
				os.Exit(exitErr.ExitCode())
			} else if err != nil {
				return err
			}
			return nil
		}
	}
}
