// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command gatewayctl is the CLI companion to gatewayd: it starts,
// stops, and reports the status of a control-plane daemon by reading
// its on-disk gateway record and confirming PID liveness (spec §6
// "gateway start/stop/status").
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/groupsio/harnessd/internal/config"
	"github.com/groupsio/harnessd/internal/gateway"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "stop":
		err = runStop(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "gatewayctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gatewayctl <start|stop|status> [flags]")
}

func recordPath(runtimeDir string) string {
	if runtimeDir == "" {
		cfg := &config.Config{}
		cfg.ApplyEnv()
		loader := config.NewLoader()
		c, err := loader.LoadWithDefaults(loader.FindConfig())
		if err == nil {
			return c.GatewayRecordPath()
		}
		return filepath.Join(".", "gateway.json")
	}
	return filepath.Join(runtimeDir, "gateway.json")
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	port := fs.Int("port", 0, "listen port")
	binary := fs.String("binary", "gatewayd", "path to the gatewayd binary")
	runtimeDir := fs.String("runtime-dir", "", "runtime directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := recordPath(*runtimeDir)
	if rec, err := gateway.ReadRecord(path); err == nil && processAlive(rec.PID) {
		fmt.Printf("gateway already running: pid=%d port=%d\n", rec.PID, rec.Port)
		return nil
	}

	cmdArgs := []string{}
	if *port > 0 {
		cmdArgs = append(cmdArgs, "-port", strconv.Itoa(*port))
	}
	cmd := exec.Command(*binary, cmdArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start gatewayd: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("detach gatewayd: %w", err)
	}

	for i := 0; i < 50; i++ {
		if rec, err := gateway.ReadRecord(path); err == nil && processAlive(rec.PID) {
			fmt.Printf("gateway started: pid=%d port=%d\n", rec.PID, rec.Port)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("gatewayd did not publish a gateway record within 5s")
}

func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	force := fs.Bool("force", false, "send SIGKILL instead of SIGTERM")
	runtimeDir := fs.String("runtime-dir", "", "runtime directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := recordPath(*runtimeDir)
	rec, err := gateway.ReadRecord(path)
	if err != nil {
		fmt.Println("gateway status: stopped")
		return nil
	}
	if !processAlive(rec.PID) {
		fmt.Println("gateway status: stopped")
		return gateway.RemoveRecord(path)
	}

	sig := syscall.SIGTERM
	if *force {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(rec.PID, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", rec.PID, err)
	}
	fmt.Printf("gateway stop requested: pid=%d\n", rec.PID)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	runtimeDir := fs.String("runtime-dir", "", "runtime directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := recordPath(*runtimeDir)
	rec, err := gateway.ReadRecord(path)
	if err != nil || !processAlive(rec.PID) {
		fmt.Println("gateway status: stopped")
		os.Exit(1)
	}
	fmt.Printf("gateway status: running pid=%d port=%d startedAt=%s\n", rec.PID, rec.Port, rec.StartedAt)
	return nil
}

// processAlive confirms a PID is a live process, matching the teacher's
// use of mitchellh/go-ps rather than a bare kill(pid, 0) probe.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := ps.FindProcess(pid)
	return err == nil && proc != nil
}
