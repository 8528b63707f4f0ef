// Command irve is the RV32IMA_Zicsr_Zifencei simulator's front end: it
// parses flags with getopt/v2 exactly as the teacher's main.go does, loads
// one or more memory images into a fresh hart, and then either runs the
// hart to completion, hands it to the interactive monitor, or exposes it
// over a GDB debug stub, following the same signal-driven shutdown shape
// as the teacher's SIGINT/SIGTERM loop.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/angry-goose-initiative/irve-sub000/config"
	"github.com/angry-goose-initiative/irve-sub000/debugstub"
	"github.com/angry-goose-initiative/irve-sub000/emu/hart"
	"github.com/angry-goose-initiative/irve-sub000/emu/memmap"
	"github.com/angry-goose-initiative/irve-sub000/emu/regfile"
	"github.com/angry-goose-initiative/irve-sub000/loader"
	"github.com/angry-goose-initiative/irve-sub000/monitor"
	"github.com/angry-goose-initiative/irve-sub000/platform/debugsink"
	"github.com/angry-goose-initiative/irve-sub000/platform/uart"
	"github.com/angry-goose-initiative/irve-sub000/util/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file (YAML)")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optImageRoot := getopt.StringLong("image-root", 'r', "", "Base directory for bare image names")
	optFuzz := getopt.BoolLong("fuzz-registers", 0, "Initialize general registers with random garbage")
	optDebugPort := getopt.IntLong("debug-port", 0, 0, "Start a GDB remote serial stub on this TCP port")
	optMonitor := getopt.BoolLong("monitor", 0, "Drop into the interactive monitor instead of free-running")
	optLogAsync := getopt.BoolLong("log-async", 0, "Log through a buffered async queue instead of inline")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		return 0
	}

	cfg := config.Default()
	if *optConfig != "" {
		var err error
		cfg, err = config.LoadFile(*optConfig, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	if *optLogFile != "" {
		cfg.LogFile = *optLogFile
	}
	if *optImageRoot != "" {
		cfg.ImageRoot = *optImageRoot
	}
	if *optFuzz {
		cfg.FuzzRegisters = true
	}
	if *optDebugPort != 0 {
		cfg.DebugPort = *optDebugPort
	}
	if *optMonitor {
		cfg.Monitor = true
	}
	if *optLogAsync {
		cfg.LogAsync = true
	}
	cfg.ImagePaths = append(cfg.ImagePaths, getopt.Args()...)

	if len(cfg.ImagePaths) == 0 {
		fmt.Fprintln(os.Stderr, "irve: at least one memory image is required")
		getopt.Usage()
		return 1
	}

	var logFile *os.File
	if cfg.LogFile != "" {
		var err error
		logFile, err = os.Create(cfg.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "irve: ", err)
			return 1
		}
		defer logFile.Close()
	}

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	handler := logger.NewHandler(logFile, &slog.HandlerOptions{Level: level}, false, cfg.LogAsync)
	defer handler.Stop()
	log := slog.New(handler)
	slog.SetDefault(log)

	log.Info("irve starting", "images", cfg.ImagePaths)

	mem := memmap.New()
	sink := debugsink.New(os.Stdout)
	mem.Debug = sink
	mem.UART = uart.New(os.Stdout)

	target := loader.NewMemTarget(mem)
	for _, path := range cfg.ImagePaths {
		if err := loader.Load(path, cfg.ImageRoot, target, true); err != nil {
			log.Error("failed to load image", "path", path, "error", err)
			return 1
		}
	}

	h := hart.New(mem)
	if cfg.FuzzRegisters {
		regfile.Reset(h.Regs, true, rand.New(rand.NewSource(int64(os.Getpid()))))
		log.Info("general registers seeded with garbage for uninitialized-read testing")
	}
	h.Semihost = func(b byte) { sink.WriteByte(b) }

	var debug *debugstub.Server
	if cfg.DebugPort != 0 {
		debug = debugstub.New(h, log)
		if err := debug.Start(cfg.DebugPort); err != nil {
			log.Error("failed to start debug stub", "error", err)
			return 1
		}
		log.Info("debug stub listening", "port", cfg.DebugPort)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if cfg.Monitor {
			monitor.New(h, log).Run()
			return
		}
		h.RunUntil(0)
	}()

	select {
	case <-done:
		log.Info("guest exited", "instructions", h.InstCount())
	case <-sigChan:
		log.Info("received shutdown signal")
	}

	sink.Flush()
	if debug != nil {
		debug.Stop()
	}
	return 0
}
