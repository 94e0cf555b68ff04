package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wtask/relay/pkg/semver"
)

type (
	// Configuration - server configuration
	Configuration struct {
		// IPAddress - bind the address
		IPAddress string
		// Port - bind the port
		Port uint
		// WebSocketAddress - bind address of WebSocket listener, empty value disables it
		WebSocketAddress string
		// WebSocketPath - HTTP path to upgrade into WebSocket
		WebSocketPath string
		// Tick - duration of broadcast cycle
		Tick time.Duration
		// MaxClients - max num of connected clients, 0 - unlimited
		MaxClients int
		// QueueSize - max num of received messages waiting for broadcast
		QueueSize int
		// HistoryGreets - num of latest messages which is pushed to newly connected client
		HistoryGreets int
		// LogLevel - logrus level name
		LogLevel string
		// LogFormat - text or json
		LogFormat string
	}
)

const (
	// TickMultiplier - tick payload without time units
	TickMultiplier = 120
)

var (
	// Config - current configuration of the server
	Config = Configuration{
		IPAddress:     "127.0.0.1",
		Port:          6000,
		WebSocketPath: "/relay",
		Tick:          TickMultiplier * time.Millisecond,
		MaxClients:    256,
		QueueSize:     1024,
		LogLevel:      "info",
		LogFormat:     "text",
	}

	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// version - overwritten on build with -ldflags "-X main.version=..."
	version = "0.1.0"

	// Version - app version fingerprint
	Version string
)

func init() {
	out := flag.CommandLine.Output()
	printUsage := func() {
		fmt.Fprintf(out, "Launch fixed-frame text relay over TCP\n\n\t%s [options]\nOptions:\n\n", BinaryName)
		flag.PrintDefaults()
		fmt.Fprint(out, "\n")
	}
	printError := func(msg string) {
		fmt.Fprintf(out, "%s (v%s) error:\n\n\t%s\n", BinaryName, version, msg)
	}

	v, err := semver.Parse(version)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	Version = v.String()

	help, printVersion := false, false
	flag.BoolVar(&help, "help", false, "Print usage help")
	flag.BoolVar(&printVersion, "version", false, "Print version")
	flag.StringVar(&Config.IPAddress, "ip", Config.IPAddress, "Listen address")
	flag.UintVar(&Config.Port, "port", Config.Port, "Listen port")
	flag.StringVar(&Config.WebSocketAddress, "ws", "", "Listen address of WebSocket clients, like 127.0.0.1:6080. Disabled if empty.")
	flag.StringVar(&Config.WebSocketPath, "ws-path", Config.WebSocketPath, "HTTP path for WebSocket clients")
	tick := TickMultiplier
	flag.IntVar(&tick, "tick", tick, "Broadcast cycle in milliseconds.")
	flag.IntVar(&Config.MaxClients, "max-clients", Config.MaxClients, "Max num of connected clients, 0 - unlimited.")
	flag.IntVar(&Config.QueueSize, "queue-size", Config.QueueSize, "Max num of received messages waiting for broadcast.")
	flag.IntVar(
		&Config.HistoryGreets,
		"history-greets",
		0,
		"Num of latest messages which is pushed to newly connected client.",
	)
	flag.StringVar(&Config.LogLevel, "log-level", Config.LogLevel, "Log level: debug, info, warn, error.")
	flag.StringVar(&Config.LogFormat, "log-format", Config.LogFormat, "Log format: text or json.")

	flag.Parse()

	if help {
		printUsage()
		os.Exit(0)
	}
	if printVersion {
		fmt.Fprintln(out, BinaryName, Version)
		os.Exit(0)
	}

	if tick < 1 {
		printError("tick value should be greater or equal 1")
		os.Exit(1)
	}
	Config.Tick = time.Duration(tick) * time.Millisecond

	if Config.MaxClients < 0 {
		printError("max-clients value should be greater or equal 0")
		os.Exit(1)
	}
	if Config.QueueSize < 1 {
		printError("queue-size value should be greater or equal 1")
		os.Exit(1)
	}
	if Config.HistoryGreets < 0 {
		printError("history-greets value should be greater or equal 0")
		os.Exit(1)
	}

	fmt.Fprint(out, "Frame relay is launching, press Ctrl-C to stop...\n")
}
