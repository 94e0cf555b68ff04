package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/internal/relay/broker"
	"github.com/wtask/relay/internal/relay/history"
	"github.com/wtask/relay/internal/relay/transport"
)

func main() {
	logger, err := relay.NewLogger(os.Stdout, Config.LogLevel, Config.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid config:", err)
		os.Exit(1)
	}
	log := logger.WithField("version", Version)
	log.Infof("Started with config: %+v", Config)

	options := []broker.Option{
		broker.WithTick(Config.Tick),
		broker.WithPollInterval(Config.Tick),
		broker.WithMaxClients(Config.MaxClients),
		broker.WithQueueSize(Config.QueueSize),
	}
	if Config.HistoryGreets > 0 {
		stack, err := history.NewStack(Config.HistoryGreets)
		if err != nil {
			log.WithError(err).Error("Invalid config")
			os.Exit(1)
		}
		options = append(options, broker.WithHistory(stack, Config.HistoryGreets))
	}

	server, err := relay.NewServer(relay.DefaultBroker(options...), relay.WithLogger(logger))
	if err != nil {
		log.WithError(err).Error("Can't start relay server")
		os.Exit(1)
	}

	node := net.JoinHostPort(Config.IPAddress, fmt.Sprintf("%d", Config.Port))
	listener, err := net.Listen("tcp", node)
	if err != nil {
		log.WithError(err).Error("Unable to listen TCP")
		server.Shutdown(time.Second)
		os.Exit(1)
	}
	go server.Serve(listener)

	if Config.WebSocketAddress != "" {
		wsListener, err := transport.ListenWebSocket(Config.WebSocketAddress, Config.WebSocketPath)
		if err != nil {
			log.WithError(err).Error("Unable to listen WebSocket")
			server.Shutdown(time.Second)
			os.Exit(1)
		}
		go server.Serve(wsListener)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	log.Info("Relay server has started.")

	<-sig
	log.Info("Got stop signal")
	log.Info("Relay server stopped in ", server.Shutdown(10*time.Second), ", bye")
}
