package main

import (
	"fmt"
	"github.com/fzft/go-tcp-reactor/cmd"
	"github.com/fzft/go-tcp-reactor/config"
	"github.com/fzft/go-tcp-reactor/log"
	"github.com/fzft/go-tcp-reactor/server"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "cli" {
		os.Exit(cmd.RunCLI(os.Args[2:]))
	}

	cfg := config.Default()
	if len(os.Args) > 1 {
		loaded, err := config.LoadAndValidate(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := log.InitLoggerAt(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	f := server.NewFactory(cfg.Factory())
	f.SetListener(server.ListenerFunc(func(c *server.Conn, data []byte) bool {
		if _, err := c.Write(data); err != nil {
			log.Logger.Warn("echo write failed", zap.String("conn", c.ID()), zap.Error(err))
		}
		return true
	}))

	events := make(server.EventChan, 256)
	f.SetEventPublisher(events)
	go pumpEvents(events)

	if err := f.Start(); err != nil {
		log.Logger.Error("server failed to start", zap.Error(err))
		os.Exit(1)
	}

	<-sigCh
	f.Stop()
	log.Logger.Info("shutting down server")
}

func pumpEvents(events server.EventChan) {
	for ev := range events {
		switch ev.Type {
		case server.EventListening:
			log.Logger.Info("listening", zap.String("factory", ev.Factory), zap.Int("port", ev.Port))
		case server.EventConnOpened:
			log.Logger.Info("connection opened", zap.String("conn", ev.ConnID), zap.String("remote", ev.Remote))
		case server.EventConnClosed:
			if ev.Err != nil {
				log.Logger.Info("connection closed", zap.String("conn", ev.ConnID), zap.Error(ev.Err))
			} else {
				log.Logger.Info("connection closed", zap.String("conn", ev.ConnID))
			}
		case server.EventServerException:
			log.Logger.Error("server exception", zap.String("factory", ev.Factory), zap.Error(ev.Err))
		}
	}
}
