// Command presispool is the print spooler's entry point: it loads
// configuration, wires the type registry, printer registry, job store,
// and background reactor together, and runs the interactive (or batch)
// command loop against stdin until quit or EOF.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/presilabs/presispool/internal/archive"
	"github.com/presilabs/presispool/internal/cli"
	"github.com/presilabs/presispool/internal/config"
	"github.com/presilabs/presispool/internal/connector"
	"github.com/presilabs/presispool/internal/core"
	"github.com/presilabs/presispool/internal/eventsink"
	"github.com/presilabs/presispool/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	batchPath := flag.String("batch", "", "path to a batch command file; stdin is used if omitted")
	flag.Parse()

	cfg := config.LoadFromEnv()
	if *configPath != "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("presispool: %v", err)
		}
		cfg = fileCfg
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("presispool: invalid configuration: %v", err)
	}

	logger := log.New(os.Stderr, "presispool: ", log.LstdFlags)
	sinks := eventsink.Multi{eventsink.NewLogging(logger)}

	if cfg.Archive.Enabled {
		if err := archive.Init(cfg.Archive.Path); err != nil {
			log.Fatalf("presispool: %v", err)
		}
		defer archive.Close()
		sinks = append(sinks, archive.NewRecorder())
	}

	var sender *webhook.Sender
	if cfg.Webhook.Enabled {
		sender = webhook.New(webhook.Config{
			URL:         cfg.Webhook.URL,
			Secret:      cfg.Webhook.Secret,
			MaxRetries:  cfg.Webhook.MaxRetries,
			RetryDelay:  cfg.Webhook.RetryDelay,
			WorkerCount: cfg.Webhook.WorkerCount,
		})
		sender.Start()
		defer sender.Stop()
		sinks = append(sinks, sender)
	}

	var sink eventsink.Sink = sinks

	var conn connector.Connector
	var err error
	switch cfg.Connector.Kind {
	case "tcp":
		conn = connector.NewTCPConnector(cfg.Printers.Endpoints, cfg.Connector.DialTimeout)
	default:
		conn, err = connector.NewFileConnector(cfg.Connector.SpoolDir)
		if err != nil {
			log.Fatalf("presispool: %v", err)
		}
	}

	registry := core.NewRegistry()
	printers := core.NewPrinterRegistry(cfg.Store.MaxPrinters, sink)
	jobs := core.NewJobStore(cfg.Store.MaxJobs, printers, registry, conn, sink, cfg.Store.ExpirationGrace)

	reactor := core.NewReactor(jobs, sink)
	reactor.Run()
	defer reactor.Stop()

	spooler := &cli.Spooler{
		Registry: registry,
		Printers: printers,
		Jobs:     jobs,
		Reactor:  reactor,
		Sink:     sink,
	}

	if *batchPath != "" {
		f, err := os.Open(*batchPath)
		if err != nil {
			log.Fatalf("presispool: %v", err)
		}
		defer f.Close()
		spooler.Run(f, os.Stdout, false)
		return
	}

	fmt.Println("presispool ready")
	spooler.Run(os.Stdin, os.Stdout, true)
}
