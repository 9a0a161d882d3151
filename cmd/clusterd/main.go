package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/roasbeef/holon/internal/build"
	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/persistence"
	"github.com/roasbeef/holon/internal/remote"
	"github.com/roasbeef/holon/internal/timer"
	"github.com/roasbeef/holon/internal/wire"
)

func main() {
	var (
		self        = flag.String("self", "", "this node's ID, as name@host:port")
		listenAddr  = flag.String("listen", ":7946", "host:port to accept cluster connections on")
		seeds       = flag.String("seeds", "", "comma-separated host:port seed addresses")
		secret      = flag.String("secret", "", "shared secret used to HMAC-sign cluster envelopes")
		heartbeatMs = flag.Int("heartbeat-ms", 0, "gossip/heartbeat period in ms (0 selects the cluster default)")
		dataDir     = flag.String("data-dir", "~/.holon/data", "directory for snapshot/timer state (empty uses an in-memory, non-durable store)")
		logDir      = flag.String("log-dir", "~/.holon/logs", "directory for log files (empty to disable file logging)")
		maxLogFiles = flag.Int("max-log-files", build.DefaultMaxLogFiles, "maximum number of rotated log files to keep")
		maxLogSize  = flag.Int("max-log-file-size", build.DefaultMaxLogFileSize, "maximum log file size in MB before rotation")
	)
	flag.Parse()

	if *self == "" {
		log.Fatalf("-self is required, e.g. -self=node1@127.0.0.1:7946")
	}

	expandHome := func(path string) string {
		expanded := os.ExpandEnv(path)
		if expanded == path && len(path) > 0 && path[0] == '~' {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("failed to get home directory: %v", err)
			}
			expanded = home + path[1:]
		}
		return expanded
	}

	logDirExpanded := expandHome(*logDir)

	var logRotator *build.RotatingLogWriter
	if logDirExpanded != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&build.LogRotatorConfig{
			LogDir:         logDirExpanded,
			MaxLogFiles:    *maxLogFiles,
			MaxLogFileSize: *maxLogSize,
		})
		if err != nil {
			log.Printf("failed to init log rotator: %v (continuing without file logging)", err)
			logRotator = nil
		} else {
			defer logRotator.Close()

			multiWriter := io.MultiWriter(os.Stderr, logRotator)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags)
		}
	}

	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))
	if logRotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(logRotator))
		log.Printf("log file rotation enabled: dir=%s, max_files=%d, max_size=%dMB",
			logDirExpanded, *maxLogFiles, *maxLogSize)
	}
	combined := build.NewHandlerSet(handlers...)
	rootLogger := btclog.NewSLogger(combined)

	actor.UseLogger(rootLogger.WithPrefix("ACTR"))
	cluster.UseLogger(rootLogger.WithPrefix("CLUS"))
	remote.UseLogger(rootLogger.WithPrefix("RMTE"))
	timer.UseLogger(rootLogger.WithPrefix("TMER"))

	selfID, err := wire.ParseNodeID(*self)
	if err != nil {
		log.Fatalf("invalid -self: %v", err)
	}

	var seedAddrs []string
	if *seeds != "" {
		for _, s := range strings.Split(*seeds, ",") {
			if s = strings.TrimSpace(s); s != "" {
				seedAddrs = append(seedAddrs, s)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl, err := cluster.Join(ctx, cluster.Config{
		Self:        selfID,
		ListenAddr:  *listenAddr,
		Seeds:       seedAddrs,
		Secret:      []byte(*secret),
		HeartbeatMs: *heartbeatMs,
	})
	if err != nil {
		log.Fatalf("failed to join cluster: %v", err)
	}
	log.Printf("joined cluster as %s, listening on %s", selfID, *listenAddr)

	actorSystem := actor.NewActorSystem()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := actorSystem.Shutdown(shutdownCtx); err != nil {
			log.Printf("actor system shutdown incomplete: %v (some goroutines may have leaked)", err)
		}
	}()

	node := remote.NewNode(actorSystem, cl)
	defer node.Close()

	if _, err := adminsvc.Register(cl, node); err != nil {
		log.Fatalf("failed to start admin actor: %v", err)
	}
	log.Println("admin actor started")

	var storage persistence.StorageAdapter
	dataDirExpanded := expandHome(*dataDir)
	if dataDirExpanded == "" {
		storage = persistence.NewMemoryAdapter()
		log.Printf("warning: running with an in-memory store, state will not survive a restart")
	} else {
		fileStore, err := persistence.NewFileAdapter(dataDirExpanded, true)
		if err != nil {
			log.Fatalf("failed to open data directory %s: %v", dataDirExpanded, err)
		}
		defer fileStore.Close()
		storage = fileStore
	}

	timerSvc, err := timer.Start(ctx, actorSystem, timer.Config{
		ID:      "timer",
		Storage: storage,
	})
	if err != nil {
		log.Fatalf("failed to start timer service: %v", err)
	}
	defer timerSvc.Close()
	log.Println("timer service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received %v, leaving cluster and shutting down (send again to force exit)...", sig)
		cancel()

		sig = <-sigCh
		log.Printf("received %v again, forcing immediate exit", sig)
		os.Exit(1)
	}()

	<-ctx.Done()

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer leaveCancel()
	if err := cl.Leave(leaveCtx); err != nil {
		log.Printf("error leaving cluster: %v", err)
	}
}
