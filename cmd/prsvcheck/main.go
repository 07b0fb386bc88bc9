package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	raven "github.com/getsentry/raven-go"

	"github.com/nypl/prsvtools/cache"
	"github.com/nypl/prsvtools/ledger"
	"github.com/nypl/prsvtools/reconcile"
	"github.com/nypl/prsvtools/server"
	"github.com/nypl/prsvtools/store"
)

func main() {
	cfg, err := configure(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalln(err)
	}
	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			log.Fatalln("sentry:", err)
		}
		raven.SetRelease(server.Version)
	}

	l, err := ledger.Parse(cfg.Ledger)
	if err != nil {
		log.Fatalln("ledger:", err)
	}
	defer l.Close()
	s, err := store.ParseLocation(cfg.Archive)
	if err != nil {
		log.Fatalln("archive:", err)
	}

	archive := ledger.NewArchive(s)
	archive.Cache, err = openCache(cfg)
	if err != nil {
		log.Fatalln("cache:", err)
	}

	srv := &server.RESTServer{
		PortNumber: cfg.Port,
		Ledger:     l,
		Archive:    archive,
		Roots:      cfg.Roots,
		Engine:     &reconcile.Engine{Workers: cfg.Workers},
	}
	if cfg.Tokens != "" {
		srv.Validator, err = server.NewListDecoderFile(cfg.Tokens)
		if err != nil {
			log.Fatalln("tokens:", err)
		}
	} else {
		log.Println("No tokens file given. Every request is allowed")
	}

	go signalHandler(srv)
	if err := srv.Run(); err != nil {
		raven.CaptureErrorAndWait(err, nil)
		log.Println(err)
	}
}

func signalHandler(srv *server.RESTServer) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.Println("Received signal", sig)
	srv.Stop()
}

// openCache returns the report cache described by cfg, or nil if there is
// none. A cache on disk keeps what it held from the last run.
func openCache(cfg config) (cache.Cache, error) {
	size, _ := cfg.cacheBytes()
	if size == 0 {
		return nil, nil
	}
	var s store.Store = store.NewMemory()
	if cfg.CacheDir != "" {
		fs, err := store.NewFileSystem(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		s = fs
	}
	c := cache.NewLRU(s, int64(size))
	go c.Scan()
	log.Printf("Caching up to %s of reports", humanize.Bytes(uint64(size)))
	return c, nil
}
