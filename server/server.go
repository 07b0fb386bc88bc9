// Package server runs package lints and bag reconciliations over HTTP and
// serves the history of past runs.
package server

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/facebookgo/httpdown"
	"github.com/golang/groupcache/singleflight"
	"github.com/julienschmidt/httprouter"

	"github.com/nypl/prsvtools/ledger"
	"github.com/nypl/prsvtools/reconcile"
	"github.com/nypl/prsvtools/store"
)

// RESTServer holds the configuration for the REST API server.
//
// Set the public fields and then call Run. Run will listen on the given
// port and handle requests. Do not change any fields after calling Run.
type RESTServer struct {
	// Port number to listen on. defaults to 14000
	PortNumber string

	// Ledger records every run. If nil an in-memory ledger is used and
	// history is lost when the server stops.
	Ledger ledger.Ledger

	// Archive keeps the full report of every run. If nil the reports are
	// kept in memory.
	Archive *ledger.Archive

	// Roots limits the directories requests may name. A path must lie
	// beneath one of them. If empty any path is allowed.
	Roots []string

	// Engine does the reconciliations. If nil the zero Engine is used.
	Engine *reconcile.Engine

	// Validator checks the API key on each request. If nil every request
	// is allowed.
	Validator TokenDecoder

	server  httpdown.Server    // used to close our listening socket
	flights singleflight.Group // reconciliations in progress, by request
	init    sync.Once
	ctx     context.Context // canceled by Stop
	cancel  context.CancelFunc
}

func (s *RESTServer) setup() {
	s.init.Do(func() {
		if s.Ledger == nil {
			l, err := ledger.NewQl("memory")
			if err != nil {
				panic("problem setting up ledger: " + err.Error())
			}
			s.Ledger = l
		}
		if s.Archive == nil {
			s.Archive = ledger.NewArchive(store.NewMemory())
		}
		if s.Engine == nil {
			s.Engine = &reconcile.Engine{}
		}
		if s.Validator == nil {
			s.Validator = NewNobodyDecoder()
		}
		for i := range s.Roots {
			s.Roots[i] = filepath.Clean(s.Roots[i])
		}
		s.ctx, s.cancel = context.WithCancel(context.Background())
	})
}

// Run starts the server and blocks listening for and handling http
// requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting prsvcheck server version %s", Version)
	if s.PortNumber == "" {
		s.PortNumber = "14000"
	}
	if len(s.Roots) == 0 {
		log.Println("No Roots given. Any path may be checked")
	}
	h := httpdown.HTTP{}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.Handler(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	log.Println("Listening on", s.PortNumber)
	return s.server.Wait()
}

// Stop cancels any reconciliations in progress and closes the listener,
// waiting for open requests to finish.
func (s *RESTServer) Stop() error {
	s.setup()
	s.cancel()
	if s.server == nil {
		return nil
	}
	return s.server.Stop()
}

// Handler returns the routes of the server. Run uses it, and tests may
// serve it directly.
func (s *RESTServer) Handler() http.Handler {
	s.setup()
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"POST", "/lint", RoleWrite, s.LintHandler},
		{"POST", "/reconcile", RoleWrite, s.ReconcileHandler},
		{"GET", "/runs", RoleRead, s.RunsHandler},
		{"GET", "/runs/:id", RoleRead, s.RunHandler},
		{"GET", "/runs/:id/report", RoleRead, s.ReportHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// allowed reports whether path lies beneath one of the configured roots.
func (s *RESTServer) allowed(path string) bool {
	if len(s.Roots) == 0 {
		return true
	}
	path = filepath.Clean(path)
	for _, root := range s.Roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenDecode(token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if role < leastRole {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized\n"))
			return
		}
		ps = append(ps, httprouter.Param{Key: "username", Value: user})
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
