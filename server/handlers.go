package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/ledger"
	"github.com/nypl/prsvtools/lint"
	"github.com/nypl/prsvtools/reconcile"
	"github.com/nypl/prsvtools/store"
)

// LintRequest is the body of POST /lint. Packages are package folders.
// Each folder in Directories is a directory of packages.
type LintRequest struct {
	Packages    []string `json:"packages"`
	Directories []string `json:"directories"`
}

// LintResponse is returned from POST /lint.
type LintResponse struct {
	Run     ledger.Run    `json:"run"`
	Summary *lint.Summary `json:"summary"`
}

// LintHandler handles requests to POST /lint.
func (s *RESTServer) LintHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req LintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	for _, p := range append(append([]string{}, req.Packages...), req.Directories...) {
		if !s.allowed(p) {
			writeError(w, http.StatusForbidden, fmt.Errorf("%s is not beneath an allowed root", p))
			return
		}
	}
	roots := append([]string{}, req.Packages...)
	for _, dir := range req.Directories {
		pkgs, err := lint.PackageDirs(dir)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		roots = append(roots, pkgs...)
	}
	if len(roots) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no packages given"))
		return
	}

	run := ledger.NewRun(ledger.KindLint)
	run.Note = ps.ByName("username")
	summary, err := lint.LintAll(roots)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	run.Finished = time.Now()
	xLintRuns.Add(1)
	xLintPackages.Add(int64(summary.Total))
	if err := s.record(run, summary); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Location", "/runs/"+run.ID)
	writeJSON(w, LintResponse{Run: run, Summary: summary})
}

// ReconcileRequest is the body of POST /reconcile. Full asks for every
// payload checksum to be verified, not only bag completeness.
type ReconcileRequest struct {
	Candidate     string `json:"candidate"`
	Authoritative string `json:"authoritative"`
	Full          bool   `json:"full"`
}

// ReconcileResponse is returned from POST /reconcile.
type ReconcileResponse struct {
	Run     ledger.Run        `json:"run"`
	Summary reconcile.Summary `json:"summary"`
	Clean   bool              `json:"clean"`
	Report  *reconcile.Report `json:"report"`
}

// ReconcileHandler handles requests to POST /reconcile. Requests naming
// the same locations while a reconciliation is running share its result.
func (s *RESTServer) ReconcileHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if req.Candidate == "" || req.Authoritative == "" {
		writeError(w, http.StatusBadRequest, errors.New("candidate and authoritative are required"))
		return
	}
	for _, p := range []string{req.Candidate, req.Authoritative} {
		if !s.allowed(p) {
			writeError(w, http.StatusForbidden, fmt.Errorf("%s is not beneath an allowed root", p))
			return
		}
	}

	key := fmt.Sprintf("%s\x00%s\x00%v", req.Candidate, req.Authoritative, req.Full)
	leader := false
	v, err := s.flights.Do(key, func() (interface{}, error) {
		leader = true
		return s.reconcile(req, ps.ByName("username"))
	})
	if !leader {
		xShared.Add(1)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := v.(*ReconcileResponse)
	w.Header().Set("Location", "/runs/"+resp.Run.ID)
	writeJSON(w, resp)
}

func (s *RESTServer) reconcile(req ReconcileRequest, user string) (*ReconcileResponse, error) {
	engine := s.Engine
	if req.Full {
		engine = engine.WithFixity()
	}
	run := ledger.NewRun(ledger.KindReconcile)
	run.Note = user
	report, err := engine.Reconcile(s.ctx, req.Candidate, req.Authoritative)
	if err != nil {
		return nil, err
	}
	run.Finished = time.Now()
	xReconcileRuns.Add(1)
	xReconcileBags.Add(int64(len(report.InBoth)))
	if err := s.record(run, report); err != nil {
		return nil, err
	}
	summary := report.Summary()
	return &ReconcileResponse{Run: run, Summary: summary, Clean: summary.Clean(), Report: report}, nil
}

// record saves the report in the archive and the run in the ledger.
func (s *RESTServer) record(run ledger.Run, report interface{}) error {
	err := ledger.Record(s.Ledger, s.Archive, run, report)
	if err != nil {
		log.Println("record", run.ID, err)
		raven.CaptureError(err, map[string]string{"run": run.ID})
	}
	return err
}

// RunsHandler handles requests to GET /runs. The optional query parameter
// "limit" caps how many runs are returned.
func (s *RESTServer) RunsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit := 0
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.Ledger.Runs(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, runs)
}

// RunInfo is returned from GET /runs/:id.
type RunInfo struct {
	Run      ledger.Run       `json:"run"`
	Findings []ledger.Finding `json:"findings"`
}

// RunHandler handles requests to GET /runs/:id.
func (s *RESTServer) RunHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	run, err := s.Ledger.Run(id)
	if err == nil {
		var info = RunInfo{Run: run}
		info.Findings, err = s.Ledger.Findings(id)
		if err == nil {
			writeJSON(w, info)
			return
		}
	}
	if errors.Cause(err) == ledger.ErrNoRun {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// ReportHandler handles requests to GET /runs/:id/report.
func (s *RESTServer) ReportHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	data, err := s.Archive.Load(ps.ByName("id"))
	if store.IsNotExist(err) {
		writeError(w, http.StatusNotFound, err)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(val); err != nil {
		log.Println("writeJSON:", err)
	}
}

// writeError sends err as the body of a response with the given status.
// Server errors are also sent to Sentry.
func writeError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		xErrors.Add(1)
		log.Println(err)
		raven.CaptureError(err, nil)
	}
	w.WriteHeader(status)
	fmt.Fprintln(w, err.Error())
}
