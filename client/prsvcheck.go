package client

import (
	"fmt"
	"io/ioutil"
	"net/url"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/ledger"
	"github.com/nypl/prsvtools/server"
)

// Version returns the version the server reports on its welcome page.
func (c *Connection) Version() (string, error) {
	resp, err := c.get("/")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", statusError(resp)
	}
	text, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", errors.WithStack(err)
	}
	// the page reads "prsvcheck (version)"
	s := strings.TrimSpace(string(text))
	if i := strings.Index(s, "("); i >= 0 {
		s = strings.TrimSuffix(s[i+1:], ")")
	}
	return s, nil
}

// Lint asks the server to lint the given package folders and folders of
// packages. Paths are as the server sees them.
func (c *Connection) Lint(packages, directories []string) (*server.LintResponse, error) {
	var resp server.LintResponse
	err := c.post("/lint", server.LintRequest{Packages: packages, Directories: directories}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reconcile asks the server to reconcile two locations. It returns once
// the reconciliation has finished.
func (c *Connection) Reconcile(req server.ReconcileRequest) (*server.ReconcileResponse, error) {
	var resp server.ReconcileResponse
	if err := c.post("/reconcile", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Runs returns the most recent runs, newest first. A limit of 0 uses the
// server's default.
func (c *Connection) Runs(limit int) ([]ledger.Run, error) {
	path := "/runs"
	if limit > 0 {
		path += "?" + url.Values{"limit": {fmt.Sprint(limit)}}.Encode()
	}
	var runs []ledger.Run
	if err := c.getJSON(path, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Run returns a run and its findings.
func (c *Connection) Run(id string) (*server.RunInfo, error) {
	var info server.RunInfo
	if err := c.getJSON("/runs/"+url.PathEscape(id), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Report returns the archived report of a run. Lint and reconciliation
// reports have different shapes, so the report is returned as a generic
// JSON object.
func (c *Connection) Report(id string) (*jason.Object, error) {
	return c.doJasonGet("/runs/" + url.PathEscape(id) + "/report")
}
