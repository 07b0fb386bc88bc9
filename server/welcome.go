package server

import (
	"expvar"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Version is reported by the welcome route. It is set at build time.
var Version = "dev"

var (
	xLintRuns      = expvar.NewInt("prsvtools.lint.runs")
	xLintPackages  = expvar.NewInt("prsvtools.lint.packages")
	xReconcileRuns = expvar.NewInt("prsvtools.reconcile.runs")
	xReconcileBags = expvar.NewInt("prsvtools.reconcile.bags")
	xShared        = expvar.NewInt("prsvtools.reconcile.shared")
	xErrors        = expvar.NewInt("prsvtools.errors")
)

// WelcomeHandler handles GET /.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "prsvcheck (%s)\n", Version)
}

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	expvar.Handler().ServeHTTP(w, r)
}
