package ledger

import (
	"encoding/json"
	"io/ioutil"
	"log"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/cache"
	"github.com/nypl/prsvtools/lint"
	"github.com/nypl/prsvtools/reconcile"
	"github.com/nypl/prsvtools/store"
)

// An Archive keeps the full report of each run as JSON in a store. Each
// kind of run has its own key prefix, e.g. "lint-<run id>.json".
type Archive struct {
	stores map[Kind]store.Store

	// Cache, if not nil, keeps copies of recently loaded reports.
	Cache cache.Cache
}

// the kinds of report an Archive holds, in the order Load looks for them
var archiveKinds = []Kind{KindReconcile, KindLint}

// NewArchive returns an archive kept in s.
func NewArchive(s store.Store) *Archive {
	a := &Archive{stores: make(map[Kind]store.Store)}
	for _, kind := range archiveKinds {
		a.stores[kind] = store.NewWithPrefix(s, string(kind)+"-")
	}
	return a
}

func reportKey(runID string) string {
	return runID + ".json"
}

// reportKind returns the kind of run which produces report.
func reportKind(report interface{}) (Kind, error) {
	switch report.(type) {
	case *lint.Summary:
		return KindLint, nil
	case *reconcile.Report:
		return KindReconcile, nil
	}
	return "", errors.Errorf("cannot record a %T", report)
}

// Save writes the report for a run, which must be a *lint.Summary or a
// *reconcile.Report. A run's report is written once.
func (a *Archive) Save(runID string, report interface{}) error {
	kind, err := reportKind(report)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode report %s", runID)
	}
	return store.Put(a.stores[kind], reportKey(runID), data)
}

// Load returns the JSON report for a run. If there is none, the error
// satisfies store.IsNotExist.
func (a *Archive) Load(runID string) ([]byte, error) {
	key := reportKey(runID)
	if a.Cache != nil {
		r, _, err := a.Cache.Get(key)
		if r != nil {
			defer r.Close()
			data, err := ioutil.ReadAll(store.NewReader(r))
			return data, errors.Wrapf(err, "read cached %s", key)
		} else if err != nil {
			log.Println("cache", key, err)
		}
	}
	data, err := a.get(key)
	if err != nil || a.Cache == nil {
		return data, err
	}
	w, err := a.Cache.Put(key)
	if err != nil {
		// another request is caching it, or it is already there
		return data, nil
	}
	w.Write(data)
	w.Close()
	return data, nil
}

// get looks for key under each kind's prefix in turn.
func (a *Archive) get(key string) ([]byte, error) {
	var err error
	for _, kind := range archiveKinds {
		var data []byte
		data, err = store.Get(a.stores[kind], key)
		if !store.IsNotExist(err) {
			return data, err
		}
	}
	return nil, err
}

// Decode reads the report for a run into v.
func (a *Archive) Decode(runID string, v interface{}) error {
	data, err := a.Load(runID)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode report %s", runID)
}

// Record saves a lint summary or reconciliation report in a and its run in
// l. Either of them may be nil.
func Record(l Ledger, a *Archive, run Run, report interface{}) error {
	if _, err := reportKind(report); err != nil {
		return err
	}
	if a != nil {
		if err := a.Save(run.ID, report); err != nil {
			return errors.Wrap(err, "archive")
		}
	}
	if l == nil {
		return nil
	}
	switch r := report.(type) {
	case *lint.Summary:
		return l.RecordLint(run, r.Results)
	case *reconcile.Report:
		return l.RecordReconcile(run, r)
	}
	return nil
}
