package reconcile

import (
	"sort"
	"time"

	"github.com/nypl/prsvtools/manifest"
)

// Outcome classifies a bag present in both locations.
type Outcome string

// The outcomes a bag in both locations can have.
const (
	Identical              Outcome = "identical"
	Mismatched             Outcome = "mismatched"
	BothInvalid            Outcome = "both_invalid"
	InvalidOnCandidate     Outcome = "invalid_on_candidate"
	InvalidOnAuthoritative Outcome = "invalid_on_authoritative"
)

// Mismatch describes the difference between two valid copies of a bag.
type Mismatch struct {
	Result manifest.Result `json:"result" yaml:"result"`

	// AuthoritativePaths are the files on the authoritative side whose
	// content differs from the candidate copy.
	AuthoritativePaths []string `json:"authoritative_paths" yaml:"authoritative_paths"`

	// The manifest entries of the differing files on each side.
	Candidate     []manifest.Entry `json:"candidate" yaml:"candidate"`
	Authoritative []manifest.Entry `json:"authoritative" yaml:"authoritative"`
}

// A Report is the full result of one reconciliation. All id lists are
// sorted.
type Report struct {
	CandidateRoot     string    `json:"candidate_root" yaml:"candidate_root"`
	AuthoritativeRoot string    `json:"authoritative_root" yaml:"authoritative_root"`
	Started           time.Time `json:"started" yaml:"started"`
	Finished          time.Time `json:"finished" yaml:"finished"`

	OnlyInCandidate     []string `json:"only_in_candidate" yaml:"only_in_candidate"`
	OnlyInAuthoritative []string `json:"only_in_authoritative" yaml:"only_in_authoritative"`
	InBoth              []string `json:"in_both" yaml:"in_both"`

	Identical              []string            `json:"identical" yaml:"identical"`
	Mismatched             map[string]Mismatch `json:"mismatched" yaml:"mismatched"`
	BothInvalid            []string            `json:"both_invalid" yaml:"both_invalid"`
	InvalidOnCandidate     []string            `json:"invalid_on_candidate" yaml:"invalid_on_candidate"`
	InvalidOnAuthoritative []string            `json:"invalid_on_authoritative" yaml:"invalid_on_authoritative"`

	// Problems found by the validator, keyed by bag id, for each side.
	CandidateProblems     map[string][]string `json:"candidate_problems,omitempty" yaml:"candidate_problems,omitempty"`
	AuthoritativeProblems map[string][]string `json:"authoritative_problems,omitempty" yaml:"authoritative_problems,omitempty"`

	// Every directory found for a bag id seen more than once on a side,
	// in walk order. Only the first was compared.
	CandidateDuplicates     map[string][]string `json:"candidate_duplicates,omitempty" yaml:"candidate_duplicates,omitempty"`
	AuthoritativeDuplicates map[string][]string `json:"authoritative_duplicates,omitempty" yaml:"authoritative_duplicates,omitempty"`
}

func newReport(candidate, authoritative string) *Report {
	return &Report{
		CandidateRoot:           candidate,
		AuthoritativeRoot:       authoritative,
		OnlyInCandidate:         []string{},
		OnlyInAuthoritative:     []string{},
		InBoth:                  []string{},
		Identical:               []string{},
		Mismatched:              make(map[string]Mismatch),
		BothInvalid:             []string{},
		InvalidOnCandidate:      []string{},
		InvalidOnAuthoritative:  []string{},
		CandidateProblems:       make(map[string][]string),
		AuthoritativeProblems:   make(map[string][]string),
		CandidateDuplicates:     make(map[string][]string),
		AuthoritativeDuplicates: make(map[string][]string),
	}
}

// Outcome returns the outcome for a bag id, or false if the bag was not in
// both locations.
func (r *Report) Outcome(id string) (Outcome, bool) {
	if _, ok := r.Mismatched[id]; ok {
		return Mismatched, true
	}
	for _, x := range []struct {
		o   Outcome
		ids []string
	}{
		{Identical, r.Identical},
		{BothInvalid, r.BothInvalid},
		{InvalidOnCandidate, r.InvalidOnCandidate},
		{InvalidOnAuthoritative, r.InvalidOnAuthoritative},
	} {
		i := sort.SearchStrings(x.ids, id)
		if i < len(x.ids) && x.ids[i] == id {
			return x.o, true
		}
	}
	return "", false
}

// MismatchedIDs returns the ids of the mismatched bags, sorted.
func (r *Report) MismatchedIDs() []string {
	result := make([]string, 0, len(r.Mismatched))
	for id := range r.Mismatched {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Summary holds the counts from a Report.
type Summary struct {
	OnlyInCandidate        int `json:"only_in_candidate" yaml:"only_in_candidate"`
	OnlyInAuthoritative    int `json:"only_in_authoritative" yaml:"only_in_authoritative"`
	InBoth                 int `json:"in_both" yaml:"in_both"`
	Identical              int `json:"identical" yaml:"identical"`
	Mismatched             int `json:"mismatched" yaml:"mismatched"`
	BothInvalid            int `json:"both_invalid" yaml:"both_invalid"`
	InvalidOnCandidate     int `json:"invalid_on_candidate" yaml:"invalid_on_candidate"`
	InvalidOnAuthoritative int `json:"invalid_on_authoritative" yaml:"invalid_on_authoritative"`
}

// Summary counts each list in the report.
func (r *Report) Summary() Summary {
	return Summary{
		OnlyInCandidate:        len(r.OnlyInCandidate),
		OnlyInAuthoritative:    len(r.OnlyInAuthoritative),
		InBoth:                 len(r.InBoth),
		Identical:              len(r.Identical),
		Mismatched:             len(r.Mismatched),
		BothInvalid:            len(r.BothInvalid),
		InvalidOnCandidate:     len(r.InvalidOnCandidate),
		InvalidOnAuthoritative: len(r.InvalidOnAuthoritative),
	}
}

// Clean is true when every bag is in both locations and identical.
func (s Summary) Clean() bool {
	return s.OnlyInCandidate == 0 && s.OnlyInAuthoritative == 0 && s.Identical == s.InBoth
}

// outcome is the result for one bag id, computed independently of the
// others and merged into the report afterwards.
type outcome struct {
	id            string
	kind          Outcome
	mismatch      Mismatch
	candidate     []string // validator problems
	authoritative []string
}

// add merges o into the report. Lists are sorted afterwards by finish, so
// the order outcomes are added in does not matter.
func (r *Report) add(o outcome) {
	switch o.kind {
	case Identical:
		r.Identical = append(r.Identical, o.id)
	case Mismatched:
		r.Mismatched[o.id] = o.mismatch
	case BothInvalid:
		r.BothInvalid = append(r.BothInvalid, o.id)
	case InvalidOnCandidate:
		r.InvalidOnCandidate = append(r.InvalidOnCandidate, o.id)
	case InvalidOnAuthoritative:
		r.InvalidOnAuthoritative = append(r.InvalidOnAuthoritative, o.id)
	}
	if len(o.candidate) > 0 {
		r.CandidateProblems[o.id] = o.candidate
	}
	if len(o.authoritative) > 0 {
		r.AuthoritativeProblems[o.id] = o.authoritative
	}
}

func (r *Report) finish() {
	sort.Strings(r.Identical)
	sort.Strings(r.BothInvalid)
	sort.Strings(r.InvalidOnCandidate)
	sort.Strings(r.InvalidOnAuthoritative)
	r.Finished = time.Now()
}
