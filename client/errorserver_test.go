package client

import (
	"net/http"
	"sort"
	"sync"
)

// An ErrorServer wraps another http.Handler and injects errors as
// described by a playbook given to Reset. Each request increments a count
// starting at 0. When the count reaches a play's When, the server answers
// with the play's Status and Body instead of passing the request on.
// This is safe for concurrent use.
type ErrorServer struct {
	h http.Handler

	m        sync.Mutex
	count    int
	playbook []Play
}

type Play struct {
	When   int
	Status int
	Body   string
}

func (s *ErrorServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.m.Lock()
	count := s.count
	s.count++
	for len(s.playbook) > 0 && s.playbook[0].When <= count {
		p := s.playbook[0]
		s.playbook = s.playbook[1:]
		if p.When < count {
			// more than one play had same count. Ignore the rest.
			continue
		}
		s.m.Unlock()
		w.WriteHeader(p.Status)
		w.Write([]byte(p.Body))
		return
	}
	s.m.Unlock()
	s.h.ServeHTTP(w, req)
}

func (s *ErrorServer) Reset(playbook []Play) {
	s.m.Lock()
	s.count = 0
	s.playbook = append([]Play{}, playbook...)
	sort.Sort(byWhen(s.playbook))
	s.m.Unlock()
}

type byWhen []Play

func (p byWhen) Len() int           { return len(p) }
func (p byWhen) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p byWhen) Less(i, j int) bool { return p[i].When < p[j].When }
