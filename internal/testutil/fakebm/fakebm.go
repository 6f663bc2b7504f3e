// Package fakebm serves an in-memory balancer-manager page over httptest and
// applies edit requests the way httpd does.
package fakebm

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

// Path is where the fake page is served.
const Path = "/balancer-manager"

// Route is one worker of a fake cluster.
type Route struct {
	Name       string
	Worker     string
	LBSet      int
	Factor     float64
	RouteRedir string
	Elected    int
	Statuses   map[domain.StatusName]bool
}

// Cluster is one fake balancer.
type Cluster struct {
	Name   string
	Routes []*Route
	nonce  string
}

// NewRoute returns an ok route listening on host:8080.
func NewRoute(name string, lbset int, statuses ...domain.StatusName) *Route {
	r := &Route{
		Name:     name,
		Worker:   "http://" + name + ":8080",
		LBSet:    lbset,
		Factor:   1,
		Statuses: map[domain.StatusName]bool{domain.StatusOK: true},
	}
	for _, s := range statuses {
		r.Statuses[s] = true
	}
	return r
}

// NewCluster groups routes under name.
func NewCluster(name string, routes ...*Route) *Cluster {
	return &Cluster{Name: name, Routes: routes}
}

// Server is a fake balancer-manager.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	version    domain.Version
	clusters   []*Cluster
	edits      int
	lastEdit   url.Values
	ignore     bool
	editStatus int
	pageStatus int
}

// New starts a fake page for httpd version (e.g. "2.4.41").
func New(version string, clusters ...*Cluster) *Server {
	s := &Server{version: domain.MustParseVersion(version), clusters: clusters}
	for _, c := range clusters {
		c.nonce = uuid.NewString()
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the balancer-manager URL.
func (s *Server) URL() string { return s.Server.URL + Path }

// EditRequests counts the edit submissions received, accepted or not.
func (s *Server) EditRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edits
}

// LastEdit returns the parameters of the last edit submission.
func (s *Server) LastEdit() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEdit
}

// IgnoreEdits makes the server answer edits with the unchanged page.
func (s *Server) IgnoreEdits(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignore = ignore
}

// FailEdits answers edits with code. Zero restores normal behaviour.
func (s *Server) FailEdits(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editStatus = code
}

// FailPages answers page fetches with code. Zero restores normal behaviour.
func (s *Server) FailPages(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageStatus = code
}

// SetStatus changes a flag behind the client's back.
func (s *Server) SetStatus(cluster, route string, name domain.StatusName, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.route(cluster, route); r != nil {
		r.Statuses[name] = value
	}
}

// RemoveCluster drops a balancer from the page.
func (s *Server) RemoveCluster(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.clusters {
		if c.Name == name {
			s.clusters = append(s.clusters[:i], s.clusters[i+1:]...)
			return
		}
	}
}

// Status reads a flag as the server currently renders it.
func (s *Server) Status(cluster, route string, name domain.StatusName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.route(cluster, route); r != nil {
		return r.Statuses[name]
	}
	return false
}

func (s *Server) route(cluster, route string) *Route {
	for _, c := range s.clusters {
		if c.Name != cluster {
			continue
		}
		for _, r := range c.Routes {
			if r.Name == route || r.Worker == route {
				return r
			}
		}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != Path {
		http.NotFound(w, req)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := req.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	isEdit := req.Form.Get("w") != "" &&
		(req.Method == http.MethodPost || req.Form.Get(domain.LegacyDisableCode) != "")

	if isEdit {
		s.edits++
		s.lastEdit = req.Form
		if s.editStatus != 0 {
			http.Error(w, http.StatusText(s.editStatus), s.editStatus)
			return
		}
		if !s.ignore {
			s.apply(req.Form)
		}
	} else if s.pageStatus != 0 {
		http.Error(w, http.StatusText(s.pageStatus), s.pageStatus)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
	_, _ = w.Write([]byte(s.render()))
}

// apply mirrors httpd: a wrong nonce or an unknown worker is ignored.
func (s *Server) apply(form url.Values) {
	var (
		cluster *Cluster
		route   *Route
	)
	for _, c := range s.clusters {
		if c.Name != form.Get("b") {
			continue
		}
		cluster = c
		for _, r := range c.Routes {
			if r.Worker == form.Get("w") {
				route = r
			}
		}
	}
	if cluster == nil || route == nil || form.Get("nonce") != cluster.nonce {
		return
	}

	prefix := "w_"
	if s.version.Legacy() {
		prefix = ""
		switch form.Get(domain.LegacyDisableCode) {
		case "Disable":
			route.Statuses[domain.StatusDisabled] = true
		case "Enable":
			route.Statuses[domain.StatusDisabled] = false
		}
	} else {
		for _, spec := range domain.StatusesFor(s.version) {
			if !spec.Mutable {
				continue
			}
			if v := form.Get("w_status_" + spec.FormCode); v != "" {
				route.Statuses[spec.Name] = v == "1"
			}
		}
	}

	if v, err := strconv.ParseFloat(form.Get(prefix+"lf"), 64); err == nil {
		route.Factor = v
	}
	if v, err := strconv.Atoi(form.Get(prefix + "ls")); err == nil {
		route.LBSet = v
	}
	if _, ok := form[prefix+"rr"]; ok {
		route.RouteRedir = form.Get(prefix + "rr")
	}
}

func (s *Server) render() string {
	var b strings.Builder
	v := s.version

	b.WriteString("<!DOCTYPE HTML PUBLIC \"-//W3C//DTD HTML 3.2 Final//EN\">\n")
	b.WriteString("<html><head><title>Balancer Manager</title></head>\n")
	b.WriteString("<body><h1>Load Balancer Manager for fakebm.test</h1>\n\n")
	fmt.Fprintf(&b, "<dl><dt>Server Version: Apache/%s (Unix) OpenSSL/1.1.1k</dt>\n", v)
	if v.Legacy() {
		b.WriteString("<dt>Server Built: Aug 13 2013 17:29:28</dt>\n</dl>\n")
	} else {
		b.WriteString("<dt>Server Built: 2021-06-01T10:00:00</dt>\n</dl>\n")
	}

	for _, c := range s.clusters {
		b.WriteString("<hr />\n")
		if v.Legacy() {
			fmt.Fprintf(&b, "<h3>LoadBalancer Status for balancer://%s</h3>\n", c.Name)
			b.WriteString("<table><tr><th>StickySession</th><th>Timeout</th><th>FailoverAttempts</th><th>Method</th></tr>\n")
			b.WriteString("<tr><td> - </td><td>0</td><td>1</td><td>byrequests</td></tr>\n</table>\n<br />\n")
			b.WriteString("<table><tr><th>Worker URL</th><th>Route</th><th>RouteRedir</th><th>Factor</th><th>Set</th>" +
				"<th>Status</th><th>Elected</th><th>To</th><th>From</th></tr>\n")
		} else {
			fmt.Fprintf(&b, "<h3>LoadBalancer Status for <a href='%s?b=%s&amp;nonce=%s'>balancer://%s</a> [p0_%s]</h3>\n",
				Path, c.Name, c.nonce, c.Name, c.Name)
			b.WriteString("<table><tr><th>MaxMembers</th><th>StickySession</th><th>DisableFailover</th><th>Timeout</th>" +
				"<th>FailoverAttempts</th><th>Method</th><th>Path</th><th>Active</th></tr>\n")
			fmt.Fprintf(&b, "<tr><td>%d [%d Used]</td><td> (None) </td><td>Off</td><td>0</td><td>1</td>"+
				"<td>byrequests</td><td>/%s</td><td>Yes</td></tr>\n</table>\n<br />\n", len(c.Routes), len(c.Routes), c.Name)
			b.WriteString("<table><tr><th>Worker URL</th><th>Route</th><th>RouteRedir</th><th>Factor</th><th>Set</th>" +
				"<th>Status</th><th>Elected</th><th>Busy</th><th>Load</th><th>To</th><th>From</th></tr>\n")
		}

		for _, r := range c.Routes {
			link := fmt.Sprintf("%s?b=%s&amp;w=%s&amp;nonce=%s", Path, url.QueryEscape(c.Name), html.EscapeString(r.Worker), c.nonce)
			fmt.Fprintf(&b, "<tr>\n<td><a href='%s'>%s</a></td><td>%s</td><td>%s</td><td>%.2f</td><td>%d</td><td>%s</td><td>%d</td>",
				link, html.EscapeString(r.Worker), html.EscapeString(r.Name), html.EscapeString(r.RouteRedir),
				r.Factor, r.LBSet, s.statusCell(r), r.Elected)
			if !v.Legacy() {
				b.WriteString("<td>0</td><td>0</td>")
			}
			b.WriteString("<td>1.5K</td><td>  0 </td></tr>\n")
		}
		b.WriteString("</table>\n")
	}

	b.WriteString("<hr />\n</body></html>\n")
	return b.String()
}

func (s *Server) statusCell(r *Route) string {
	codes := []string{"Init"}
	// Page order puts Ok and Err last, as httpd does.
	specs := domain.StatusesFor(s.version)
	for _, spec := range specs[2:] {
		if r.Statuses[spec.Name] {
			codes = append(codes, spec.PageCode)
		}
	}
	for _, spec := range specs[:2] {
		if r.Statuses[spec.Name] {
			codes = append(codes, spec.PageCode)
		}
	}
	return strings.Join(codes, " ") + " "
}
