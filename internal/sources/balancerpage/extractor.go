package balancerpage

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

const managerTitle = "Load Balancer Manager"

var (
	noncePattern     = regexp.MustCompile(`nonce=([0-9a-fA-F-]{36})`)
	clusterPattern   = regexp.MustCompile(`[?&]b=([^&]+)`)
	balancerPattern  = regexp.MustCompile(`balancer://([^\s\[\]<>]+)`)
	opensslPattern   = regexp.MustCompile(`OpenSSL/(\S+)`)
	bandwidthPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([A-Za-z]*)$`)
)

// Page is the normalised content of one balancer-manager page.
type Page struct {
	HTTPDVersion   domain.Version
	OpenSSLVersion string
	BuildDate      string // raw "Server Built" value
	ExtractedAt    time.Time
	Clusters       []ClusterFields
}

// ClusterFields holds one balancer:// section: its metadata row and its
// route rows, keyed by normalised column name.
type ClusterFields struct {
	Name   string
	Fields map[string]string
	Routes []RouteFields
}

// RouteFields is one route row.
type RouteFields struct {
	Fields map[string]string

	// Statuses carries every status the version knows, decoded from the
	// Status cell.
	Statuses map[domain.StatusName]bool

	// HealthCheck is true when the table carried the hc_* columns.
	HealthCheck bool
}

// Extract parses a balancer-manager document. Any structural surprise is a
// *domain.ParseError and no Page is returned.
func Extract(r io.Reader, at time.Time) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, &domain.ParseError{Reason: "invalid html", Err: err}
	}

	// Edit forms carry their own tables; they are not part of the status view.
	removeAll(doc, atom.Form)

	if !hasManagerHeading(doc) {
		return nil, &domain.ParseError{Reason: "not a balancer-manager page"}
	}

	page := &Page{ExtractedAt: at}
	if err := page.readServerInfo(doc); err != nil {
		return nil, err
	}

	schema, err := SchemaFor(page.HTTPDVersion)
	if err != nil {
		return nil, err
	}
	statuses := domain.StatusesFor(page.HTTPDVersion)

	sections, err := collectSections(doc)
	if err != nil {
		return nil, err
	}

	for _, sec := range sections {
		cluster, err := extractCluster(sec, schema, statuses)
		if err != nil {
			return nil, err
		}
		page.Clusters = append(page.Clusters, cluster)
	}

	return page, nil
}

func (p *Page) readServerInfo(doc *html.Node) error {
	for _, dt := range findAll(doc, atom.Dt) {
		text := textOf(dt)
		switch {
		case strings.HasPrefix(text, "Server Version:"):
			v, err := domain.ParseVersion(text)
			if err != nil {
				return &domain.ParseError{Reason: "invalid server version", Err: err}
			}
			p.HTTPDVersion = v
			if m := opensslPattern.FindStringSubmatch(text); m != nil {
				p.OpenSSLVersion = m[1]
			}
		case strings.HasPrefix(text, "Server Built:"):
			p.BuildDate = strings.TrimSpace(strings.TrimPrefix(text, "Server Built:"))
		}
	}

	if p.HTTPDVersion.IsZero() {
		return &domain.ParseError{Reason: "missing server version"}
	}
	return nil
}

// section is one cluster heading with its metadata and route tables.
type section struct {
	name   string
	meta   *html.Node
	routes *html.Node
}

// collectSections pairs tables in document order: even tables are cluster
// metadata introduced by a balancer:// heading, odd tables list routes.
func collectSections(doc *html.Node) ([]section, error) {
	var (
		sections []section
		heading  string
		tables   int
		current  *section
	)

	var walk func(n *html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H3:
				heading = textOf(n)
				return nil
			case atom.Table:
				if tables%2 == 0 {
					m := balancerPattern.FindStringSubmatch(heading)
					if m == nil {
						return &domain.ParseError{Reason: fmt.Sprintf("table %d has no balancer heading", tables)}
					}
					sections = append(sections, section{name: m[1], meta: n})
					current = &sections[len(sections)-1]
				} else {
					current.routes = n
				}
				heading = ""
				tables++
				return nil
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(doc); err != nil {
		return nil, err
	}
	if tables%2 != 0 {
		return nil, &domain.ParseError{Reason: fmt.Sprintf("odd number of tables (%d)", tables)}
	}
	return sections, nil
}

func extractCluster(sec section, schema Schema, statuses []domain.StatusSpec) (ClusterFields, error) {
	cluster := ClusterFields{Name: sec.name}

	_, rows := tableRows(sec.meta)
	if len(rows) != 1 {
		return cluster, &domain.ParseError{
			Reason: fmt.Sprintf("cluster %s: expected one metadata row, got %d", sec.name, len(rows)),
		}
	}

	fields, err := zipRow(rows[0], schema.Cluster)
	if err != nil {
		return cluster, &domain.ParseError{Reason: "cluster " + sec.name, Err: err}
	}
	cluster.Fields = fields

	header, rows := tableRows(sec.routes)
	columns := schema.routeColumns(len(header))
	withHC := len(columns) > len(schema.Route)

	for i, row := range rows {
		fields, err := zipRow(row, columns)
		if err != nil {
			return cluster, &domain.ParseError{Reason: fmt.Sprintf("cluster %s route row %d", sec.name, i), Err: err}
		}

		link := workerLink(row[0])
		if m := noncePattern.FindStringSubmatch(link); m != nil {
			fields[KeyNonce] = m[1]
		}
		if m := clusterPattern.FindStringSubmatch(link); m != nil {
			name, err := url.QueryUnescape(m[1])
			if err != nil {
				name = m[1]
			}
			fields[KeyClusterLink] = name
		}

		for _, col := range []string{ColTo, ColFrom} {
			if err := splitBandwidth(fields, col); err != nil {
				return cluster, &domain.ParseError{Reason: fmt.Sprintf("cluster %s route row %d", sec.name, i), Err: err}
			}
		}

		cluster.Routes = append(cluster.Routes, RouteFields{
			Fields:      fields,
			Statuses:    decodeStatus(fields[ColStatus], statuses),
			HealthCheck: withHC,
		})
	}

	return cluster, nil
}

// decodeStatus sets every known status by membership of its page code in
// the whitespace separated cell.
func decodeStatus(cell string, statuses []domain.StatusSpec) map[domain.StatusName]bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(cell) {
		tokens[t] = true
	}
	out := make(map[domain.StatusName]bool, len(statuses))
	for _, s := range statuses {
		out[s.Name] = tokens[s.PageCode]
	}
	return out
}

func splitBandwidth(fields map[string]string, col string) error {
	raw, ok := fields[col]
	if !ok {
		return nil
	}
	m := bandwidthPattern.FindStringSubmatch(raw)
	if m == nil {
		return fmt.Errorf("invalid %s value %q", col, raw)
	}
	fields[col] = m[1]
	fields[col+ScaleSuffix] = m[2]
	return nil
}

func zipRow(cells []*html.Node, columns []string) (map[string]string, error) {
	if len(cells) != len(columns) {
		return nil, fmt.Errorf("expected %d cells, got %d", len(columns), len(cells))
	}
	fields := make(map[string]string, len(columns)+4)
	for i, col := range columns {
		fields[col] = textOf(cells[i])
	}
	return fields, nil
}

// tableRows splits a table into its header cells (th) and data rows (td).
func tableRows(table *html.Node) (header []*html.Node, rows [][]*html.Node) {
	for _, tr := range findAll(table, atom.Tr) {
		var ths, tds []*html.Node
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			switch c.DataAtom {
			case atom.Th:
				ths = append(ths, c)
			case atom.Td:
				tds = append(tds, c)
			}
		}
		switch {
		case len(tds) > 0:
			rows = append(rows, tds)
		case len(ths) > 0 && header == nil:
			header = ths
		}
	}
	return header, rows
}

func workerLink(cell *html.Node) string {
	for _, a := range findAll(cell, atom.A) {
		for _, attr := range a.Attr {
			if attr.Key == "href" {
				return attr.Val
			}
		}
	}
	return ""
}

func hasManagerHeading(doc *html.Node) bool {
	for _, h1 := range findAll(doc, atom.H1) {
		if strings.Contains(textOf(h1), managerTitle) {
			return true
		}
	}
	return false
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func removeAll(n *html.Node, a atom.Atom) {
	for _, f := range findAll(n, a) {
		if f.Parent != nil {
			f.Parent.RemoveChild(f)
		}
	}
}

// textOf returns the text content of n with whitespace collapsed.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
