// Package graph builds a lightweight structural map of a codebase.
//
// Extraction is line-regex based rather than AST based: it tolerates files
// that do not parse, mixes languages in one pass, and costs almost nothing
// on top of the corpus scan that already reads every file. Coverage targets
// Python (Flask-style routes, SQLAlchemy-style models) and Go.
package graph

import (
	"regexp"
	"sort"
	"strings"
)

// Edge kinds.
const (
	EdgeHandledBy = "handled_by"
	EdgeMapsTo    = "maps_to"
	EdgeRelatesTo = "relates_to"
)

// Module aggregates declarations found in one source file.
type Module struct {
	Functions []string `json:"functions,omitempty"`
	Classes   []string `json:"classes,omitempty"`
}

// Route is an HTTP endpoint registration. A single registration can accept
// several methods, as Flask's methods=[...] does.
type Route struct {
	Methods []string `json:"methods"`
	Path    string   `json:"path"`
	Handler string   `json:"handler,omitempty"`
	Module  string   `json:"module"`
}

// Model is a persistent data type with its storage mapping.
type Model struct {
	Table     string   `json:"table,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Relations []string `json:"relations,omitempty"`
}

// Edge links two graph nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Graph is the extracted structure of a corpus, serialized as
// knowledge_graph.json beside the index artifacts.
type Graph struct {
	Modules  map[string]Module `json:"modules"`
	Routes   []Route           `json:"routes"`
	Models   map[string]Model  `json:"models"`
	Entities []string          `json:"entities"`
	Edges    []Edge            `json:"edges"`
}

var (
	pyFunc     = regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`)
	pyClass    = regexp.MustCompile(`^\s*class\s+(\w+)\s*[(:]`)
	pyModel    = regexp.MustCompile(`^\s*class\s+(\w+)\s*\(\s*(?:db\.)?Model\b`)
	pyRoute    = regexp.MustCompile(`@\w+\.route\(\s*['"]([^'"]+)['"]`)
	pyMethods  = regexp.MustCompile(`methods\s*=\s*\[([^\]]*)\]`)
	pyTable    = regexp.MustCompile(`__tablename__\s*=\s*['"](\w+)['"]`)
	pyColumn   = regexp.MustCompile(`^\s*(\w+)\s*=\s*db\.Column\(`)
	pyRelation = regexp.MustCompile(`db\.relationship\(\s*['"](\w+)['"]`)

	goFunc   = regexp.MustCompile(`^func\s+(?:\([^)]*\)\s+)?(\w+)\s*\(`)
	goStruct = regexp.MustCompile(`^type\s+(\w+)\s+struct\b`)
	goRoute  = regexp.MustCompile(`\.(?:HandleFunc|Handle|GET|POST|PUT|PATCH|DELETE)\(\s*"([^"]+)"\s*,\s*([\w.]+)`)
	goVerb   = regexp.MustCompile(`\.(GET|POST|PUT|PATCH|DELETE)\(`)
	goDBTag  = regexp.MustCompile("`[^`]*\\bdb:\"([a-zA-Z_][\\w]*)\"")
)

// New returns an empty graph ready for extraction.
func New() *Graph {
	return &Graph{
		Modules: make(map[string]Module),
		Models:  make(map[string]Model),
	}
}

// AddFile extracts declarations from one source file. path is the
// corpus-relative path; unknown extensions are ignored.
func (g *Graph) AddFile(path, content string) {
	switch {
	case strings.HasSuffix(path, ".py"):
		g.addPython(path, content)
	case strings.HasSuffix(path, ".go"):
		g.addGo(path, content)
	}
}

func (g *Graph) addPython(path, content string) {
	mod := g.Modules[path]

	var pendingRoute *Route
	var curModel string
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if m := pyRoute.FindStringSubmatch(line); m != nil {
			var methods []string
			if mm := pyMethods.FindStringSubmatch(line); mm != nil {
				parts := strings.FieldsFunc(mm[1], func(r rune) bool {
					return r == ',' || r == ' ' || r == '\'' || r == '"'
				})
				for _, p := range parts {
					methods = appendUnique(methods, strings.ToUpper(p))
				}
			}
			if len(methods) == 0 {
				methods = []string{"GET"}
			}
			pendingRoute = &Route{Methods: methods, Path: m[1], Module: path}
			continue
		}

		if m := pyModel.FindStringSubmatch(line); m != nil {
			curModel = m[1]
			if _, exists := g.Models[curModel]; !exists {
				g.Models[curModel] = Model{}
			}
			mod.Classes = appendUnique(mod.Classes, m[1])
			continue
		}
		if m := pyClass.FindStringSubmatch(line); m != nil {
			curModel = ""
			mod.Classes = appendUnique(mod.Classes, m[1])
			continue
		}

		if m := pyFunc.FindStringSubmatch(line); m != nil {
			name := m[1]
			if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
				curModel = ""
			}
			mod.Functions = appendUnique(mod.Functions, name)
			if pendingRoute != nil {
				pendingRoute.Handler = name
				g.addRoute(*pendingRoute)
				pendingRoute = nil
			}
			continue
		}

		if curModel != "" {
			model := g.Models[curModel]
			if m := pyTable.FindStringSubmatch(line); m != nil {
				model.Table = m[1]
			}
			if m := pyColumn.FindStringSubmatch(line); m != nil {
				model.Fields = appendUnique(model.Fields, m[1])
			}
			if m := pyRelation.FindStringSubmatch(line); m != nil {
				model.Relations = appendUnique(model.Relations, m[1])
			}
			g.Models[curModel] = model
		}
	}
	g.Modules[path] = mod
}

func (g *Graph) addGo(path, content string) {
	mod := g.Modules[path]
	var curStruct string
	for _, line := range strings.Split(content, "\n") {
		if m := goStruct.FindStringSubmatch(line); m != nil {
			curStruct = m[1]
			mod.Classes = appendUnique(mod.Classes, m[1])
			continue
		}
		if curStruct != "" {
			if strings.HasPrefix(line, "}") {
				curStruct = ""
			} else if m := goDBTag.FindStringSubmatch(line); m != nil {
				// A db-tagged struct is a persistent model.
				model := g.Models[curStruct]
				model.Fields = appendUnique(model.Fields, m[1])
				g.Models[curStruct] = model
			}
		}
		if m := goFunc.FindStringSubmatch(line); m != nil {
			mod.Functions = appendUnique(mod.Functions, m[1])
		}
		if m := goRoute.FindStringSubmatch(line); m != nil {
			method := "ANY"
			if v := goVerb.FindStringSubmatch(line); v != nil {
				method = v[1]
			}
			g.addRoute(Route{Methods: []string{method}, Path: m[1], Handler: m[2], Module: path})
		}
	}
	g.Modules[path] = mod
}

func (g *Graph) addRoute(r Route) {
	key := r.methodKey() + " " + r.Path + " " + r.Module
	for _, existing := range g.Routes {
		if existing.methodKey()+" "+existing.Path+" "+existing.Module == key {
			return
		}
	}
	g.Routes = append(g.Routes, r)
}

func (r Route) methodKey() string {
	return strings.Join(r.Methods, ",")
}

// Finalize derives entities and edges from the collected declarations.
// Call once after every file has been added.
func (g *Graph) Finalize() {
	seen := make(map[string]bool)
	for name := range g.Models {
		seen[name] = true
	}
	g.Entities = make([]string, 0, len(seen))
	for name := range seen {
		g.Entities = append(g.Entities, name)
	}
	sort.Strings(g.Entities)

	g.Edges = g.Edges[:0]
	for _, r := range g.Routes {
		if r.Handler != "" {
			g.Edges = append(g.Edges, Edge{From: r.methodKey() + " " + r.Path, To: r.Handler, Kind: EdgeHandledBy})
		}
	}
	for _, name := range g.Entities {
		model := g.Models[name]
		if model.Table != "" {
			g.Edges = append(g.Edges, Edge{From: name, To: model.Table, Kind: EdgeMapsTo})
		}
		for _, rel := range model.Relations {
			g.Edges = append(g.Edges, Edge{From: name, To: rel, Kind: EdgeRelatesTo})
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
