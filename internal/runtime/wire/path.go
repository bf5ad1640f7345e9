package wire

import "strings"

// Path is the dot-separated identity of a procedure.
type Path struct {
	Service    string
	Controller string
	Endpoint   string
}

// ParsePath splits a "service.controller.endpoint" string. Missing segments
// are left empty rather than treated as an error; permission resolution and
// locality checks tolerate partial paths.
func ParsePath(s string) Path {
	parts := strings.SplitN(s, ".", 3)
	p := Path{Service: parts[0]}
	if len(parts) > 1 {
		p.Controller = parts[1]
	}
	if len(parts) > 2 {
		p.Endpoint = parts[2]
	}
	return p
}

func (p Path) String() string {
	return p.Service + "." + p.Controller + "." + p.Endpoint
}

// ServiceOf returns the first dot-segment of a raw path. The router uses it
// for the locality test.
func ServiceOf(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
