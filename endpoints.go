package syncano

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Params identifies an object or collection: path placeholders such as
// instanceName, name or id, plus any identity fields sent on create.
type Params map[string]string

// clone returns a copy of p that is safe to modify.
func (p Params) clone() Params {
	cp := make(Params, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// Endpoint is one URL template of a model, together with the HTTP methods
// the API accepts on it.
type Endpoint struct {
	Path    string
	Methods []string
}

// Allows reports whether method may be used on the endpoint.
func (e Endpoint) Allows(method string) bool {
	for _, m := range e.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Meta describes a model's API surface: its names and its endpoints,
// conventionally "list" and "detail" plus model-specific ones.
type Meta struct {
	Name       string
	PluralName string
	Endpoints  map[string]Endpoint
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_]+)\}`)

// Endpoint looks up a named endpoint.
func (m *Meta) Endpoint(name string) (Endpoint, error) {
	ep, ok := m.Endpoints[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%s has no %q endpoint", m.Name, name)
	}
	return ep, nil
}

// ResolvePath fills the placeholders of the named endpoint from params.
// Values are path-escaped. A missing or empty value is an error naming the
// placeholder.
func (m *Meta) ResolvePath(endpoint string, params Params) (string, error) {
	ep, err := m.Endpoint(endpoint)
	if err != nil {
		return "", err
	}

	var missing []string
	path := placeholderPattern.ReplaceAllStringFunc(ep.Path, func(match string) string {
		key := match[1 : len(match)-1]
		value := params[key]
		if value == "" {
			missing = append(missing, key)
			return match
		}
		return url.PathEscape(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%s %s endpoint: missing %s", m.Name, endpoint, strings.Join(missing, ", "))
	}
	return path, nil
}

// placeholders returns the placeholder names of the named endpoint. On the
// list endpoint they select the collection, so they are not body fields.
func (m *Meta) placeholders(endpoint string) map[string]bool {
	keys := make(map[string]bool)
	for _, match := range placeholderPattern.FindAllStringSubmatch(m.Endpoints[endpoint].Path, -1) {
		keys[match[1]] = true
	}
	return keys
}
