// Package cookies loads the static cookie list replayed on every page fetch.
package cookies

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ytget/ytstream/errs"
	"github.com/ytget/ytstream/internal/logger"
)

// Cookie is a single name/value pair. Domain, path and expiry are not modeled.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Jar is an immutable, ordered cookie list with its readiness state.
type Jar struct {
	path    string
	cookies []Cookie
	err     error
}

// Load reads path once. It never fails: a missing or malformed file yields a
// jar that is not ready and holds no cookies, with the cause in Err.
func Load(path string) *Jar {
	log := logger.WithComponent(logger.ComponentCookies)

	list, err := read(path)
	if err != nil {
		log.Error("failed to load cookies", map[string]interface{}{"path": path, "error": err.Error()})
		return &Jar{path: path, err: err}
	}
	log.Info("loaded cookies", map[string]interface{}{"path": path, "count": len(list)})
	return &Jar{path: path, cookies: list}
}

// New returns a ready jar holding a copy of list.
func New(list []Cookie) *Jar {
	return &Jar{cookies: append([]Cookie(nil), list...)}
}

func read(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.KindConfig, "read cookies", err)
	}
	list, err := Parse(data)
	if err != nil {
		return nil, errs.E(errs.KindConfig, "parse cookies", err)
	}
	return list, nil
}

// Parse accepts either {"cookies":[...]} or a bare list of cookie objects.
// Every element must be an object; unknown members of an element are ignored.
func Parse(data []byte) ([]Cookie, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	var items []any
	switch v := root.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["cookies"].([]any)
		if !ok {
			return nil, fmt.Errorf("object has no cookies list")
		}
		items = list
	default:
		return nil, fmt.Errorf("unsupported cookie file shape %T", root)
	}

	out := make([]Cookie, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cookie %d is not an object", i)
		}
		out = append(out, Cookie{Name: stringOf(obj["name"]), Value: stringOf(obj["value"])})
	}
	return out, nil
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// Ready reports whether the cookie file loaded successfully.
func (j *Jar) Ready() bool {
	return j != nil && j.err == nil
}

// Err returns the load failure, or nil.
func (j *Jar) Err() error {
	if j == nil {
		return errs.ErrCookiesNotLoaded
	}
	return j.err
}

// Len returns the number of cookies.
func (j *Jar) Len() int {
	if j == nil {
		return 0
	}
	return len(j.cookies)
}

// Path returns the file the jar was loaded from.
func (j *Jar) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Cookies returns a copy of the cookie list.
func (j *Jar) Cookies() []Cookie {
	if j == nil {
		return nil
	}
	return append([]Cookie(nil), j.cookies...)
}

// Header joins the cookies as name=value pairs separated by "; ".
func (j *Jar) Header() string {
	if j == nil {
		return ""
	}
	parts := make([]string, len(j.cookies))
	for i, c := range j.cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}
