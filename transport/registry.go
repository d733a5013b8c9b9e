package transport

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Transport is an open connection to a remote, capable of both
// directions of the smart protocol.
type Transport interface {
	// Capabilities returns the capability set negotiated (or, before
	// any exchange, the set this transport supports offering).
	Capabilities() Set
	// Close releases any underlying connection/process resources.
	Close() error
}

// OpenFunc opens a Transport for a parsed URL.
type OpenFunc func(u *url.URL) (Transport, error)

// Scheme describes one registered transport scheme (§6): its name, the
// URL fields it requires/accepts, a default port, and how to open it.
type Scheme struct {
	Name            string
	RequiredFields  []string // e.g. "host", "path"
	OptionalFields  []string // e.g. "user", "port"
	DefaultPort     int
	Open            OpenFunc
}

// Registry maps scheme names to their Scheme descriptor. The zero
// value is usable; Register populates it.
type Registry struct {
	mu      sync.RWMutex
	schemes map[string]Scheme
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{schemes: make(map[string]Scheme)}
}

// Register adds or replaces a scheme by value (§6: "registration is by
// value").
func (r *Registry) Register(s Scheme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schemes == nil {
		r.schemes = make(map[string]Scheme)
	}
	r.schemes[s.Name] = s
}

// Lookup returns the registered Scheme for name.
func (r *Registry) Lookup(name string) (Scheme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemes[name]
	return s, ok
}

// Names returns every registered scheme name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemes))
	for name := range r.schemes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open parses rawurl, resolves it to a registered scheme (falling back
// to scp-style "user@host:path" as the "ssh" scheme when rawurl has no
// "://"), and opens a Transport through that scheme's OpenFunc.
func (r *Registry) Open(rawurl string) (Transport, error) {
	u, schemeName, err := parseRemote(rawurl)
	if err != nil {
		return nil, err
	}

	s, ok := r.Lookup(schemeName)
	if !ok {
		return nil, fmt.Errorf("no transport registered for scheme %q", schemeName)
	}
	return s.Open(u)
}

// parseRemote parses rawurl per §6's scheme list, recognizing the
// scp-style shorthand ("user@host:path", no scheme) as ssh.
func parseRemote(rawurl string) (*url.URL, string, error) {
	if isSCPLike(rawurl) {
		u, err := parseSCPLike(rawurl)
		if err != nil {
			return nil, "", err
		}
		return u, "ssh", nil
	}

	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, "", fmt.Errorf("invalid remote URL %q: %w", rawurl, err)
	}
	if u.Scheme == "" {
		return nil, "", fmt.Errorf("remote URL %q has no scheme", rawurl)
	}
	return u, normalizeScheme(u.Scheme), nil
}

// normalizeScheme folds the several spellings of the SSH-transported
// scheme (§6: "ssh://", "ssh+git://", "git+ssh://") onto one registry
// key.
func normalizeScheme(scheme string) string {
	switch scheme {
	case "ssh+git", "git+ssh":
		return "ssh"
	default:
		return scheme
	}
}

// isSCPLike reports whether rawurl looks like "[user@]host:path"
// rather than a scheme://... URL: no "://", and a colon appears before
// any slash.
func isSCPLike(rawurl string) bool {
	if strings.Contains(rawurl, "://") {
		return false
	}
	colon := strings.Index(rawurl, ":")
	if colon < 0 {
		return false
	}
	slash := strings.Index(rawurl, "/")
	return slash < 0 || colon < slash
}

func parseSCPLike(rawurl string) (*url.URL, error) {
	colon := strings.Index(rawurl, ":")
	if colon < 0 {
		return nil, fmt.Errorf("invalid scp-style remote %q", rawurl)
	}
	userHost, path := rawurl[:colon], rawurl[colon+1:]

	u := &url.URL{Scheme: "ssh", Path: path}
	if at := strings.Index(userHost, "@"); at >= 0 {
		u.User = url.User(userHost[:at])
		u.Host = userHost[at+1:]
	} else {
		u.Host = userHost
	}
	return u, nil
}
