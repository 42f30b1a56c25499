package proxy

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Route identifies the egress path a request was made through. The zero
// Route is a direct connection.
type Route struct {
	key       string
	transport http.RoundTripper
}

// Direct reports whether the route bypasses any proxy.
func (r Route) Direct() bool { return r.key == "" }

// Rotator supplies an egress route per request and rotates away from routes
// reported as failed. With proxying disabled (or no usable lines) it hands
// out direct connections, which is a valid steady state.
type Rotator struct {
	mu       sync.Mutex
	enabled  bool
	protocol string
	lines    []string
	current  string

	transports map[string]http.RoundTripper
	rng        *rand.Rand
	logger     zerolog.Logger
}

// NewRotator constructs a disabled rotator. Configure enables it.
func NewRotator(logger zerolog.Logger) *Rotator {
	return &Rotator{
		transports: make(map[string]http.RoundTripper),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     logger.With().Str("component", "proxy").Logger(),
	}
}

// Configure loads the proxy list from a text file (one host:port or
// user:pass@host:port per line) and picks an initial route. Disabling clears
// state. A missing or empty file disables proxying rather than failing.
func (r *Rotator) Configure(enabled bool, protocol, filePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.enabled = false
	r.protocol = strings.ToLower(strings.TrimSpace(protocol))
	r.lines = nil
	r.current = ""

	if !enabled {
		r.logger.Info().Msg("proxying disabled, all requests go direct")
		return
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("proxy file unreadable, staying direct")
		return
	}

	var lines []string
	for _, ln := range strings.Split(string(raw), "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		r.logger.Warn().Str("path", filePath).Msg("proxy file empty, staying direct")
		return
	}

	r.enabled = true
	r.lines = lines
	r.logger.Info().Int("count", len(lines)).Msg("proxy list loaded")
	r.pickLocked()
}

// Client returns an HTTP client using the current route plus the route
// itself, to be passed back on failure. Safe on a nil Rotator.
func (r *Rotator) Client(timeout time.Duration) (*http.Client, Route) {
	route := r.Acquire()
	return &http.Client{Timeout: timeout, Transport: route.transport}, route
}

// Acquire returns the current egress route.
func (r *Rotator) Acquire() Route {
	if r == nil {
		return Route{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || r.current == "" {
		return Route{}
	}
	return Route{key: r.current, transport: r.transportLocked(r.current)}
}

// ReportFailure marks a route as failed. If it is still the current route a
// new one is chosen, so the next call leaves on a different path.
func (r *Rotator) ReportFailure(route Route, reason string) {
	if r == nil || route.Direct() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || route.key != r.current {
		return
	}

	r.logger.Warn().
		Str("proxy", safeHost(route.key)).
		Str("reason", reason).
		Msg("proxy route failed, rotating")
	r.pickLocked()
}

func (r *Rotator) pickLocked() {
	if len(r.lines) == 0 {
		r.current = ""
		return
	}
	r.current = r.lines[r.rng.Intn(len(r.lines))]
	r.logger.Info().
		Str("protocol", r.scheme()).
		Str("proxy", safeHost(r.current)).
		Msg("proxy route selected")
}

func (r *Rotator) transportLocked(line string) http.RoundTripper {
	if t, ok := r.transports[line]; ok {
		return t
	}

	u, err := url.Parse(normalizeLine(line, r.scheme()))
	if err != nil {
		r.logger.Error().Err(err).Str("proxy", safeHost(line)).Msg("bad proxy line")
		return http.DefaultTransport
	}

	t := &http.Transport{Proxy: http.ProxyURL(u)}
	r.transports[line] = t
	return t
}

func (r *Rotator) scheme() string {
	if strings.HasPrefix(r.protocol, "socks") {
		return "socks5"
	}
	if r.protocol == "" {
		return "socks5"
	}
	return "http"
}

// normalizeLine turns "login:pass@ip:port" into a full proxy URL. Lines that
// already carry a scheme pass through unchanged.
func normalizeLine(line, scheme string) string {
	if strings.Contains(line, "://") {
		return line
	}
	return fmt.Sprintf("%s://%s", scheme, line)
}

// safeHost strips credentials from a proxy line so they never reach the log.
func safeHost(line string) string {
	rest := line
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	return rest
}
