package engine

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/docker/go-connections/tlsconfig"
	"github.com/moby/moby/client"
)

// TLSOptions configures client certificates for a TCP engine endpoint.
type TLSOptions struct {
	CAFile   string
	CertFile string
	KeyFile  string
	// VerifyServerIdentity checks the daemon's certificate hostname.
	VerifyServerIdentity bool
}

// Enabled reports whether any TLS material is configured.
func (t TLSOptions) Enabled() bool {
	return t.CAFile != "" || t.CertFile != "" || t.KeyFile != ""
}

// Options configures how the adapter reaches the engine. Zero values fall
// back to the environment (DOCKER_HOST and friends).
type Options struct {
	SocketPath string // unix socket path; wins over Host
	Host       string // TCP host name or IP
	Port       int
	Version    string // pinned API version, e.g. "1.47"

	Username string // HTTP basic auth
	Password string

	TLS TLSOptions

	Timeout        time.Duration // per-request timeout
	ConnectTimeout time.Duration // dial timeout
	Proxy          string        // HTTP proxy URL

	// LabelPrefix namespaces managed labels, e.g. "dev.torrentbed".
	LabelPrefix string
	// RunID tags every container created in this process.
	RunID string
}

// hostURL returns the daemon address, or "" to defer to the environment.
func (o Options) hostURL() string {
	switch {
	case o.SocketPath != "":
		return "unix://" + o.SocketPath
	case o.Host != "":
		port := o.Port
		if port == 0 {
			port = 2375
			if o.TLS.Enabled() {
				port = 2376
			}
		}
		return "tcp://" + net.JoinHostPort(o.Host, strconv.Itoa(port))
	}
	return ""
}

// clientOpts converts Options into moby client options. The custom HTTP
// client must come first so the environment and host options configure its
// transport; explicit settings then override the environment.
func (o Options) clientOpts() ([]client.Opt, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   o.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if o.TLS.Enabled() {
		tlsCfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:             o.TLS.CAFile,
			CertFile:           o.TLS.CertFile,
			KeyFile:            o.TLS.KeyFile,
			InsecureSkipVerify: !o.TLS.VerifyServerIdentity,
		})
		if err != nil {
			return nil, fmt.Errorf("engine TLS configuration: %w", err)
		}
		transport.TLSClientConfig = tlsCfg
	}

	if o.Proxy != "" {
		u, err := url.Parse(o.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid engine proxy URL %q: %w", o.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	opts := []client.Opt{
		client.WithHTTPClient(&http.Client{Transport: transport}),
		client.FromEnv,
	}

	if host := o.hostURL(); host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if o.Version != "" {
		opts = append(opts, client.WithVersion(o.Version))
	}
	if o.Timeout > 0 {
		opts = append(opts, client.WithTimeout(o.Timeout))
	}
	if o.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(o.Username + ":" + o.Password))
		opts = append(opts, client.WithHTTPHeaders(map[string]string{
			"Authorization": "Basic " + token,
		}))
	}
	return opts, nil
}
