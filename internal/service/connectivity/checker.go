package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

var (
	errNoHost       = errors.New("url has no host")
	errBadStatus    = errors.New("server error status")
	errNoAddresses  = errors.New("no addresses resolved")
	errNotConfirmed = errors.New("outbound connectivity could not be confirmed")
)

// Probe is one method of confirming outbound reachability.
type Probe interface {
	// Name identifies the probe in logs.
	Name() string
	// Check returns nil when the endpoint is reachable.
	Check(ctx context.Context, endpoint *url.URL) error
}

// Checker runs probes in order until one succeeds and asks the operator when none does.
type Checker struct {
	probes   []Probe
	prompter common.Prompter
	timeout  time.Duration
}

// NewChecker creates a checker with the default HTTP, TCP and DNS probes.
func NewChecker(prompter common.Prompter, timeout time.Duration, client *http.Client) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return NewCheckerWithProbes(prompter, timeout,
		&HTTPProbe{Client: client},
		&TCPProbe{Dialer: &net.Dialer{Timeout: timeout}},
		&DNSProbe{Resolver: net.DefaultResolver},
	)
}

// NewCheckerWithProbes creates a checker with an explicit fallback chain.
func NewCheckerWithProbes(prompter common.Prompter, timeout time.Duration, probes ...Probe) *Checker {
	return &Checker{
		probes:   probes,
		prompter: prompter,
		timeout:  timeout,
	}
}

// Check confirms rawURL is reachable. When no probe succeeds the operator is asked
// whether to continue; anything but explicit consent is a ConnectivityError.
func (c *Checker) Check(ctx context.Context, rawURL string) error {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return install.Wrap(install.KindConnectivity, "parse url", err)
	}

	if endpoint.Hostname() == "" {
		return install.Wrap(install.KindConnectivity, rawURL, errNoHost)
	}

	var failures []error

	for _, probe := range c.probes {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = probe.Check(probeCtx, endpoint)

		cancel()

		if err == nil {
			logger.InfoKV(ctx, "Connectivity confirmed", "method", probe.Name(), "host", endpoint.Hostname())
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return install.Wrap(install.KindInterrupted, "connectivity check", ctxErr)
		}

		logger.WarnKV(ctx, "Connectivity probe failed", "method", probe.Name(), "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", probe.Name(), err))
	}

	cause := errors.Join(append([]error{errNotConfirmed}, failures...)...)

	if c.prompter == nil {
		return install.Wrap(install.KindConnectivity, endpoint.Hostname(), cause)
	}

	proceed, err := c.prompter.Confirm(ctx, fmt.Sprintf("Unable to reach %s. Continue anyway?", endpoint.Hostname()))
	if err != nil {
		return install.Wrap(install.KindConnectivity, "confirm", err)
	}

	if !proceed {
		return install.Wrap(install.KindConnectivity, endpoint.Hostname(), cause)
	}

	logger.WarnKV(ctx, "Continuing without confirmed connectivity on operator request", "host", endpoint.Hostname())

	return nil
}

// HTTPProbe sends a HEAD request to the endpoint.
type HTTPProbe struct {
	Client *http.Client
}

// Name implements Probe.
func (p *HTTPProbe) Name() string {
	return "http"
}

// Check implements Probe. Any response below 500 proves reachability.
func (p *HTTPProbe) Check(ctx context.Context, endpoint *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint.String(), http.NoBody)
	if err != nil {
		return err
	}

	response, err := p.Client.Do(req)
	if err != nil {
		return err
	}

	_ = response.Body.Close()

	if response.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: %w", response.Status, errBadStatus)
	}

	return nil
}

// TCPProbe opens a TCP connection to the endpoint host.
type TCPProbe struct {
	Dialer *net.Dialer
}

// Name implements Probe.
func (p *TCPProbe) Name() string {
	return "tcp"
}

// Check implements Probe.
func (p *TCPProbe) Check(ctx context.Context, endpoint *url.URL) error {
	conn, err := p.Dialer.DialContext(ctx, "tcp", hostPort(endpoint))
	if err != nil {
		return err
	}

	return conn.Close()
}

// DNSProbe resolves the endpoint host name.
type DNSProbe struct {
	Resolver *net.Resolver
}

// Name implements Probe.
func (p *DNSProbe) Name() string {
	return "dns"
}

// Check implements Probe.
func (p *DNSProbe) Check(ctx context.Context, endpoint *url.URL) error {
	addrs, err := p.Resolver.LookupHost(ctx, endpoint.Hostname())
	if err != nil {
		return err
	}

	if len(addrs) == 0 {
		return errNoAddresses
	}

	return nil
}

func hostPort(endpoint *url.URL) string {
	if port := endpoint.Port(); port != "" {
		return net.JoinHostPort(endpoint.Hostname(), port)
	}

	if endpoint.Scheme == "http" {
		return net.JoinHostPort(endpoint.Hostname(), "80")
	}

	return net.JoinHostPort(endpoint.Hostname(), "443")
}
