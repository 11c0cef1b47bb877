package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/harvest/models"
)

// maxBodyBytes caps response reads to prevent unbounded memory use.
const maxBodyBytes = 10 << 20

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. Computed once at init time and reused for every
// connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// Fallback: if spec generation fails, use HelloChrome_Auto as-is.
		// (Should never happen with a valid utls version.)
		return
	}
	// Replace h2 with http/1.1 only in the ALPN extension so the server
	// never negotiates HTTP/2 (which Go's http.Transport cannot handle
	// over a utls connection).
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPEngine fetches over plain HTTP with a Chrome-like TLS fingerprint.
// It is the default transport, suitable for sources whose block layer
// does not demand script execution.
type HTTPEngine struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPEngine creates an HTTPEngine. ALPN is locked to http/1.1 to
// avoid the HTTP/2 framing mismatch that occurs when utls negotiates h2
// but Go's http.Transport only speaks h1. proxy may be empty.
func NewHTTPEngine(timeout time.Duration, proxy string) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		timeout: timeout,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

// Fetch issues one GET with the identity's headers and cookies. Non-2xx
// statuses are NOT errors here: the block detector classifies them, so
// the raw page must survive with its status code intact.
func (e *HTTPEngine) Fetch(ctx context.Context, targetURL string, id *Identity) (*models.RawPage, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeFetchProtocol, "build request", err)
	}

	req.Header.Set("Accept-Encoding", "identity")
	for k, v := range id.Headers {
		req.Header.Set(k, v)
	}
	for i := range id.Cookies {
		req.AddCookie(&id.Cookies[i])
	}

	id.Consume()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyFetchError(err)
	}

	// Carry the identity's cookies forward: sites hand out session
	// cookies on the first response and expect them back.
	for _, c := range resp.Cookies() {
		id.StoreCookie(*c)
	}

	return &models.RawPage{
		RequestedURL: targetURL,
		FinalURL:     resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		FetchedAt:    time.Now(),
	}, nil
}

// classifyFetchError maps transport errors onto the typed fetch failure
// kinds the orchestrator retries on.
func classifyFetchError(err error) *models.HarvestError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewHarvestError(models.ErrCodeFetchTimeout, "fetch timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return models.NewHarvestError(models.ErrCodeFetchTimeout, "fetch timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewHarvestError(models.ErrCodeFetchTimeout, "fetch canceled", err)
	case strings.Contains(err.Error(), "too many redirects"):
		return models.NewHarvestError(models.ErrCodeFetchProtocol, "redirect loop", err)
	default:
		return models.NewHarvestError(models.ErrCodeFetchConnection, "connection failed", err)
	}
}
