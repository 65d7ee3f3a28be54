package hopsclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hostops/hops/sdk"
)

type client struct {
	httpClient *http.Client
	config     Config
}

// NewHTTPClient returns a new HTTP Client
func NewHTTPClient(timeout time.Duration, insecureSkipVerifyTLS bool) *http.Client {
	transport := http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 0 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecureSkipVerifyTLS},
	}

	if timeout == 0 {
		transport.IdleConnTimeout = 0
		transport.ResponseHeaderTimeout = 0
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &transport,
	}
}

// New returns a client from a config struct
func New(c Config) Interface {
	if c.RequestSecondsTimeout == 0 {
		c.RequestSecondsTimeout = 60
	}
	c.Host = strings.TrimSuffix(c.Host, "/")
	c.userAgent = "hops/sdk " + sdk.Version
	return &client{
		config:     c,
		httpClient: NewHTTPClient(time.Duration(c.RequestSecondsTimeout)*time.Second, c.InsecureSkipVerifyTLS),
	}
}

func (c *client) HTTPClient() *http.Client {
	return c.httpClient
}
