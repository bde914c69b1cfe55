package bridge

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

var dnsResolver = &dnscache.Resolver{}

// NewHTTPClient returns a client whose dialer resolves through a shared DNS
// cache. Polls hit the same host every few seconds.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	trans := http.DefaultTransport.(*http.Transport).Clone()
	trans.DialContext = func(ctx context.Context, network string, addr string) (conn net.Conn, err error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := dnsResolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				break
			}
		}
		return
	}
	return &http.Client{
		Transport: trans,
		Timeout:   timeout,
	}
}

// RefreshDNS drops stale cache entries.
func RefreshDNS() {
	dnsResolver.Refresh(true)
}
