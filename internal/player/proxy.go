package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

const maxBody = 64 << 10

// Proxy forwards actions to a local player service as GET <base>/<action>.
type Proxy struct {
	base   string
	http   *http.Client
	logger *logrus.Logger
}

func NewProxy(base string, hc *http.Client, logger *logrus.Logger) (*Proxy, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("player.proxy_url is empty")
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Proxy{base: base, http: hc, logger: logger}, nil
}

func (p *Proxy) Do(ctx context.Context, action string) (string, error) {
	target, err := url.JoinPath(p.base, action)
	if err != nil {
		return "", fmt.Errorf("proxy url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("proxy %s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	p.logger.Debugf("GET %s -> %d", target, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return string(body), nil
}
