package musiclink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxHTTPRedirects   = 3
)

// ErrTooManyRedirects is returned when a provider keeps redirecting.
var ErrTooManyRedirects = errors.New("too many redirects")

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// hostMatcher reports whether rawURL is an http(s) URL on one of hosts.
func hostMatcher(hosts ...string) func(string) bool {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	return func(rawURL string) bool {
		u, err := url.Parse(strings.TrimSpace(rawURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return false
		}
		_, ok := set[strings.ToLower(u.Hostname())]
		return ok
	}
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// fetchJSON GETs endpoint and decodes the JSON body into dest.
func fetchJSON(ctx context.Context, client *http.Client, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func fetchOEmbed(ctx context.Context, client *http.Client, endpoint, targetURL string) (*oembedResponse, error) {
	reqURL := fmt.Sprintf("%s?url=%s&format=json", endpoint, url.QueryEscape(targetURL))
	var out oembedResponse
	if err := fetchJSON(ctx, client, reqURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
