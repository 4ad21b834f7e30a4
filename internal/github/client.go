package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	log       logrus.FieldLogger
	baseURL   string
	userAgent string
}

type Option func(*options)

// WithLogger logs one debug entry per API request and response (with latency)
// through l. Request logging is off when no logger is given.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithBaseURL points the client at a GitHub Enterprise Server API root or a
// test server. An empty URL keeps api.github.com.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimSpace(raw)
	}
}

func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// loggingRoundTripper wraps an underlying transport and emits one entry per
// request and per response.
type loggingRoundTripper struct {
	base http.RoundTripper
	log  logrus.FieldLogger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	entry := t.log.WithFields(logrus.Fields{"method": req.Method, "url": req.URL.String()})
	entry.Debug("github api request")

	resp, err := t.base.RoundTrip(req)
	entry = entry.WithField("duration", time.Since(start).Truncate(time.Millisecond))
	if err != nil {
		entry.WithError(err).Debug("github api error")
		return resp, err
	}
	entry.WithFields(logrus.Fields{
		"status":    resp.StatusCode,
		"remaining": resp.Header.Get("X-RateLimit-Remaining"),
	}).Debug("github api response")
	return resp, nil
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	transport := http.DefaultTransport
	if o.log != nil {
		transport = &loggingRoundTripper{base: transport, log: o.log}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport}

	client := github.NewClient(tc)
	if o.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(o.baseURL, o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("github client: base url %q: %w", o.baseURL, err)
		}
	}
	if o.userAgent != "" {
		client.UserAgent = o.userAgent
	}

	return &Client{
		Client: client,
		HTTP:   tc,
	}, nil
}
