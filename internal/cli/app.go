package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gh "issuemirror/internal/github"
	"issuemirror/internal/model"
	"issuemirror/internal/output"
	"issuemirror/internal/repoio"
	"issuemirror/internal/repoop"

	"github.com/fatih/color"
)

// session is a connected coordinator plus the sinks results are written to.
type session struct {
	control *repoop.Control
	out     *output.Manager
	ctx     context.Context
	cancel  context.CancelFunc
}

func (s *session) close() error {
	defer s.cancel()
	return s.out.Close()
}

// connect resolves credentials, builds the GitHub client, the gateway and the
// coordinator, and opens the configured sinks. withFiles adds the --out and
// --report sinks.
func (a *app) connect(withFiles bool) (*session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Runtime.Timeout)

	token, source, err := gh.ResolveAuthToken(ctx, "", a.cfg.GitHub.Host)
	if err != nil {
		cancel()
		return nil, fatal(fmt.Errorf("failed to resolve GitHub auth token: %w", err))
	}
	if strings.TrimSpace(token) == "" {
		cancel()
		return nil, fatal(errors.New("GitHub auth token is required (set GITHUB_TOKEN or run 'gh auth login')"))
	}
	a.log.WithField("source", source).Debug("resolved GitHub token")

	clientOpts := []gh.Option{
		gh.WithBaseURL(a.cfg.GitHub.BaseURL),
		gh.WithUserAgent("issuemirror/" + buildVersion),
	}
	if a.cfg.Runtime.Verbose {
		clientOpts = append(clientOpts, gh.WithLogger(a.log))
	}
	client, err := gh.NewClient(ctx, token, clientOpts...)
	if err != nil {
		cancel()
		return nil, fatal(fmt.Errorf("failed to create GitHub client: %w", err))
	}

	gateway, err := repoio.NewGateway(client,
		repoio.WithLogger(a.log),
		repoio.WithPerPage(a.cfg.Runtime.PerPage),
	)
	if err != nil {
		cancel()
		return nil, fatal(err)
	}
	control, err := repoop.New(gateway, model.NewMultiModel(), repoop.WithLogger(a.log))
	if err != nil {
		cancel()
		return nil, fatal(err)
	}

	out, err := a.sinks(withFiles)
	if err != nil {
		cancel()
		return nil, fatal(err)
	}
	return &session{control: control, out: out, ctx: ctx, cancel: cancel}, nil
}

func (a *app) sinks(withFiles bool) (*output.Manager, error) {
	mgr := output.NewManager()
	colored := !a.cfg.Output.NoColor && !color.NoColor
	console, err := output.NewConsoleSink(a.stdout, a.cfg.Output.Format, colored)
	if err != nil {
		return nil, err
	}
	if err := mgr.AddSink(console); err != nil {
		return nil, err
	}
	if !withFiles {
		return mgr, nil
	}

	if a.cfg.Output.Out != "" {
		file, err := output.NewFileSink(a.cfg.Output.Out, a.cfg.Output.OutFormat)
		if err != nil {
			_ = mgr.Close()
			return nil, err
		}
		if err := mgr.AddSink(file); err != nil {
			return nil, err
		}
	}
	if a.cfg.Output.Report != "" {
		report, err := output.NewReportSink(a.cfg.Output.Report)
		if err != nil {
			_ = mgr.Close()
			return nil, err
		}
		if err := mgr.AddSink(report); err != nil {
			return nil, err
		}
	}
	return mgr, nil
}

// write sends v to every sink; sink failures are logged, not fatal.
func (a *app) write(out *output.Manager, v any) {
	if err := out.Write(v); err != nil {
		a.log.WithError(err).Warn("output failed")
	}
}

func status(key model.RepoKey, op string, started time.Time, m *model.Model, err error) output.RepoStatus {
	st := output.RepoStatus{
		Repo:    key.String(),
		Op:      op,
		OK:      err == nil,
		Elapsed: time.Since(started),
	}
	if err != nil {
		st.Error = err.Error()
	}
	if m != nil {
		st.Issues = len(m.Issues)
	}
	return st
}
