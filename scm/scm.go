// Package scm reads and commits the Mercurial or Git repository of an app
// being released.
package scm

import (
	"context"
	"strings"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

type Kind string

const (
	Mercurial Kind = "hg"
	Git       Kind = "git"
)

// Config is the remote and the author of a repository.
type Config struct {
	URL    string
	Author string
	Email  string
}

// Scm runs hg or git commands in a folder.
type Scm struct {
	exec   executor.Executor
	folder string
	kind   Kind
}

// New detects the repository type of folder. Mercurial is tried first.
func New(ctx context.Context, e executor.Executor, folder string) (*Scm, error) {
	s := &Scm{exec: e, folder: folder}
	isHg, err := s.isMercurial(ctx)
	if err != nil {
		return nil, err
	}
	if isHg {
		s.kind = Mercurial
		return s, nil
	}
	if _, err := s.run(ctx, "git rev-parse --git-dir"); err == nil {
		s.kind = Git
		return s, nil
	}
	return nil, common.NewTaskError("Must be a Mercurial or GIT repository: %s", folder)
}

func (s *Scm) Kind() Kind { return s.kind }

func (s *Scm) run(ctx context.Context, line string) (string, error) {
	result, err := s.exec.Run(ctx, executor.Command{Line: line, Dir: s.folder})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// isMercurial is false when hg is missing or reports no repository. Any
// other hg failure is an error.
func (s *Scm) isMercurial(ctx context.Context) (bool, error) {
	result, err := s.exec.Run(ctx, executor.Command{Line: "hg status", Dir: s.folder})
	if err == nil {
		return true, nil
	}
	if strings.Contains(result.Trimmed(), "no repository found") || executor.ExitCodeOf(err) == 127 {
		return false, nil
	}
	return false, common.NewTaskError("Unexpected error from 'hg status': %s", result.Trimmed())
}

// Config returns the remote URL and the user. A Mercurial default path
// must be on bitbucket; a Git repository must have exactly one remote.
func (s *Scm) Config(ctx context.Context) (Config, error) {
	if s.kind == Mercurial {
		path, err := s.run(ctx, "hg config paths.default")
		if err != nil {
			return Config{}, err
		}
		username, err := s.run(ctx, "hg config ui.username")
		if err != nil {
			return Config{}, err
		}
		path = strings.TrimSpace(path)
		if !strings.Contains(path, "bitbucket") {
			return Config{}, common.NewTaskError("Cannot find bitbucket path to repository: %s", path)
		}
		author, email := splitUsername(strings.TrimSpace(username))
		return Config{URL: path, Author: author, Email: email}, nil
	}

	out, err := s.run(ctx, "git remote")
	if err != nil {
		return Config{}, err
	}
	remotes := strings.Fields(out)
	if len(remotes) != 1 {
		return Config{}, common.NewTaskError("GIT repo must have one remote (found %d). Don't know what to do!", len(remotes))
	}
	url, err := s.run(ctx, "git remote get-url "+executor.Quote(remotes[0]))
	if err != nil {
		return Config{}, err
	}
	name, err := s.run(ctx, "git config --global user.name")
	if err != nil {
		return Config{}, err
	}
	email, err := s.run(ctx, "git config --global user.email")
	if err != nil {
		return Config{}, err
	}
	return Config{
		URL:    strings.TrimSpace(url),
		Author: strings.TrimSpace(name),
		Email:  strings.TrimSpace(email),
	}, nil
}

// splitUsername splits "Patrick Kimber <code@pkimber.net>".
func splitUsername(username string) (string, string) {
	start := strings.Index(username, "<")
	end := strings.Index(username, ">")
	if start == -1 || end < start {
		return username, ""
	}
	return strings.TrimSpace(username[:start]), username[start+1 : end]
}

// Status returns the names of the changed files.
func (s *Scm) Status(ctx context.Context) ([]string, error) {
	line := "hg status"
	if s.kind == Git {
		line = "git status --porcelain"
	}
	out, err := s.run(ctx, line)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, raw := range strings.Split(out, "\n") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		pos := strings.Index(name, " ")
		if pos == -1 {
			return nil, common.NewTaskError("status filename does not contain a space: %s", raw)
		}
		names = append(names, strings.TrimSpace(name[pos+1:]))
	}
	return names, nil
}

// CommitAndTag commits the changed files as "version <version>" and tags
// the commit. Nothing is done when there are no changes.
func (s *Scm) CommitAndTag(ctx context.Context, version string) error {
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	for _, name := range status {
		if strings.Contains(name, " ") {
			return common.NewTaskError("Version control 'status' - filename contains a space: %s", name)
		}
	}
	if len(status) == 0 {
		return nil
	}
	message := executor.Quote("version " + version)
	tag := executor.Quote(version)
	var lines []string
	if s.kind == Mercurial {
		lines = []string{"hg commit -m " + message, "hg tag " + tag}
	} else {
		quoted := make([]string, len(status))
		for i, name := range status {
			quoted[i] = executor.Quote(name)
		}
		lines = []string{
			"git add " + strings.Join(quoted, " "),
			"git commit -m " + message,
			"git tag " + tag,
		}
	}
	for _, line := range lines {
		if _, err := s.run(ctx, line); err != nil {
			return err
		}
	}
	common.Logger.WithField("folder", s.folder).Infof("committed and tagged version %s", version)
	return nil
}
