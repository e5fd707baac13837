package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalProvider executes against the host filesystem, used when the
// registry variable selects "local" (SPEC_FULL.md §4.1 Provider selection).
type LocalProvider struct {
	root    string
	handles map[string]Handle
}

// NewLocalProvider builds a LocalProvider rooted at dir.
func NewLocalProvider(dir string) *LocalProvider {
	return &LocalProvider{root: dir, handles: map[string]Handle{}}
}

func (p *LocalProvider) Create(_ context.Context) (Handle, error) {
	id := uuid.NewString()
	h := Handle{ID: id, State: StateStarted, ProviderType: ProviderLocal}
	p.handles[id] = h
	return h, os.MkdirAll(filepath.Join(p.root, id), 0o755)
}

func (p *LocalProvider) Get(_ context.Context, id string) (Handle, error) {
	h, ok := p.handles[id]
	if !ok {
		return Handle{State: StateUnknown}, nil
	}
	return h, nil
}

func (p *LocalProvider) Stop(_ context.Context, id string) error {
	h, ok := p.handles[id]
	if !ok {
		return nil
	}
	h.State = StateStopped
	p.handles[id] = h
	return nil
}

func (p *LocalProvider) Start(_ context.Context, id string) error {
	h, ok := p.handles[id]
	if !ok {
		return fmt.Errorf("sandbox: unknown local sandbox %q", id)
	}
	h.State = StateStarted
	p.handles[id] = h
	return nil
}

func (p *LocalProvider) Delete(_ context.Context, id string) error {
	delete(p.handles, id)
	return os.RemoveAll(filepath.Join(p.root, id))
}

func (p *LocalProvider) List(_ context.Context) ([]Handle, error) {
	out := make([]Handle, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, h)
	}
	return out, nil
}

func (p *LocalProvider) Open(_ context.Context, id string) (Sandbox, error) {
	h, ok := p.handles[id]
	if !ok {
		return nil, fmt.Errorf("sandbox: unknown local sandbox %q", id)
	}
	return &localSandbox{dir: filepath.Join(p.root, h.ID)}, nil
}

type localSandbox struct{ dir string }

func (s *localSandbox) ExecuteCommand(ctx context.Context, p ExecuteParams) (CommandResult, error) {
	workdir := s.dir
	if p.Workdir != "" {
		workdir = filepath.Join(s.dir, p.Workdir)
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", p.Command)
	cmd.Dir = workdir
	for k, v := range p.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := asExitError(err); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		// Transport failure (binary missing, context cancelled): propagate.
		return CommandResult{}, err
	}
	return CommandResult{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (s *localSandbox) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, path))
}

func (s *localSandbox) WriteFile(_ context.Context, path string, data []byte) error {
	full := filepath.Join(s.dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (s *localSandbox) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, path))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *localSandbox) Mkdir(_ context.Context, path string) error {
	return os.MkdirAll(filepath.Join(s.dir, path), 0o755)
}

func (s *localSandbox) Remove(_ context.Context, path string) error {
	return os.RemoveAll(filepath.Join(s.dir, path))
}

func (s *localSandbox) Git() Git { return &shellGit{sb: s} }

// shellGit implements Git as shell commands, used by providers without a
// native git surface (SPEC_FULL.md §4.1).
type shellGit struct{ sb *localSandbox }

func (g *shellGit) run(ctx context.Context, workdir, cmd string) error {
	res, err := g.sb.ExecuteCommand(ctx, ExecuteParams{Command: cmd, Workdir: workdir})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: git command failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func (g *shellGit) Clone(ctx context.Context, p GitCloneParams) error {
	authURL, err := CredentialHelperURL(p.URL, p.Token)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("git clone --depth 1 --branch %s %s %s", shellQuote(p.Branch), shellQuote(authURL), shellQuote(p.TargetDir))
	return g.run(ctx, "", cmd)
}

func (g *shellGit) Add(ctx context.Context, workdir string, paths []string) error {
	cmd := "git add"
	for _, p := range paths {
		cmd += " " + shellQuote(p)
	}
	return g.run(ctx, workdir, cmd)
}

func (g *shellGit) Commit(ctx context.Context, workdir, message string) error {
	return g.run(ctx, workdir, fmt.Sprintf("git commit -m %s", shellQuote(message)))
}

func (g *shellGit) Push(ctx context.Context, workdir, branch string) error {
	return g.run(ctx, workdir, fmt.Sprintf("git push -u origin %s", shellQuote(branch)))
}

func (g *shellGit) Pull(ctx context.Context, workdir, branch string) error {
	return g.run(ctx, workdir, fmt.Sprintf("git pull origin %s", shellQuote(branch)))
}

func (g *shellGit) CreateBranch(ctx context.Context, workdir, branch string) error {
	return g.run(ctx, workdir, fmt.Sprintf("git checkout -b %s", shellQuote(branch)))
}

func (g *shellGit) Status(ctx context.Context, workdir string) (string, error) {
	res, err := g.sb.ExecuteCommand(ctx, ExecuteParams{Command: "git status --porcelain", Workdir: workdir})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
