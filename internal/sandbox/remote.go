package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RemoteProvider is a generic HTTP-API-backed provider implementation shared
// by the daytona-like and microvm-like backends: both expose a REST-ish
// control plane over sandbox lifecycle and a remote-shell RPC. Grounded on
// the teacher's HTTP-calling conventions in runtime/a2a/caller.go and rate
// limiting in features/model/middleware/ratelimit.go.
type RemoteProvider struct {
	Name       ProviderType
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// NewRemoteProvider builds a RemoteProvider. A nil limiter disables
// client-side throttling.
func NewRemoteProvider(name ProviderType, baseURL, apiKey string, limiter *rate.Limiter) *RemoteProvider {
	return &RemoteProvider{
		Name:       name,
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
		Limiter:    limiter,
	}
}

func (p *RemoteProvider) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("sandbox: encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("sandbox: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("sandbox: %s %s: http %d", method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sandbox: %s %s: http %d: %s", method, path, resp.StatusCode, string(data))
	}
	if respBody == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

type createResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func (p *RemoteProvider) Create(ctx context.Context) (Handle, error) {
	var out createResponse
	var h Handle
	err := Retry(ctx, DefaultRetryConfig(), nil, func(ctx context.Context) error {
		return p.doJSON(ctx, http.MethodPost, "/sandboxes", map[string]any{"requestId": uuid.NewString()}, &out)
	})
	if err != nil {
		return Handle{}, err
	}
	h = Handle{ID: out.ID, State: State(out.State), ProviderType: p.Name}
	if h.State == "" {
		h.State = StateCreating
	}
	return h, nil
}

func (p *RemoteProvider) Get(ctx context.Context, id string) (Handle, error) {
	var out createResponse
	err := Retry(ctx, DefaultRetryConfig(), nil, func(ctx context.Context) error {
		return p.doJSON(ctx, http.MethodGet, "/sandboxes/"+id, nil, &out)
	})
	if err != nil {
		return Handle{ID: id, State: StateUnknown, ProviderType: p.Name}, err
	}
	state := State(out.State)
	if state == "" {
		state = StateUnknown
	}
	return Handle{ID: id, State: state, ProviderType: p.Name}, nil
}

func (p *RemoteProvider) Stop(ctx context.Context, id string) error {
	return Retry(ctx, DefaultRetryConfig(), nil, func(ctx context.Context) error {
		return p.doJSON(ctx, http.MethodPost, "/sandboxes/"+id+"/stop", nil, nil)
	})
}

func (p *RemoteProvider) Start(ctx context.Context, id string) error {
	return Retry(ctx, DefaultRetryConfig(), nil, func(ctx context.Context) error {
		return p.doJSON(ctx, http.MethodPost, "/sandboxes/"+id+"/start", nil, nil)
	})
}

func (p *RemoteProvider) Delete(ctx context.Context, id string) error {
	return Retry(ctx, DefaultRetryConfig(), nil, func(ctx context.Context) error {
		return p.doJSON(ctx, http.MethodDelete, "/sandboxes/"+id, nil, nil)
	})
}

func (p *RemoteProvider) List(ctx context.Context) ([]Handle, error) {
	var out []createResponse
	err := Retry(ctx, DefaultRetryConfig(), nil, func(ctx context.Context) error {
		return p.doJSON(ctx, http.MethodGet, "/sandboxes", nil, &out)
	})
	if err != nil {
		return nil, err
	}
	handles := make([]Handle, len(out))
	for i, o := range out {
		handles[i] = Handle{ID: o.ID, State: State(o.State), ProviderType: p.Name}
	}
	return handles, nil
}

func (p *RemoteProvider) Open(ctx context.Context, id string) (Sandbox, error) {
	return &remoteSandbox{provider: p, id: id}, nil
}

// remoteSandbox implements Sandbox by issuing shell commands over the
// provider's remote-execution RPC; providers without a native git surface
// get Git() implemented as shell commands with a transient credential
// helper, per SPEC_FULL.md §4.1.
type remoteSandbox struct {
	provider *RemoteProvider
	id       string
}

type execResponse struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

func (s *remoteSandbox) ExecuteCommand(ctx context.Context, p ExecuteParams) (CommandResult, error) {
	var out execResponse
	err := Retry(ctx, DefaultRetryConfig(), nil, func(ctx context.Context) error {
		return s.provider.doJSON(ctx, http.MethodPost, "/sandboxes/"+s.id+"/exec", map[string]any{
			"command":    p.Command,
			"workdir":    p.Workdir,
			"env":        p.Env,
			"timeoutSec": p.TimeoutSec,
		}, &out)
	})
	if err != nil {
		return CommandResult{}, err
	}
	return CommandResult{ExitCode: out.ExitCode, Stdout: out.Stdout, Stderr: out.Stderr}, nil
}

func (s *remoteSandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var out struct {
		Content []byte `json:"content"`
	}
	err := s.provider.doJSON(ctx, http.MethodGet, "/sandboxes/"+s.id+"/files?path="+path, nil, &out)
	return out.Content, err
}

func (s *remoteSandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	return s.provider.doJSON(ctx, http.MethodPut, "/sandboxes/"+s.id+"/files", map[string]any{
		"path": path, "content": data,
	}, nil)
}

func (s *remoteSandbox) Exists(ctx context.Context, path string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := s.provider.doJSON(ctx, http.MethodGet, "/sandboxes/"+s.id+"/files/exists?path="+path, nil, &out)
	return out.Exists, err
}

func (s *remoteSandbox) Mkdir(ctx context.Context, path string) error {
	_, err := s.shell(ctx, "mkdir -p "+shellQuote(path))
	return err
}

func (s *remoteSandbox) Remove(ctx context.Context, path string) error {
	_, err := s.shell(ctx, "rm -rf "+shellQuote(path))
	return err
}

func (s *remoteSandbox) shell(ctx context.Context, cmd string) (CommandResult, error) {
	return s.ExecuteCommand(ctx, ExecuteParams{Command: cmd})
}

func (s *remoteSandbox) Git() Git { return &remoteGit{s: s} }

type remoteGit struct{ s *remoteSandbox }

func (g *remoteGit) runOK(ctx context.Context, workdir, cmd string) error {
	res, err := g.s.ExecuteCommand(ctx, ExecuteParams{Command: cmd, Workdir: workdir})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: git command failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func (g *remoteGit) Clone(ctx context.Context, p GitCloneParams) error {
	authURL, err := CredentialHelperURL(p.URL, p.Token)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("git clone --depth 1 --branch %s %s %s", shellQuote(p.Branch), shellQuote(authURL), shellQuote(p.TargetDir))
	return g.runOK(ctx, "", cmd)
}

func (g *remoteGit) Add(ctx context.Context, workdir string, paths []string) error {
	cmd := "git add"
	for _, p := range paths {
		cmd += " " + shellQuote(p)
	}
	return g.runOK(ctx, workdir, cmd)
}

func (g *remoteGit) Commit(ctx context.Context, workdir, message string) error {
	return g.runOK(ctx, workdir, "git commit -m "+shellQuote(message))
}

func (g *remoteGit) Push(ctx context.Context, workdir, branch string) error {
	return g.runOK(ctx, workdir, "git push -u origin "+shellQuote(branch))
}

func (g *remoteGit) Pull(ctx context.Context, workdir, branch string) error {
	return g.runOK(ctx, workdir, "git pull origin "+shellQuote(branch))
}

func (g *remoteGit) CreateBranch(ctx context.Context, workdir, branch string) error {
	return g.runOK(ctx, workdir, "git checkout -b "+shellQuote(branch))
}

func (g *remoteGit) Status(ctx context.Context, workdir string) (string, error) {
	res, err := g.s.ExecuteCommand(ctx, ExecuteParams{Command: "git status --porcelain", Workdir: workdir})
	return res.Stdout, err
}
