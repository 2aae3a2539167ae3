package directory

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/MichelKrispin/onionroute/internal/apperrors"
	"github.com/MichelKrispin/onionroute/internal/logging"
)

// HopConfig carries the environment a spawned hop process needs, mirroring
// the env vars original_source/IntermediateNode/main.py reads at startup
// (PORT, DIRECTORY_NODE, THIS_NODE, TRACKING_ID, PUBLIC_KEY).
type HopConfig struct {
	Port          int
	DirectoryNode string
	ThisNode      string
	TrackingID    string
	PublicKeyPEM  string
}

// Orchestrator launches and stops hop processes by logical name.
type Orchestrator interface {
	Launch(ctx context.Context, name string, cfg HopConfig) error
	Stop(ctx context.Context, name string) error
}

// ProcessOrchestrator spawns hops as OS processes using a configurable
// command-line template, grounded on identity_windows.go's runExec
// (exec.Command wrapped with captured stderr) and tokenized with
// go-shellquote the way a shell would split it, since the template is
// supplied as one configuration string rather than a pre-split argv.
type ProcessOrchestrator struct {
	mu       sync.Mutex
	procs    map[string]*os.Process
	template string
	client   *http.Client
	log      *logging.Logger
}

// NewProcessOrchestrator builds an orchestrator that launches hop processes
// by expanding cmdTemplate, e.g. "go run ./cmd/hop". The template is split
// with go-shellquote before each launch.
func NewProcessOrchestrator(cmdTemplate string, log *logging.Logger) *ProcessOrchestrator {
	return &ProcessOrchestrator{
		procs:    make(map[string]*os.Process),
		template: cmdTemplate,
		client:   &http.Client{Timeout: 2 * time.Second},
		log:      log,
	}
}

// Launch starts the hop process and blocks until its HTTP server answers
// GET /info, approximating the reference's synchronous subprocess-ready
// contract without a fixed sleep.
func (p *ProcessOrchestrator) Launch(ctx context.Context, name string, cfg HopConfig) error {
	args, err := shellquote.Split(p.template)
	if err != nil || len(args) == 0 {
		return &apperrors.OrchestratorError{Msg: fmt.Sprintf("invalid launch command template: %v", err)}
	}

	cmd := exec.CommandContext(context.Background(), args[0], args[1:]...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PORT=%d", cfg.Port),
		"DIRECTORY_NODE="+cfg.DirectoryNode,
		"THIS_NODE="+cfg.ThisNode,
		"TRACKING_ID="+cfg.TrackingID,
		"PUBLIC_KEY="+cfg.PublicKeyPEM,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return &apperrors.OrchestratorError{Msg: fmt.Sprintf("failed to start %s: %v", name, err)}
	}

	p.mu.Lock()
	p.procs[name] = cmd.Process
	p.mu.Unlock()

	if err := p.awaitReady(ctx, cfg.Port); err != nil {
		_ = cmd.Process.Kill()
		p.mu.Lock()
		delete(p.procs, name)
		p.mu.Unlock()
		return err
	}

	p.log.Printf("launched %s on port %d", name, cfg.Port)
	return nil
}

// awaitReady polls the hop's /info endpoint until it responds, ctx expires,
// or 5 seconds pass.
func (p *ProcessOrchestrator) awaitReady(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/info", port)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return &apperrors.OrchestratorError{Msg: "launch canceled"}
		default:
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			if resp, err := p.client.Do(req); err == nil {
				resp.Body.Close()
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return &apperrors.OrchestratorError{Msg: "hop process did not become ready in time"}
}

// Stop sends an interrupt and, failing that, kills the named hop process.
func (p *ProcessOrchestrator) Stop(ctx context.Context, name string) error {
	p.mu.Lock()
	proc, ok := p.procs[name]
	delete(p.procs, name)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return proc.Kill()
	}
	return nil
}

// randNodeID draws a node identifier in [minNodeID,maxNodeID].
func randNodeID() int {
	return minNodeID + rand.Intn(maxNodeID-minNodeID+1)
}
