package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// localScript loads the model once, then answers one JSON array of texts per
// stdin line with one JSON object per stdout line.
const localScript = `
import json, sys
from sentence_transformers import SentenceTransformer

model = SentenceTransformer(sys.argv[1])
print(json.dumps({"ready": True}), flush=True)
for line in sys.stdin:
    try:
        texts = json.loads(line)
        embeddings = model.encode(texts, normalize_embeddings=True)
        out = {"vectors": [e.tolist() for e in embeddings]}
    except Exception as exc:
        out = {"error": str(exc)}
    print(json.dumps(out), flush=True)
`

// localRestartTimeout bounds reloading the model after the worker died.
const localRestartTimeout = 2 * time.Minute

// localReply is one line written by the worker.
type localReply struct {
	Ready   bool        `json:"ready,omitempty"`
	Vectors [][]float32 `json:"vectors,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// LocalEmbedder runs a sentence-transformers model in one long-lived python3
// worker. Requests are serialized over the worker's stdin and stdout. A worker
// that dies is started again on the next request.
type LocalEmbedder struct {
	model   string
	command []string
	env     []string
	log     *zap.Logger

	sem    chan struct{}
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *strings.Builder
}

// NewLocalEmbedder starts the worker and waits until the model is loaded.
func NewLocalEmbedder(ctx context.Context, model string, log *zap.Logger) (*LocalEmbedder, error) {
	if model == "" {
		model = "BAAI/bge-small-en-v1.5"
	}
	python, err := exec.LookPath("python3")
	if err != nil {
		return nil, fmt.Errorf("local embedder: %w", err)
	}
	return startLocalEmbedder(ctx, model, []string{python, "-u", "-c", localScript, model}, nil, log)
}

func startLocalEmbedder(ctx context.Context, model string, command, env []string, log *zap.Logger) (*LocalEmbedder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &LocalEmbedder{
		model:   model,
		command: command,
		env:     env,
		log:     log.Named("local-embedder"),
		sem:     make(chan struct{}, 1),
	}
	if err := l.start(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// start launches the worker and reads its ready line. Callers hold sem,
// except the constructor.
func (l *LocalEmbedder) start(ctx context.Context) error {
	cmd := exec.Command(l.command[0], l.command[1:]...)
	if l.env != nil {
		cmd.Env = append(os.Environ(), l.env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("local embedder: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("local embedder: %w", err)
	}
	stderr := &strings.Builder{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("local embedder: start worker: %w", err)
	}
	out := bufio.NewReader(stdout)
	l.cmd, l.stdin, l.stdout, l.stderr = cmd, stdin, out, stderr

	ready := make(chan error, 1)
	go func() {
		reply, err := readReply(out)
		if err == nil && !reply.Ready {
			err = fmt.Errorf("unexpected first line from worker")
		}
		ready <- err
	}()

	select {
	case err = <-ready:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		_ = l.stop()
		return fmt.Errorf("local embedder: load %s: %w", l.model, err)
	}
	l.log.Info("worker ready", zap.String("model", l.model), zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Embed generates an embedding vector for a single input text.
func (l *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch encodes all texts in one request to the worker.
func (l *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	input, err := json.Marshal(texts)
	if err != nil {
		return nil, err
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The exchange finishes even if ctx ends first, so the next request never
	// reads a stale reply.
	type result struct {
		vecs [][]float32
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-l.sem }()
		vecs, err := l.exchange(ctx, input)
		done <- result{vecs, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.vecs) != len(texts) {
			return nil, fmt.Errorf("got %d embeddings for %d texts", len(r.vecs), len(texts))
		}
		l.log.Debug("generated embeddings", zap.Int("count", len(r.vecs)), zap.String("model", l.model))
		return r.vecs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// exchange writes one request line and reads one reply. Callers hold sem.
func (l *LocalEmbedder) exchange(ctx context.Context, input []byte) ([][]float32, error) {
	if l.cmd == nil {
		startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), localRestartTimeout)
		defer cancel()
		if err := l.start(startCtx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBackendDown, err)
		}
	}

	if _, err := l.stdin.Write(append(input, '\n')); err != nil {
		return nil, l.fail(err)
	}
	reply, err := readReply(l.stdout)
	if err != nil {
		return nil, l.fail(err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("failed to generate embedding: %s", reply.Error)
	}
	return reply.Vectors, nil
}

func readReply(r *bufio.Reader) (localReply, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return localReply{}, err
	}
	var reply localReply
	if err := json.Unmarshal(line, &reply); err != nil {
		return localReply{}, fmt.Errorf("failed to parse worker output: %w", err)
	}
	return reply, nil
}

// fail tears the worker down after a broken exchange.
func (l *LocalEmbedder) fail(err error) error {
	stderr := l.stderr
	_ = l.stop()
	l.log.Warn("worker died", zap.Error(err), zap.String("stderr", stderr.String()))
	return fmt.Errorf("%w: local worker: %w", ErrBackendDown, err)
}

func (l *LocalEmbedder) stop() error {
	if l.cmd == nil {
		return nil
	}
	_ = l.stdin.Close()
	_ = l.cmd.Process.Kill()
	err := l.cmd.Wait()
	l.cmd, l.stdin, l.stdout, l.stderr = nil, nil, nil, nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// Close stops the worker.
func (l *LocalEmbedder) Close() error {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.stop()
}
