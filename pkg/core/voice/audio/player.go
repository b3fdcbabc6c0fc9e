package audio

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/vango-go/vai-converse/pkg/core/types"
)

// Player plays raw PCM.
type Player interface {
	Write(pcm []byte) error
	// Reset discards anything queued and is ready for new audio.
	Reset() error
	Close() error
}

// FFplayPlayer pipes 24kHz mono s16le PCM into ffplay. Reset restarts the
// process, which is the only way to drop audio ffplay already buffered.
type FFplayPlayer struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFplayPlayer checks for ffplay. The process starts on first Write.
func NewFFplayPlayer() (*FFplayPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for speech playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	return &FFplayPlayer{}, nil
}

func (p *FFplayPlayer) startLocked() error {
	cmd := exec.Command("ffplay", playerArgs(types.PlaybackSampleRate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	p.cmd = cmd
	p.stdin = stdin
	return nil
}

func playerArgs(sampleRate int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	}
}

func (p *FFplayPlayer) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		if err := p.startLocked(); err != nil {
			return err
		}
	}
	_, err := p.stdin.Write(pcm)
	return err
}

func (p *FFplayPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *FFplayPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *FFplayPlayer) stopLocked() {
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
}
