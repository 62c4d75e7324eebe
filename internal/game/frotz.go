// Package game drives a Z-Machine interpreter (dfrotz) as a child
// process: send a command, collect the text it prints, save and
// restore snapshots, and classify terminal output.
package game

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tatianab/autoplay/internal/models"
)

// outputQuiet is how long the reader waits after the last byte before
// deciding the interpreter is done talking.
const outputQuiet = 400 * time.Millisecond

// outputDeadline caps the total wait for one command's output.
const outputDeadline = 10 * time.Second

// Process wraps one running dfrotz interpreter.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	done   chan struct{}
	intro  string
	logger *slog.Logger
}

// Start launches dfrotz against a game file and captures the intro
// text.
func Start(gameFile string, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command("dfrotz", "-m", "-q", gameFile)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start dfrotz: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go p.pump(stdout)

	p.intro = p.collect()
	logger.Info("game loaded", "file", gameFile)
	return p, nil
}

// pump feeds interpreter output lines into the channel until the
// process exits.
func (p *Process) pump(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	close(p.done)
}

// collect gathers output lines until the interpreter goes quiet.
func (p *Process) collect() string {
	var b strings.Builder
	deadline := time.After(outputDeadline)
	for {
		select {
		case line := <-p.lines:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(strings.TrimSuffix(line, ">"))
		case <-time.After(outputQuiet):
			return strings.TrimSpace(b.String())
		case <-deadline:
			return strings.TrimSpace(b.String())
		case <-p.done:
			return strings.TrimSpace(b.String())
		}
	}
}

// IntroText returns the text printed when the game started.
func (p *Process) IntroText() string { return p.intro }

// SendCommand writes one command to the game and returns its reply.
// Errors surface as an error-tagged output string so the turn loop can
// classify and continue.
func (p *Process) SendCommand(command string) string {
	if _, err := io.WriteString(p.stdin, command+"\n"); err != nil {
		p.logger.Error("command write failed", "command", command, "err", err)
		return fmt.Sprintf("[error: %v]", err)
	}
	output := p.collect()
	p.logger.Debug("command executed", "command", command, "output_len", len(output))
	return output
}

// Save snapshots the game into a named slot file via the game's own
// save dialog.
func (p *Process) Save(slotName string) bool {
	out := p.SendCommand("save")
	if strings.Contains(strings.ToLower(out), "filename") || strings.Contains(out, ":") {
		out = p.SendCommand(slotName)
	}
	if strings.Contains(strings.ToLower(out), "overwrite") ||
		strings.Contains(strings.ToLower(out), "y/n") {
		out = p.SendCommand("y")
	}
	ok := !strings.Contains(strings.ToLower(out), "fail")
	if ok {
		p.logger.Info("game saved", "slot", slotName)
	} else {
		p.logger.Warn("save failed", "slot", slotName, "output", out)
	}
	return ok
}

// Restore loads a previously saved slot file.
func (p *Process) Restore(slotName string) bool {
	out := p.SendCommand("restore")
	if strings.Contains(strings.ToLower(out), "filename") || strings.Contains(out, ":") {
		out = p.SendCommand(slotName)
	}
	lower := strings.ToLower(out)
	ok := !strings.Contains(lower, "fail") && !strings.Contains(lower, "can't find") &&
		!strings.Contains(lower, "error")
	if ok {
		p.logger.Info("game restored", "slot", slotName)
	} else {
		p.logger.Warn("restore failed", "slot", slotName, "output", out)
	}
	return ok
}

// Terminate shuts the interpreter down.
func (p *Process) Terminate() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.stdin.Close()
	p.logger.Info("game process terminated")
}

// ClassifyTerminal checks output against the death patterns first,
// then the victory patterns.
func ClassifyTerminal(output string) models.Terminal {
	if output == "" {
		return models.TerminalNone
	}
	for _, re := range deathPatterns {
		if re.MatchString(output) {
			return models.TerminalDeath
		}
	}
	for _, re := range victoryPatterns {
		if re.MatchString(output) {
			return models.TerminalVictory
		}
	}
	return models.TerminalNone
}

// IsFailure reports whether output reads like a refused or failed
// action.
func IsFailure(output string) bool {
	lower := strings.ToLower(output)
	for _, phrase := range failurePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
