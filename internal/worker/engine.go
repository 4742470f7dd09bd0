package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ternarybob/psdocling/internal/models"
)

const (
	stderrTail     = 4096
	stdoutTail     = 2048
	completionScan = 64 * 1024
)

// engineProcess is one running conversion engine
type engineProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	done   chan error
}

// engineArgs builds the positional argument list the engine expects
func engineArgs(desc *models.JobDescriptor, dst string) []string {
	return []string{
		desc.FilePath,
		dst,
		string(desc.ExportFormat),
		strconv.FormatBool(desc.EmbedImages),
		strconv.FormatBool(desc.Enrichment.Code),
		strconv.FormatBool(desc.Enrichment.Formula),
		strconv.FormatBool(desc.Enrichment.PictureClasses),
		strconv.FormatBool(desc.Enrichment.PictureDescription),
	}
}

// startEngine launches the engine with stdout and stderr captured to temp files
func startEngine(opts Options, jobID string, args []string) (*engineProcess, error) {
	if len(opts.EngineCommand) == 0 {
		return nil, errors.New("engine command is not configured")
	}

	stdout, err := os.CreateTemp("", "psdocling-"+jobID+"-stdout-*.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout capture: %w", err)
	}
	stderr, err := os.CreateTemp("", "psdocling-"+jobID+"-stderr-*.log")
	if err != nil {
		removeCapture(stdout)
		return nil, fmt.Errorf("failed to create stderr capture: %w", err)
	}

	argv := append(append([]string{}, opts.EngineCommand[1:]...), args...)
	cmd := exec.Command(opts.EngineCommand[0], argv...)
	cmd.Dir = opts.EngineWorkDir
	cmd.Env = append(os.Environ(), opts.EngineEnv...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		removeCapture(stdout)
		removeCapture(stderr)
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	p := &engineProcess{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan error, 1),
	}
	go func() {
		p.done <- cmd.Wait()
	}()
	return p, nil
}

// kill terminates the engine and its process group
func (p *engineProcess) kill() {
	killProcess(p.cmd)
}

// exitCode returns the engine exit code once it has exited
func (p *engineProcess) exitCode() *int {
	if p.cmd.ProcessState == nil {
		return nil
	}
	code := p.cmd.ProcessState.ExitCode()
	return &code
}

// stdoutTail returns the end of captured stdout
func (p *engineProcess) stdoutTail() string {
	return readTail(p.stdout.Name(), stdoutTail)
}

// stderrTail returns the end of captured stderr
func (p *engineProcess) stderrTail() string {
	return readTail(p.stderr.Name(), stderrTail)
}

// completion returns the last completion signal on stdout, or nil
func (p *engineProcess) completion() *models.EngineResult {
	return parseCompletion(readTail(p.stdout.Name(), completionScan))
}

// cleanup removes the capture files
func (p *engineProcess) cleanup() {
	removeCapture(p.stdout)
	removeCapture(p.stderr)
}

func removeCapture(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}

// parseCompletion scans stdout from the end for a JSON object carrying a
// "success" key. Log lines and other JSON printed by the engine are ignored.
func parseCompletion(stdout string) *models.EngineResult {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var result models.EngineResult
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			continue
		}
		if result.Success == nil {
			continue
		}
		return &result
	}
	return nil
}

// readTail returns at most limit bytes from the end of the file at path
func readTail(path string, limit int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := info.Size() - limit
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return ""
	}
	if offset > 0 {
		// Drop the partial first line
		if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
			data = data[idx+1:]
		}
	}
	return strings.ToValidUTF8(string(data), "")
}
