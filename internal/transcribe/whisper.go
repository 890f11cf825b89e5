package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/spal-labs/transcriberd/pkg/log"
)

// WhisperCLI runs a whisper.cpp style command line binary. The binary prints
// one segment per line on stdout:
//
//	[00:00:00.000 --> 00:00:04.200]  hello world
//
// Percent progress is derived from the segment end over the media duration
// probed with ffprobe. A failed probe degrades to no progress reporting, it
// never fails the transcription.
type WhisperCLI struct {
	binary     string
	ffprobeCmd string
	model      string
	device     string
	threads    int
}

func NewWhisperCLI(binary, model, device string, threads int) *WhisperCLI {
	if binary == "" {
		binary = "whisper-cli"
	}
	return &WhisperCLI{
		binary:     binary,
		ffprobeCmd: "ffprobe",
		model:      model,
		device:     device,
		threads:    threads,
	}
}

func (w *WhisperCLI) Transcribe(ctx context.Context, mediaPath string, onProgress ProgressFunc) (string, error) {
	cmdPath, err := exec.LookPath(w.binary)
	if err != nil {
		return "", fmt.Errorf("transcription binary %q not found: %w", w.binary, err)
	}

	duration := w.probeDuration(ctx, mediaPath)

	cmd := exec.CommandContext(ctx, cmdPath, w.transcribeArgs(mediaPath)...)
	var stderr tailWriter
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start transcription: %w", err)
	}

	var text strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		segEnd, line, ok := parseSegment(scanner.Text())
		if !ok {
			continue
		}
		text.WriteString(line)
		text.WriteByte('\n')
		if onProgress != nil && duration > 0 && segEnd > 0 {
			onProgress(segEnd / duration * 100)
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if tail := stderr.String(); tail != "" {
			return "", fmt.Errorf("transcription engine: %v: %s", err, tail)
		}
		return "", fmt.Errorf("transcription engine: %w", err)
	}
	if scanErr != nil {
		return "", fmt.Errorf("read engine output: %w", scanErr)
	}

	if onProgress != nil {
		onProgress(100)
	}
	return text.String(), nil
}

func (w *WhisperCLI) transcribeArgs(mediaPath string) []string {
	args := []string{
		"--no-prints",
		"--model", w.model,
	}
	if w.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(w.threads))
	}
	if w.device == "cpu" {
		args = append(args, "--no-gpu")
	}
	return append(args, "--file", mediaPath)
}

// probeDuration returns the media duration in seconds, or 0 when ffprobe is
// unavailable or cannot parse the file.
func (w *WhisperCLI) probeDuration(ctx context.Context, mediaPath string) float64 {
	cmdPath, err := exec.LookPath(w.ffprobeCmd)
	if err != nil {
		return 0
	}
	cmd := exec.CommandContext(ctx, cmdPath, probeArgs(mediaPath)...)
	output, err := cmd.Output()
	if err != nil {
		log.Warn("ffprobe failed for %s: %v", mediaPath, err)
		return 0
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return 0
	}
	duration, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return duration
}

func probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}
}

const tailLimit = 2048

// tailWriter keeps the last tailLimit bytes written, so an engine failure can
// carry its closing stderr lines in the recorded reason.
type tailWriter struct {
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) > tailLimit {
		w.buf = w.buf[len(w.buf)-tailLimit:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return strings.TrimSpace(string(w.buf))
}

var segmentRe = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2}\.\d{3}) --> (\d{2}:\d{2}:\d{2}\.\d{3})\]\s*(.*)$`)

// parseSegment extracts the end timestamp in seconds and the text of one
// engine output line.
func parseSegment(line string) (float64, string, bool) {
	m := segmentRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, "", false
	}
	end, err := parseTimestamp(m[2])
	if err != nil {
		return 0, "", false
	}
	return end, strings.TrimSpace(m[3]), true
}

func parseTimestamp(ts string) (float64, error) {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return float64(h)*3600 + float64(m)*60 + s, nil
}
