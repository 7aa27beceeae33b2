package project

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// diagnosticLine matches one structured diagnostic emitted by the build
// command, e.g.:
//
//	ERROR E1001 src/main.x:42 undefined reference to 'frobnicate'
//	WARN  W0203 src/util.x:7 unused variable 'tmp'
var diagnosticLine = regexp.MustCompile(`^(ERROR|WARN)\s+(\S+)\s+([^:\s]+):(\d+)\s+(.*)$`)

// ExecBuildRunner runs the configured build command and parses its output.
type ExecBuildRunner struct {
	Root    string
	Command []string
}

// Build implements BuildRunner.
func (r *ExecBuildRunner) Build(ctx context.Context, scope string) (BuildReport, error) {
	if len(r.Command) == 0 {
		return BuildReport{}, errors.New("project: no build command configured")
	}

	args := r.Command[1:]
	if scope != "" {
		args = append(append([]string{}, args...), scope)
	}
	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	cmd.Dir = r.Root

	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return BuildReport{}, fmt.Errorf("project: build command failed to start: %w", err)
		}
		// Non-zero exit: the build ran and failed. Diagnostics are in out.
	}

	report := BuildReport{Success: cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 0}
	for _, line := range strings.Split(string(out), "\n") {
		m := diagnosticLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[4])
		report.Diagnostics = append(report.Diagnostics, record.Diagnostic{
			Code:     m[2],
			Message:  m[5],
			File:     m[3],
			Line:     lineNo,
			Blocking: m[1] == "ERROR",
		})
	}
	return report, nil
}

// FileLogSource parses a runtime log file. Line format:
//
//	LEVEL<tab>source<tab>message
//
// Continuation lines starting with "  at " attach to the preceding line as
// stack trace.
type FileLogSource struct {
	Path string
}

// Tail implements LogSource.
func (s *FileLogSource) Tail(ctx context.Context, max int) ([]record.LogLine, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("project: open log: %w", err)
	}
	defer f.Close()

	var lines []record.LogLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := scanner.Text()
		if strings.HasPrefix(raw, "  at ") && len(lines) > 0 {
			last := &lines[len(lines)-1]
			if last.StackTrace != "" {
				last.StackTrace += "\n"
			}
			last.StackTrace += strings.TrimSpace(raw)
			continue
		}
		parts := strings.SplitN(raw, "\t", 3)
		if len(parts) < 2 {
			continue
		}
		line := record.LogLine{Level: strings.ToLower(parts[0])}
		if len(parts) == 3 {
			line.Source = parts[1]
			line.Message = parts[2]
		} else {
			line.Message = parts[1]
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("project: scan log: %w", err)
	}
	if max > 0 && len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	return lines, nil
}

// FileSampleSource reads JSONL performance samples.
type FileSampleSource struct {
	Path string
}

// Samples implements SampleSource.
func (s *FileSampleSource) Samples(ctx context.Context) ([]record.Sample, error) {
	var out []record.Sample
	err := readJSONL(ctx, s.Path, func(data []byte) error {
		var sample record.Sample
		if err := json.Unmarshal(data, &sample); err != nil {
			return err
		}
		out = append(out, sample)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: read samples: %w", err)
	}
	return out, nil
}

// FileMetricSource reads JSONL behavioral metric results.
type FileMetricSource struct {
	Path string
}

// Metrics implements MetricSource.
func (s *FileMetricSource) Metrics(ctx context.Context) ([]record.MetricResult, error) {
	var out []record.MetricResult
	err := readJSONL(ctx, s.Path, func(data []byte) error {
		var m record.MetricResult
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: read metrics: %w", err)
	}
	return out, nil
}

func readJSONL(ctx context.Context, path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ManifestEntry is one declared resource reference in the project manifest.
type ManifestEntry struct {
	Path         string `yaml:"path"`
	ReferencedBy string `yaml:"referenced_by"`
	Baseline     string `yaml:"baseline,omitempty"`
}

// ManifestResourceGraph validates resources declared in a YAML manifest
// against the project tree.
type ManifestResourceGraph struct {
	Root         string
	ManifestPath string
}

// Resolve implements ResourceGraph. Each manifest entry resolves to a
// ResourceRef; entries whose file is missing or empty resolve invalid.
func (g *ManifestResourceGraph) Resolve(ctx context.Context) ([]record.ResourceRef, error) {
	data, err := os.ReadFile(g.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("project: read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("project: parse manifest: %w", err)
	}

	refs := make([]record.ResourceRef, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref := record.ResourceRef{Path: e.Path, ReferencedBy: e.ReferencedBy, Valid: true}
		info, err := os.Stat(filepath.Join(g.Root, e.Path))
		switch {
		case errors.Is(err, os.ErrNotExist):
			ref.Valid = false
			ref.Reason = "missing"
		case err != nil:
			ref.Valid = false
			ref.Reason = err.Error()
		case info.Size() == 0:
			ref.Valid = false
			ref.Reason = "empty"
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
