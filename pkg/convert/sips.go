// Package convert shells out to the macOS `sips` utility to transcode
// HEIC attachments to JPEG. Conversion is strictly best-effort: a missing
// binary, a failed run or a timeout all degrade to serving the original
// bytes.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"retrospect/pkg/logger"
	"retrospect/pkg/telemetry"
)

// DefaultTimeout bounds one sips invocation.
const DefaultTimeout = 10 * time.Second

// Converter runs sips with a bounded timeout, writing temp output under
// TmpDir.
type Converter struct {
	Bin     string
	Timeout time.Duration
	TmpDir  string
}

// New returns a Converter with defaults filled in.
func New(tmpDir string) *Converter {
	return &Converter{Bin: "sips", Timeout: DefaultTimeout, TmpDir: tmpDir}
}

// IsHEIC reports whether an attachment needs conversion, by MIME type or
// file extension.
func IsHEIC(mimeType, path string) bool {
	if strings.Contains(strings.ToLower(mimeType), "heic") {
		return true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

// ToJPEG converts the file at src and returns the JPEG bytes. The error
// is non-nil on any failure; callers fall back to the original file.
func (c *Converter) ToJPEG(ctx context.Context, src string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := os.CreateTemp(c.TmpDir, "convert-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, c.Bin, "-s", "format", "jpeg", src, "--out", outPath)
	if err := cmd.Run(); err != nil {
		outcome := "error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		telemetry.ConversionInc(outcome)
		logger.Warn("conversion_failed", "source", src, "outcome", outcome, "error", err)
		return nil, fmt.Errorf("sips %s: %w", src, err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		telemetry.ConversionInc("error")
		return nil, fmt.Errorf("read converted output: %w", err)
	}
	telemetry.ConversionInc("ok")
	logger.Debug("conversion_ok", "source", src, "bytes", len(data))
	return data, nil
}
