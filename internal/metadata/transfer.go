package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Endpoint is an ssh file-transfer target.
type Endpoint struct {
	User string
	Host string
	Port int
}

// Transfer copies a single remote file to a local path.
type Transfer interface {
	Fetch(ctx context.Context, from Endpoint, remotePath, localPath string) error
}

// SCP fetches files with the scp binary. It never prompts: host keys
// are accepted and password authentication is disabled.
type SCP struct {
	Binary string
	Logger *zap.Logger
}

// Fetch implements Transfer.
func (s SCP) Fetch(ctx context.Context, from Endpoint, remotePath, localPath string) error {
	binary := s.Binary
	if binary == "" {
		binary = "scp"
	}
	args := []string{
		"-q",
		"-P", strconv.Itoa(from.Port),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		fmt.Sprintf("%s@%s:%s", from.User, from.Host, remotePath),
		localPath,
	}

	if s.Logger != nil {
		s.Logger.Debug("Fetching remote file",
			zap.String("host", from.Host),
			zap.String("path", remotePath),
		)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
