package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"papercast/internal/capability"
)

// minFreeBytes is the free-space floor below which the disk check fails.
// Episode WAV files for a long document run to hundreds of megabytes.
const minFreeBytes = 1 << 30

// CheckDirectoryAccess verifies that the directory exists (creating it when
// absent) and is readable and writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(path, 0o755); mkErr != nil {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: create: %v)", path, mkErr)}
			}
			info, err = os.Stat(path)
		}
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding path has room for episode
// artifacts.
func CheckDiskSpace(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (only %d MiB free)", path, free>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d GiB free)", path, free>>30)}
}

// CheckCapability verifies one capability endpoint is reachable and
// authenticated. A single attempt with a short timeout; the runtime clients
// carry their own retry policy.
func CheckCapability(ctx context.Context, name string, checker capability.HealthChecker) Result {
	label := name + " capability"
	if checker == nil {
		return Result{Name: label, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := checker.HealthCheck(checkCtx); err != nil {
		return Result{Name: label, Detail: summarizeCapabilityError(err)}
	}
	return Result{Name: label, Passed: true, Detail: "reachable"}
}

func summarizeCapabilityError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (endpoint unreachable)"
	}
	return err.Error()
}
