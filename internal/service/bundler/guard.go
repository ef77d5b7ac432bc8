package bundler

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/nexuspro/nexus-bundler/internal/logger"
)

const (
	// MarkerFilename marks that a build is running right now to avoid
	// two builds fighting over build/ and dist/.
	MarkerFilename = "nexus-bundler-build-marker.bin"

	// executableName is the process name terminated during stale-marker recovery.
	executableName = "nexus-bundler"

	// markerLifetime is the period after which a build marker is considered
	// stale. Bundler runs are long, so this is generous.
	markerLifetime = 2 * time.Hour
)

// IsBuildRunningNow checks presence of a build marker and attempts recovery
// if it looks stale (a crashed run that never removed its marker).
func IsBuildRunningNow(ctx context.Context) bool {
	logger.Info(ctx, "Checking for the presence of a build marker")

	fileInfo, err := os.Stat(MarkerFilename)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The build marker is stale, attempting cleanup")

		if err = terminateProcessByName(executableName); err != nil {
			return true
		}

		if err = os.Remove(MarkerFilename); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Build marker not found, continuing")
		return false
	}

	logger.Infof(ctx, "Unable to read build marker: %v", err)

	return false
}

// terminateProcessByName tries to kill processes with the provided executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}
