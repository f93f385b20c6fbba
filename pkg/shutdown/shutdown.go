package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"chatsync/pkg/logger"
)

// Abort logs a fatal startup error, writes a crash dump next to the store
// and exits. The short delay gives log sinks time to flush.
func Abort(contextMsg string, err error, storePath string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, derr := writeCrashDump(storePath, contextMsg, err)
	if derr != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash dump: %v\n", derr)
	} else {
		logger.Error("crash_dump_written", "path", dumpPath)
		fmt.Fprintf(os.Stderr, "crash dump written: %s\n", dumpPath)
	}
	time.Sleep(2 * time.Second)
	os.Exit(2)
}

// writeCrashDump records the reason, environment and goroutine stacks into
// <storePath>/crash/crash-<ns>.log, written via a temp file and rename.
func writeCrashDump(storePath, reason string, cause error) (string, error) {
	crashDir := "./crash"
	if storePath != "" {
		crashDir = filepath.Join(storePath, "crash")
	}
	if err := os.MkdirAll(crashDir, 0o700); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}

	f, err := os.CreateTemp(crashDir, ".crash-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp crash file: %w", err)
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", cause)
	fmt.Fprintf(f, "pid: %d\n", os.Getpid())
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Sync()
	f.Close()

	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))
	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", fmt.Errorf("move crash dump into place: %w", err)
	}
	_ = os.Chmod(dumpPath, 0o600)
	return dumpPath, nil
}

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and SIGPIPE and
// returns a cancellable context. The context is cancelled when any watched
// signal arrives.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()

	// SIGPIPE also dumps goroutine stacks to aid diagnostics
	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		s := <-sigpipe
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logger.Info("signal_received", "signal", s.String(), "stacks", string(buf[:n]))
		cancel()
	}()

	return ctx, cancel
}
