package orchestrator

import (
	"errors"
	"log/slog"
	"os"
)

// removeUploadedFile deletes the job's source upload. Called exactly
// once, after the job reaches a terminal state, regardless of outcome —
// matching the original pipeline's unconditional temp-file cleanup.
func removeUploadedFile(path string, log *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("orchestrator: failed to remove uploaded file", "path", path, "error", err)
	}
}
