package object

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/yodusanwo/ai-trip-planner/internal/shared/util"
)

// ObjectStore defines the contract for archiving and reading back generated artifacts.
type ObjectStore interface {
	Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// Key builds the storage key for a job artifact: <client hash>/<job id>_<file name>.
func Key(clientID, jobID, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	if jobID == "" {
		return "", fmt.Errorf("job id is required")
	}
	return path.Join(util.HashClientKey(clientID), jobID+"_"+name), nil
}
