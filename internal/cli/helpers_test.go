package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const minimalBucketCUE = `package infra

resources: {
	bucket: {
		type: "object-store-bucket"
		attrs: {
			name:       "tf-state"
			versioning: true
		}
	}
}
`

const bucketPolicyCUE = `package infra

resources: {
	bucket: {
		type: "object-store-bucket"
		attrs: {
			name:       "tf-state"
			versioning: true
		}
	}
	policy: {
		type: "assumable-role"
		attrs: {
			name:         "deployer"
			trust_source: "${bucket.id}"
			policy_scope: "read-only"
		}
	}
}
`

// writeDeclaration materializes CUE sources into a fresh directory.
func writeDeclaration(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// stateDSN returns a DSN pointing at a throwaway SQLite state file.
func stateDSN(t *testing.T) string {
	t.Helper()
	return "sqlite://" + filepath.Join(t.TempDir(), "state.db")
}
