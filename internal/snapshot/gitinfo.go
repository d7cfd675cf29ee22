package snapshot

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// GitProbe reports the git branch and worktree root for a directory. Both
// are empty when the directory is not inside a repository.
type GitProbe func(ctx context.Context, dir string) (branch, worktree string)

const gitTimeout = 2 * time.Second

// GitInfo shells out to git. Any failure means "not a repository" as far as
// snapshots are concerned.
func GitInfo(ctx context.Context, dir string) (string, string) {
	branch := gitOutput(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if branch == "" {
		return "", ""
	}
	worktree := gitOutput(ctx, dir, "rev-parse", "--show-toplevel")
	return branch, worktree
}

func gitOutput(ctx context.Context, dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
