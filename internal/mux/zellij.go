package mux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// minZellijVersion is the oldest release whose action set covers tab
// switching by name and layout dumps.
const minZellijVersion = "0.39.0"

// defaultCommandTimeout bounds every round trip so a hung multiplexer fails
// the invocation instead of the terminal session.
const defaultCommandTimeout = 5 * time.Second

// notFoundRe matches zellij rejections for unknown targets. A rejected
// command is a distinct outcome from a transport failure.
var notFoundRe = regexp.MustCompile(`(?i)(not found|no such|doesn'?t exist|no tab|no pane|no session)`)

// Zellij implements Multiplexer by shelling out to the zellij binary.
type Zellij struct {
	timeout time.Duration

	versionOnce sync.Once
	versionErr  error
}

// NewZellij creates a zellij driver with the given per-command timeout
// (defaultCommandTimeout when zero).
func NewZellij(timeout time.Duration) *Zellij {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Zellij{timeout: timeout}
}

// Name returns "zellij".
func (z *Zellij) Name() string { return "zellij" }

// ActiveSession reports the session this process runs inside.
func (z *Zellij) ActiveSession() (string, bool) {
	s := os.Getenv("ZELLIJ_SESSION_NAME")
	return s, s != ""
}

// CheckVersion runs "zellij --version" once per process lifetime and
// verifies the minimum supported version.
func (z *Zellij) CheckVersion(ctx context.Context) error {
	z.versionOnce.Do(func() {
		out, err := z.raw(ctx, "--version")
		if err != nil {
			z.versionErr = fmt.Errorf("running 'zellij --version' (is zellij installed?): %w", err)
			return
		}
		version := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "zellij "))
		if cmp, err := compareVersions(version, minZellijVersion); err != nil {
			z.versionErr = fmt.Errorf("parsing zellij version %q: %w", version, err)
		} else if cmp < 0 {
			z.versionErr = fmt.Errorf("zellij %s is too old; need %s or later", version, minZellijVersion)
		}
	})
	return z.versionErr
}

// TabNames lists the current session's tab names.
func (z *Zellij) TabNames(ctx context.Context) ([]string, error) {
	out, err := z.action(ctx, "query-tab-names")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// EnsureTab switches to the named tab, creating it first when absent.
func (z *Zellij) EnsureTab(ctx context.Context, name string) (bool, error) {
	tabs, err := z.TabNames(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tabs {
		if t == name {
			return false, z.SwitchTab(ctx, name)
		}
	}
	if _, err := z.action(ctx, "new-tab", "--name", name); err != nil {
		// A concurrent creation racing us is success-equivalent.
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return false, z.SwitchTab(ctx, name)
		}
		return false, fmt.Errorf("creating tab %q: %w", name, err)
	}
	return true, nil
}

// SwitchTab focuses the named tab.
func (z *Zellij) SwitchTab(ctx context.Context, name string) error {
	_, err := z.action(ctx, "go-to-tab-name", name)
	return err
}

// CreatePane splits the focused tab. The returned index is the focused
// tab's pane count before the split, a creation-time hint only.
func (z *Zellij) CreatePane(ctx context.Context, dir Direction, cwd string) (int, error) {
	index := 0
	if tree, err := z.DumpLayout(ctx); err == nil && tree != nil {
		if tab := tree.FocusedTab(); tab != nil {
			index = len(tab.Panes)
		}
	}

	args := []string{"new-pane", "--direction", string(dir)}
	if cwd != "" {
		args = append(args, "--cwd", cwd)
	}
	if _, err := z.action(ctx, args...); err != nil {
		return 0, fmt.Errorf("creating pane: %w", err)
	}
	return index, nil
}

// RenamePane renames the focused pane.
func (z *Zellij) RenamePane(ctx context.Context, name string) error {
	_, err := z.action(ctx, "rename-pane", name)
	return err
}

// FocusPaneAt reaches the pane at index via sequential relative movement;
// zellij has no absolute focus-by-index action.
func (z *Zellij) FocusPaneAt(ctx context.Context, index int) error {
	for i := 0; i < index; i++ {
		if _, err := z.action(ctx, "focus-next-pane"); err != nil {
			return fmt.Errorf("focus step %d of %d: %w", i+1, index, err)
		}
	}
	return nil
}

// DumpLayout introspects the session. (nil, nil) means introspection is
// unavailable: the action is missing on older versions or returned nothing.
func (z *Zellij) DumpLayout(ctx context.Context) (*LayoutTree, error) {
	out, err := z.action(ctx, "dump-layout")
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unrecognized") ||
			strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			return nil, nil
		}
		return nil, err
	}
	return parseLayoutDump(out), nil
}

// CapturePaneContext resolves one pane's cwd/command/scroll from a fresh
// layout dump. Scroll is not exposed by zellij introspection and is
// reported as 0.
func (z *Zellij) CapturePaneContext(ctx context.Context, pane string) (*PaneContext, error) {
	tree, err := z.DumpLayout(ctx)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("capture context for %q: introspection unavailable", pane)
	}
	for _, tab := range tree.Tabs {
		for _, p := range tab.Panes {
			if p.Name == pane {
				return &PaneContext{Cwd: p.Cwd, Command: p.Command}, nil
			}
		}
	}
	return nil, fmt.Errorf("pane %q: %w", pane, ErrNotFound)
}

// WriteChars types text into the focused pane.
func (z *Zellij) WriteChars(ctx context.Context, text string) error {
	_, err := z.action(ctx, "write-chars", text)
	return err
}

// ScrollUp scrolls the focused pane up by the given number of lines.
func (z *Zellij) ScrollUp(ctx context.Context, lines int) error {
	for i := 0; i < lines; i++ {
		if _, err := z.action(ctx, "scroll-up"); err != nil {
			return err
		}
	}
	return nil
}

// action runs "zellij action <args>" with the configured timeout.
func (z *Zellij) action(ctx context.Context, args ...string) (string, error) {
	return z.raw(ctx, append([]string{"action"}, args...)...)
}

func (z *Zellij) raw(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, z.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "zellij", args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			if notFoundRe.MatchString(stderr) {
				return "", fmt.Errorf("zellij %s: %s: %w", strings.Join(args, " "), stderr, ErrNotFound)
			}
			return "", fmt.Errorf("zellij %s: %s", strings.Join(args, " "), stderr)
		}
		return "", fmt.Errorf("zellij %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// compareVersions compares two dotted numeric versions (-1, 0, 1).
// Pre-release suffixes after "-" are ignored.
func compareVersions(a, b string) (int, error) {
	pa, err := versionParts(a)
	if err != nil {
		return 0, err
	}
	pb, err := versionParts(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

func versionParts(v string) ([3]int, error) {
	var parts [3]int
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	fields := strings.Split(v, ".")
	if len(fields) == 0 || len(fields) > 3 {
		return parts, fmt.Errorf("malformed version %q", v)
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return parts, fmt.Errorf("malformed version %q", v)
		}
		parts[i] = n
	}
	return parts, nil
}
