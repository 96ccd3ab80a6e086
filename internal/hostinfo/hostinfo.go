// Package hostinfo gathers the host facts a worker logs at startup.
package hostinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/text/language"
)

// Facts are the startup facts recorded on the trace channel.
type Facts struct {
	PID        int
	ParentPID  int
	ParentName string // empty if the parent could not be inspected
	Locale     language.Tag
	UILocale   language.Tag
}

// Collect gathers Facts for the current process.
func Collect(ctx context.Context) Facts {
	f := Facts{
		PID:       os.Getpid(),
		ParentPID: os.Getppid(),
		Locale:    Locale(os.Getenv, "LC_ALL", "LC_CTYPE", "LANG"),
		UILocale:  Locale(os.Getenv, "LC_ALL", "LC_MESSAGES", "LANG"),
	}
	if p, err := process.NewProcessWithContext(ctx, int32(f.ParentPID)); err == nil {
		if name, err := p.NameWithContext(ctx); err == nil {
			f.ParentName = name
		}
	}
	return f
}

// Locale returns the BCP 47 tag of the first non-empty variable in vars.
// POSIX locale names such as "en_US.UTF-8@euro" are accepted. The C and
// POSIX locales, and anything unparseable, map to language.Und.
func Locale(getenv func(string) string, vars ...string) language.Tag {
	for _, v := range vars {
		if val := getenv(v); val != "" {
			return parseLocale(val)
		}
	}
	return language.Und
}

func parseLocale(s string) language.Tag {
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "C" || s == "POSIX" {
		return language.Und
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und
	}
	return tag
}

// DiskFreeMB returns the free space in MiB of the filesystem holding path.
// If path does not exist yet, its nearest existing ancestor is used.
func DiskFreeMB(ctx context.Context, path string) (uint64, error) {
	dir, err := existingAncestor(path)
	if err != nil {
		return 0, err
	}
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("disk usage %s: %w", dir, err)
	}
	return usage.Free / (1 << 20), nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no existing ancestor of %s", path)
		}
		abs = parent
	}
}
