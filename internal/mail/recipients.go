package mail

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/spal-labs/transcriberd/pkg/log"
)

// Resolver loads recipient sets from plain-text files: one unconditional main
// file plus optional recipients_<group>.txt files next to it. Lines starting
// with '#' and blank lines are ignored; addresses that are not syntactically
// well-formed are skipped at load time.
//
// File contents are cached per path until Invalidate is called, so a job's
// resolution is deterministic between reloads.
type Resolver struct {
	mainFile string
	dir      string
	validate *validator.Validate

	mu    sync.RWMutex
	cache map[string][]string
}

func NewResolver(mainFile, dir string) *Resolver {
	return &Resolver{
		mainFile: mainFile,
		dir:      dir,
		validate: validator.New(),
		cache:    make(map[string][]string),
	}
}

// Resolve returns the main recipient set, unioned with the group-specific set
// when group is non-empty. A missing group file yields the main set only.
// Order is preserved, duplicates removed.
func (r *Resolver) Resolve(group string) []string {
	addrs := make([]string, 0)
	if group != "" {
		addrs = append(addrs, r.loadFile(r.groupFile(group))...)
	}
	addrs = append(addrs, r.loadFile(r.mainFile)...)

	seen := make(map[string]struct{}, len(addrs))
	ret := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		ret = append(ret, addr)
	}
	return ret
}

// Groups discovers the group names with a recipients file on disk.
func (r *Resolver) Groups() []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}
	groups := make([]string, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "recipients_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		group := strings.TrimSuffix(strings.TrimPrefix(name, "recipients_"), ".txt")
		if group != "" {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)
	return groups
}

// Known reports whether a group has a recipients file. Used to validate the
// group chosen at upload time.
func (r *Resolver) Known(group string) bool {
	_, err := os.Stat(r.groupFile(group))
	return err == nil
}

// Invalidate drops the file cache so the next resolution re-reads from disk.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string][]string)
	r.mu.Unlock()
}

func (r *Resolver) groupFile(group string) string {
	return filepath.Join(r.dir, "recipients_"+group+".txt")
}

func (r *Resolver) loadFile(path string) []string {
	r.mu.RLock()
	cached, ok := r.cache[path]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	addrs := r.readFile(path)
	r.mu.Lock()
	r.cache[path] = addrs
	r.mu.Unlock()
	return addrs
}

func (r *Resolver) readFile(path string) []string {
	content, err := os.ReadFile(path)
	if err != nil {
		// Missing file resolves to the empty set, not an error.
		return []string{}
	}
	addrs := make([]string, 0)
	for _, line := range strings.Split(string(content), "\n") {
		addr := strings.TrimSpace(line)
		if addr == "" || strings.HasPrefix(addr, "#") {
			continue
		}
		if err := r.validate.Var(addr, "email"); err != nil {
			log.Warn("Skipping malformed recipient %q in %s", addr, path)
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs
}
