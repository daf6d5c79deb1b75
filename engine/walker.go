package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/franksops/vmshift/provider"
)

// Walker finds exported VM directories, i.e. directories holding a vm.7z
// archive, below a root. It walks iteratively so deep trees cannot overflow
// the stack, and does not descend into a VM directory once found.
type Walker struct {
	Provider provider.Provider
}

// NewWalker creates a new iterative directory walker.
func NewWalker(p provider.Provider) *Walker {
	return &Walker{Provider: p}
}

// Walk returns every VM directory below root in lexical order. A root that is
// itself a file is returned as is, so archives can be passed straight
// through.
func (w *Walker) Walk(ctx context.Context, root string) ([]string, error) {
	stat, err := w.Provider.Stat(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !stat.IsDir() {
		return []string{root}, nil
	}

	var found []string
	stack := []string{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Pop item
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := w.Provider.List(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
		}

		var subdirs []string
		isVMDir := false
		for _, entry := range entries {
			if entry.IsDir() {
				subdirs = append(subdirs, w.Provider.Join(dir, entry.Name()))
			} else if entry.Name() == ArchiveFile {
				isVMDir = true
			}
		}

		if isVMDir {
			found = append(found, dir)
			continue
		}
		stack = append(stack, subdirs...)
	}

	sort.Strings(found)
	return found, nil
}
