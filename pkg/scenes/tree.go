package scenes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// Tree is the local mirror of a session's scenes. Queries take a read
// lock and may run concurrently with each other.
type Tree struct {
	mu      sync.RWMutex
	dirs    map[string][]Scene
	current string
}

func NewTree() *Tree {
	return &Tree{dirs: make(map[string][]Scene)}
}

// Replace swaps the whole scene set. Empty directories are dropped and a
// name listed twice in a directory keeps its last scene. The current path
// is kept when it still names a page.
func (t *Tree) Replace(entire map[string][]Scene) error {
	next := make(map[string][]Scene, len(entire))
	for dir, list := range entire {
		if err := ValidatePath(dir); err != nil {
			return err
		}
		if len(list) == 0 {
			continue
		}
		unique, err := uniqueScenes(list)
		if err != nil {
			return err
		}
		next[dir] = unique
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirs = next
	if t.current != "" && t.pathTypeLocked(t.current) != Page {
		t.current = ""
	}
	return nil
}

// Put inserts scenes into dir at index. An index outside the list appends.
// A scene with the name of an existing page in dir replaces it, and a name
// listed twice keeps its last scene.
func (t *Tree) Put(dir string, list []Scene, index int) error {
	if err := ValidatePath(dir); err != nil {
		return err
	}
	list, err := uniqueScenes(list)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing := t.dirs[dir]
	incoming := make(map[string]bool, len(list))
	for _, s := range list {
		incoming[s.Name] = true
	}
	kept := make([]Scene, 0, len(existing)+len(list))
	for i, s := range existing {
		if incoming[s.Name] {
			if i < index {
				index--
			}
			continue
		}
		kept = append(kept, s)
	}
	if index < 0 || index > len(kept) {
		index = len(kept)
	}

	merged := make([]Scene, 0, len(kept)+len(list))
	merged = append(merged, kept[:index]...)
	merged = append(merged, list...)
	merged = append(merged, kept[index:]...)
	t.dirs[dir] = merged
	return nil
}

// Remove deletes the page or directory at p. Removing a directory removes
// everything below it; removing "/" clears the tree.
func (t *Tree) Remove(p string) error {
	if err := ValidatePath(p); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.pathTypeLocked(p) {
	case Page:
		dir, name := Split(p)
		list := t.dirs[dir]
		for i, s := range list {
			if s.Name == name {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(t.dirs, dir)
		} else {
			t.dirs[dir] = list
		}
	case Dir:
		for dir := range t.dirs {
			if dir == p || isBelow(dir, p) {
				delete(t.dirs, dir)
			}
		}
	case Empty:
		return fmt.Errorf("%w: %q does not exist", constants.ErrInvalidPath, p)
	}

	if t.current != "" && t.pathTypeLocked(t.current) != Page {
		t.current = ""
	}
	return nil
}

// SetCurrent makes the page at p the current scene.
func (t *Tree) SetCurrent(p string) error {
	if err := ValidatePath(p); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pathTypeLocked(p) != Page {
		return fmt.Errorf("%w: %q is not a page", constants.ErrInvalidPath, p)
	}
	t.current = p
	return nil
}

// State returns the current scene, its directory listing and its index.
// With no current page it returns the first page of the root listing.
func (t *Tree) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	current := t.current
	if current == "" {
		if list := t.dirs[Root]; len(list) > 0 {
			current = Join(Root, list[0].Name)
		} else {
			return State{Index: -1, Scenes: []Scene{}}
		}
	}

	dir, name := Split(current)
	list := t.dirs[dir]
	st := State{ScenePath: current, Index: -1, Scenes: cloneScenes(list)}
	for i, s := range list {
		if s.Name == name {
			st.Index = i
			break
		}
	}
	return st
}

// PathType classifies p against the current scene set.
func (t *Tree) PathType(p string) (PathType, error) {
	if err := ValidatePath(p); err != nil {
		return Empty, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pathTypeLocked(p), nil
}

func (t *Tree) pathTypeLocked(p string) PathType {
	if p != Root {
		dir, name := Split(p)
		for _, s := range t.dirs[dir] {
			if s.Name == name {
				return Page
			}
		}
	}
	for dir, list := range t.dirs {
		if len(list) == 0 {
			continue
		}
		if dir == p || isBelow(dir, p) {
			return Dir
		}
	}
	return Empty
}

// Entire returns a deep copy of the scene set keyed by directory.
func (t *Tree) Entire() map[string][]Scene {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]Scene, len(t.dirs))
	for dir, list := range t.dirs {
		out[dir] = cloneScenes(list)
	}
	return out
}

// Dirs returns the non-empty directories, sorted.
func (t *Tree) Dirs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dirs := make([]string, 0, len(t.dirs))
	for d := range t.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
