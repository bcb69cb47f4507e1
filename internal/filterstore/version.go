package filterstore

import "sync/atomic"

// DirectoryVersion is an immutable-after-publish snapshot of the
// name->FilterHandle directory. It is constructed by copying the
// predecessor's map entries (handle identities, not the handles
// themselves) and then applying exactly one local edit before publish.
type DirectoryVersion struct {
	vsn       int64
	entries   map[string]*FilterHandle
	tombstone *FilterHandle
	prev      *DirectoryVersion

	// isHot is set true on any access by take_filter and cleared by the
	// Reaper once a full cooldown elapses with no further access.
	isHot atomic.Bool
}

// cloneEntries returns a fresh map with the same handle identities as v,
// or an empty map if v is nil (the very first version).
func cloneEntries(v *DirectoryVersion) map[string]*FilterHandle {
	if v == nil {
		return make(map[string]*FilterHandle)
	}
	m := make(map[string]*FilterHandle, len(v.entries)+1)
	for k, h := range v.entries {
		m[k] = h
	}
	return m
}

// newVersion allocates the next DirectoryVersion in the chain, copying
// prev's entries verbatim. Callers apply their one local edit and set
// tombstone before publishing.
func newVersion(prev *DirectoryVersion, vsn int64) *DirectoryVersion {
	return &DirectoryVersion{
		vsn:     vsn,
		entries: cloneEntries(prev),
		prev:    prev,
	}
}

// takeFilter resolves name against v, marking v hot as a side effect.
// Never walks prev: a reader sees the directory exactly as it was the
// moment it sampled head. Returns nil if absent or inactive.
func takeFilter(v *DirectoryVersion, name string) *FilterHandle {
	v.isHot.Store(true)
	h, ok := v.entries[name]
	if !ok || !h.isActive.Load() {
		return nil
	}
	return h
}
