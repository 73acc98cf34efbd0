//go:build slotwalk_compressed

package heap

// CompressedPointers reports whether layouts may declare compressed
// pointer slots.
const CompressedPointers = true
