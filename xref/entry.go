// Package xref builds the cross-reference index of a PDF: the immutable
// mapping from object number to storage location, assembled by overlaying
// every revision of the file from newest to oldest.
package xref

// Entry is one record of the cross-reference index. It is a closed set:
// InUse, Free, Compressed and Null are the only implementations, so
// consumers can switch exhaustively.
type Entry interface{ isEntry() }

// InUse records an object stored at a byte offset in the main file.
type InUse struct {
	Offset int64
	Gen    int
}

// Free records an unused object number and its link in the free list.
type Free struct {
	NextFree int64
	Gen      int
}

// Compressed records an object stored inside another object's decoded
// stream. The container's generation is implicitly zero.
type Compressed struct {
	Container int
	Index     int
}

// Null marks an object number with no recorded entry, distinct from Free.
type Null struct{}

func (InUse) isEntry()      {}
func (Free) isEntry()       {}
func (Compressed) isEntry() {}
func (Null) isEntry()       {}

// Location is where an object's bytes live, as resolved by Table.Lookup.
type Location interface{ isLocation() }

// MainFile locates an object directly at a byte offset.
type MainFile struct {
	Offset int64
}

// ObjectStream locates an object inside a compressed container: the
// container's own byte offset plus the object's position within the
// container's decoded stream.
type ObjectStream struct {
	ContainerOffset int64
	ContainerNum    int
	Index           int
}

func (MainFile) isLocation()     {}
func (ObjectStream) isLocation() {}
