package domain

// Part is a bounded-size contiguous chunk of the encoded media, persisted as one file.
// A part is immutable once created and its index is unique within a session.
type Part struct {
	Index    int
	IsLast   bool
	FilePath string
}
