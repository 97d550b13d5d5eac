package domain

// Video is the remote video record returned by the upload backend.
type Video struct {
	ID string
}
