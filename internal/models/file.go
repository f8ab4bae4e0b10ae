package models

// File is an uploaded file stored on local disk.
type File struct {
	// ID is the unique identifier for the file (UUID format).
	ID string

	// Name is the original file name sent by the client.
	Name string

	// Path is the generated file name under the upload directory.
	Path string

	// CreatedAt is the Unix timestamp of the upload.
	CreatedAt int64
}
