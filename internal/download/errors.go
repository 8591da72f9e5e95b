package download

import "errors"

var (
	// ErrNotPDF is returned when the response is neither labelled nor
	// shaped like a PDF document.
	ErrNotPDF = errors.New("response is not a PDF")

	// ErrNoDirectory is returned when a Downloader has no output directory.
	ErrNoDirectory = errors.New("download directory is not set")
)
