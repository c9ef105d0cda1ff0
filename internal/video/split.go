// Package video decodes video files into JPEG frames using ffmpeg.
package video

import (
	"bufio"
	"bytes"
	"io"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is a bufio.SplitFunc that yields complete JPEG images from a
// concatenated MJPEG stream, using the SOI and EOI markers as boundaries.
// Bytes before the first SOI are skipped. A trailing partial image is dropped.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// newFrameScanner returns a scanner that splits r into JPEG frames.
func newFrameScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, constants.MinScannerBuffer), constants.MaxScannerBuffer)
	scanner.Split(SplitJpeg)
	return scanner
}
