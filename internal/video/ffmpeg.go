package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/cyclopcam/logs"
)

// Frame is one decoded video frame encoded as JPEG. Index is 0-based in
// presentation order.
type Frame struct {
	Index int
	Data  []byte
}

// Stream yields decoded frames in order. Next returns io.EOF after the last frame.
type Stream interface {
	Info() Info
	Next() (Frame, error)
	Close() error
}

// FFmpeg opens videos by probing them with ffprobe and piping MJPEG frames out of ffmpeg.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	log         logs.Log
}

func NewFFmpeg(log logs.Log, ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, log: log}
}

// Open probes the file and starts decoding it. The ffmpeg process is bound to ctx.
func (f *FFmpeg) Open(ctx context.Context, path string) (Stream, error) {
	info, err := Probe(ctx, f.FFprobePath, path)
	if err != nil {
		return nil, err
	}

	// -vcodec mjpeg gives a stream of JPEGs that SplitJpeg can cut apart.
	// -loglevel error keeps the stderr buffer small.
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3",
		"-",
	)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	f.log.Debugf("Decoding %v (%.2f fps, %d frames)", path, info.FPS, info.TotalFrames)

	return &ffmpegStream{
		info:    info,
		cmd:     cmd,
		stderr:  stderr,
		scanner: newFrameScanner(stdout),
	}, nil
}

type ffmpegStream struct {
	info    Info
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	scanner *bufio.Scanner
	next    int
	waited  bool
	waitErr error
}

func (s *ffmpegStream) Info() Info {
	return s.info
}

func (s *ffmpegStream) Next() (Frame, error) {
	if s.scanner.Scan() {
		// The scanner reuses its buffer, so the frame must be copied.
		frame := Frame{Index: s.next, Data: bytes.Clone(s.scanner.Bytes())}
		s.next++
		return frame, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("read frame %d: %w", s.next, err)
	}
	if err := s.wait(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

func (s *ffmpegStream) wait() error {
	if !s.waited {
		s.waited = true
		if err := s.cmd.Wait(); err != nil {
			msg := strings.TrimSpace(s.stderr.String())
			s.waitErr = fmt.Errorf("ffmpeg failed after %d frames: %w: %s", s.next, err, msg)
		}
	}
	return s.waitErr
}

// Close stops ffmpeg if it is still running and reaps it.
func (s *ffmpegStream) Close() error {
	if !s.waited && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed on purpose or already reported by Next.
		return nil
	}
	return err
}
