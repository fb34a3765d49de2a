package source

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// FFmpegSource wraps an ffmpeg child process that transcodes an RTSP, HTTP,
// V4L2, or file input into an MJPEG stream on stdout. Read pulls the next
// complete JPEG off the pipe and decodes it.
type FFmpegSource struct {
	input  string
	fps    int
	width  int
	height int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
	chunk  []byte

	mu     sync.Mutex
	closed bool
}

// OpenFFmpeg starts ffmpeg against the given input. Input selection follows
// the URI scheme: rtsp:// uses TCP transport, http(s):// is read directly,
// /dev/* is treated as a V4L2 device, anything else as a local file.
func OpenFFmpeg(input string, fps, width, height int) (*FFmpegSource, error) {
	if fps <= 0 {
		fps = 10
	}

	s := &FFmpegSource{
		input:  input,
		fps:    fps,
		width:  width,
		height: height,
		buf:    make([]byte, 0, 1024*1024),
		chunk:  make([]byte, 8192),
	}

	s.cmd = exec.Command("ffmpeg", s.args()...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	s.stdout = stdout

	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	// Consume stderr silently so ffmpeg never blocks on it
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	log.Printf("[Source] Started ffmpeg for %s (fps: %d)", input, fps)
	return s, nil
}

func (s *FFmpegSource) args() []string {
	out := []string{
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-r", fmt.Sprintf("%d", s.fps),
		"-q:v", "5",
		"-",
	}

	switch {
	case strings.HasPrefix(s.input, "rtsp://"):
		return append([]string{"-rtsp_transport", "tcp", "-i", s.input}, out...)
	case strings.HasPrefix(s.input, "http://"), strings.HasPrefix(s.input, "https://"):
		return append([]string{"-i", s.input}, out...)
	case strings.HasPrefix(s.input, "/dev/"):
		return append([]string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
			"-framerate", fmt.Sprintf("%d", s.fps),
			"-i", s.input,
		}, out...)
	default:
		// Local file, read at native rate
		return append([]string{"-re", "-i", s.input}, out...)
	}
}

// Read blocks until the next complete JPEG arrives on the pipe, decodes it,
// and returns it as RGBA. A dead pipe or decode failure on a closed stream
// is terminal.
func (s *FFmpegSource) Read() (*image.RGBA, time.Time, error) {
	for {
		if data := extractJPEG(&s.buf); data != nil {
			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				// Corrupt frame mid-stream, skip it
				log.Printf("[Source] Skipping undecodable frame: %v", err)
				continue
			}
			return ToRGBA(img), time.Now(), nil
		}

		n, err := s.stdout.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || err == io.EOF {
				return nil, time.Time{}, ErrSourceClosed
			}
			return nil, time.Time{}, fmt.Errorf("read ffmpeg pipe: %w", err)
		}
	}
}

// Close kills the ffmpeg process and unblocks a pending Read.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdout.Close()
	// Reap the child
	if s.cmd != nil {
		s.cmd.Wait()
	}
	log.Printf("[Source] Stopped ffmpeg for %s", s.input)
	return nil
}

// extractJPEG pulls one complete JPEG (FFD8..FFD9) out of the buffer,
// consuming it, or returns nil when no complete frame is buffered yet.
func extractJPEG(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}

var _ FrameSource = (*FFmpegSource)(nil)
