package codec

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"edgelink/pkg/models"
)

// The H.264 codecs drive a long-lived ffmpeg process over stdin/stdout
// pipes: the encoder feeds rawvideo frames and reads the Annex-B stream,
// the decoder feeds Annex-B access units and reads fixed-size rawvideo
// frames. With tune=zerolatency ffmpeg flushes output per input frame.

// H264Encoder encodes raw frames into an H.264 Annex-B stream.
type H264Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	chunks chan []byte
	width  int
	height int
	log    *logrus.Entry
}

// NewH264Encoder starts an encoder process for the given geometry.
// Recognized options: "preset", "tune", "crf", "x264-params"; defaults are
// preset=ultrafast, tune=zerolatency.
func NewH264Encoder(width, height int, options map[string]string) (FrameEncoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid encoder geometry %dx%d", width, height)
	}

	preset := "ultrafast"
	tune := "zerolatency"
	if v, ok := options["preset"]; ok {
		preset = v
	}
	if v, ok := options["tune"]; ok {
		tune = v
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", preset,
		"-tune", tune,
	}
	if v, ok := options["crf"]; ok {
		args = append(args, "-crf", v)
	}
	if v, ok := options["x264-params"]; ok {
		args = append(args, "-x264-params", v)
	}
	args = append(args, "-f", "h264", "pipe:1")

	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e := &H264Encoder{
		cmd:    cmd,
		stdin:  stdin,
		chunks: make(chan []byte, 16),
		width:  width,
		height: height,
		log: logrus.WithFields(logrus.Fields{
			"component": "h264_encoder",
			"geometry":  fmt.Sprintf("%dx%d", width, height),
		}),
	}
	go e.readOutput(stdout)

	e.log.Info("H.264 encoder started")
	return e, nil
}

func (e *H264Encoder) readOutput(stdout io.Reader) {
	defer close(e.chunks)
	buf := make([]byte, 256*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			e.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// Encode compresses one frame and returns its encoded access unit.
func (e *H264Encoder) Encode(frame *models.Frame) ([]byte, bool, error) {
	if err := frame.Validate(); err != nil {
		return nil, false, &CodecError{Op: "encode", Err: err}
	}
	if frame.Width != e.width || frame.Height != e.height {
		return nil, false, &CodecError{
			Op:  "encode",
			Err: fmt.Errorf("frame geometry %dx%d does not match encoder %dx%d", frame.Width, frame.Height, e.width, e.height),
		}
	}

	if _, err := e.stdin.Write(frame.Pixels); err != nil {
		return nil, false, &CodecError{Op: "encode", Err: fmt.Errorf("write to ffmpeg: %w", err)}
	}

	// Zerolatency output arrives as one or more pipe chunks per frame:
	// block for the first, then drain whatever follows within a short
	// settle window so a multi-chunk access unit stays in one payload.
	chunk, ok := <-e.chunks
	if !ok {
		return nil, false, &CodecError{Op: "encode", Err: fmt.Errorf("ffmpeg output closed")}
	}
	data := chunk
	for {
		select {
		case chunk, ok := <-e.chunks:
			if !ok {
				return nil, false, &CodecError{Op: "encode", Err: fmt.Errorf("ffmpeg output closed")}
			}
			data = append(data, chunk...)
		case <-time.After(2 * time.Millisecond):
			return data, ContainsIDR(data), nil
		}
	}
}

// Close shuts the encoder process down.
func (e *H264Encoder) Close() error {
	e.stdin.Close()
	return e.cmd.Wait()
}

// H264Decoder decodes an H.264 Annex-B stream into raw frames.
type H264Decoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	width  int
	height int
	log    *logrus.Entry
}

// NewH264Decoder starts a decoder process for the given geometry. The
// geometry must match the encoded stream; it sizes the rawvideo frames
// read back from ffmpeg.
func NewH264Decoder(width, height int) (FrameDecoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid decoder geometry %dx%d", width, height)
	}

	cmd := exec.Command("ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"pipe:1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	d := &H264Decoder{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 256*1024),
		width:  width,
		height: height,
		log: logrus.WithFields(logrus.Fields{
			"component": "h264_decoder",
			"geometry":  fmt.Sprintf("%dx%d", width, height),
		}),
	}

	d.log.Info("H.264 decoder started")
	return d, nil
}

// Decode feeds one access unit to ffmpeg and reads back the raw frame.
func (d *H264Decoder) Decode(data []byte) (*models.Frame, error) {
	if !IsAnnexBFormat(data) {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("payload is not an Annex-B stream")}
	}

	// Write concurrently: a large access unit could fill the stdin pipe
	// while ffmpeg waits for us to drain stdout.
	writeErr := make(chan error, 1)
	go func() {
		_, err := d.stdin.Write(data)
		writeErr <- err
	}()

	frame := models.NewFrame(d.width, d.height)
	if _, err := io.ReadFull(d.stdout, frame.Pixels); err != nil {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("read from ffmpeg: %w", err)}
	}
	if err := <-writeErr; err != nil {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("write to ffmpeg: %w", err)}
	}
	return frame, nil
}

// Close shuts the decoder process down.
func (d *H264Decoder) Close() error {
	d.stdin.Close()
	return d.cmd.Wait()
}

// CheckFFmpegAvailable checks if FFmpeg is installed and working.
func CheckFFmpegAvailable() error {
	out, err := exec.Command("ffmpeg", "-version").Output()
	if err != nil {
		return fmt.Errorf("ffmpeg not found or not working: %w", err)
	}
	if len(out) == 0 {
		return fmt.Errorf("ffmpeg produced no output")
	}
	return nil
}
