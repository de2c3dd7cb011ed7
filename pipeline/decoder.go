package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
)

// FrameDecoder is the video-decoder collaborator Capture owns exclusively.
// Read reports ok=false on EOF or any read failure; both cases are treated
// identically, with no retries within a descriptor.
type FrameDecoder interface {
	Read() (*RGBImage, bool)
	Close() error
}

// ffmpegDecoder shells out to ffmpeg the way webrtc_service.go and
// mjpeg_service.go pipe encoded frames out of an os/exec subprocess: here
// ffmpeg is asked for raw rgb24 rawvideo on stdout and frames are pulled
// with io.ReadFull against a fixed per-frame byte count.
type ffmpegDecoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	w, h   int
}

// probeDimensions shells out to ffprobe for a source's width/height. Used
// for file-based descriptors; RTSP descriptors are probed instead via
// rtspProbe (pipeline/rtsp_probe.go) before the ffmpeg decode subprocess is
// ever started.
func probeDimensions(src string) (w, h int, err error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v:0",
		src,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", src, err)
	}
	var parsed struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: parse: %w", src, err)
	}
	if len(parsed.Streams) == 0 {
		return 0, 0, fmt.Errorf("ffprobe %s: no video stream", src)
	}
	return parsed.Streams[0].Width, parsed.Streams[0].Height, nil
}

// openFFmpegDecoder starts an ffmpeg subprocess decoding src to raw rgb24
// frames of the given dimensions. For RTSP sources w/h comes from
// rtspProbe; for file sources from probeDimensions.
func openFFmpegDecoder(src string, w, h int) (FrameDecoder, error) {
	if w <= 0 || h <= 0 {
		var err error
		w, h, err = probeDimensions(src)
		if err != nil {
			return nil, err
		}
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	if isRTSP(src) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-i", src, "-f", "rawvideo", "-pix_fmt", "rgb24", "-")

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &ffmpegDecoder{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, w*h*3),
		w:      w,
		h:      h,
	}, nil
}

func (d *ffmpegDecoder) Read() (*RGBImage, bool) {
	img := NewRGBImage(d.w, d.h)
	if _, err := io.ReadFull(d.reader, img.Pix); err != nil {
		return nil, false
	}
	return img, true
}

func (d *ffmpegDecoder) Close() error {
	_ = d.stdout.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	return d.cmd.Wait()
}

func isRTSP(src string) bool {
	return len(src) > 7 && src[:7] == "rtsp://"
}
