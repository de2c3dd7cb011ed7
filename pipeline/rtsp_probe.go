package pipeline

import (
	"fmt"
	"time"

	"github.com/deepch/vdk/av"
	"github.com/deepch/vdk/format/rtspv2"
)

// rtspProbe dials a camera's RTSP URL just long enough to read its codec
// data and report frame dimensions, so Capture's ffmpeg decode subprocess
// can be started with known output geometry instead of guessing.
func rtspProbe(url string) (width, height int, err error) {
	client, err := rtspv2.Dial(rtspv2.RTSPClientOptions{
		URL:              url,
		DisableAudio:     true,
		DialTimeout:      5 * time.Second,
		ReadWriteTimeout: 5 * time.Second,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rtsp probe %s: %w", url, err)
	}
	defer client.Close()

	for _, codec := range client.CodecData {
		if codec.Type().IsVideo() {
			if vc, ok := codec.(av.VideoCodecData); ok {
				return vc.Width(), vc.Height(), nil
			}
		}
	}
	return 0, 0, fmt.Errorf("rtsp probe %s: no video codec announced", url)
}
