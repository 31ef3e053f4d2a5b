package media

import (
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"

	"github.com/straychat/straychat/internal/util"
)

// LocalMedia holds the outgoing audio/video tracks. It is acquired once and
// retained across sessions; only process shutdown releases it.
type LocalMedia struct {
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample
}

// AcquireLocal builds the local track pair. A capture source failing here is
// the device-access fault: callers surface it as a recoverable notice and
// leave the session state alone.
func AcquireLocal() (*LocalMedia, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "straychat",
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "straychat",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	return &LocalMedia{video: video, audio: audio}, nil
}

// Tracks returns the local tracks in attach order.
func (l *LocalMedia) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{l.video, l.audio}
}

// Video exposes the sample writer for a capture pipeline to feed.
func (l *LocalMedia) Video() *webrtc.TrackLocalStaticSample { return l.video }

// Audio exposes the sample writer for a capture pipeline to feed.
func (l *LocalMedia) Audio() *webrtc.TrackLocalStaticSample { return l.audio }

// pumpRemote drains one inbound track into the sink, payload bytes only.
// It exits when the track errors out, which happens on connection teardown.
func pumpRemote(track *webrtc.TrackRemote, sink io.Writer) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if sink == nil || len(pkt.Payload) == 0 {
			continue
		}
		if _, err := sink.Write(pkt.Payload); err != nil {
			util.LogWarning("remote %s sink write: %v", track.Kind(), err)
			return
		}
	}
}
