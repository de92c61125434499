package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecMatches(t *testing.T) {
	opus := Codec{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}

	assert.True(t, opus.Matches(Codec{MimeType: "audio/OPUS", ClockRate: 48000}))
	assert.False(t, opus.Matches(Codec{MimeType: "audio/opus", ClockRate: 8000}))
	assert.False(t, opus.Matches(Codec{MimeType: "audio/opus", ClockRate: 48000, Channels: 1}))
	assert.False(t, opus.Matches(Codec{MimeType: "video/VP8", ClockRate: 90000}))
}

func TestCapabilitiesSupports(t *testing.T) {
	caps := RTPCapabilities{Codecs: []Codec{
		{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{MimeType: "video/VP8", ClockRate: 90000},
	}}

	assert.True(t, caps.Supports(Codec{MimeType: "video/vp8", ClockRate: 90000}))
	assert.False(t, caps.Supports(Codec{MimeType: "video/H264", ClockRate: 90000}))
	assert.False(t, RTPCapabilities{}.Supports(Codec{MimeType: "video/VP8", ClockRate: 90000}))
}
