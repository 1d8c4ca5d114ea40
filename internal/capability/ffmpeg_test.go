package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDecoderOutput = `Decoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 .F.... = Frame-level multithreading
 ..S... = Slice-level multithreading
 ...X.. = Codec is experimental
 ....B. = Supports draw_horiz_band
 .....D = Supports direct rendering method 1
 ------
 V....D h264                 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10
 V....D h264_v4l2m2m         V4L2 mem2mem H.264 decoder wrapper (codec h264)
 V....D hevc                 HEVC (High Efficiency Video Coding)
 V....D hevc_cuvid           Nvidia CUVID HEVC decoder (codec hevc)
 V....D vp9                  Google VP9
 V....D mpeg2video           MPEG-2 video
 V....D png                  PNG (Portable Network Graphics) image
 VF...D theora               Theora
 A....D aac                  AAC (Advanced Audio Coding)
 A....D ac3                  ATSC A/52A (AC-3)
 A....D flac                 FLAC (Free Lossless Audio Codec)
 A....D opus                 Opus
 A....D wmav2                Windows Media Audio 2
 S..... subrip               SubRip subtitle
`

func TestParseDecoderList(t *testing.T) {
	decoders := parseDecoderList(sampleDecoderOutput)

	byName := map[string]Decoder{}
	for _, d := range decoders {
		byName[d.Name] = d
	}

	// Software h264
	d, ok := byName["h264"]
	require.True(t, ok)
	assert.Equal(t, "h264", d.Codec)
	assert.Equal(t, KindVideo, d.Kind)
	assert.False(t, d.Hardware)

	// Hardware wrapper classified by suffix
	d, ok = byName["h264_v4l2m2m"]
	require.True(t, ok)
	assert.Equal(t, "h264", d.Codec)
	assert.True(t, d.Hardware)

	// hevc folds onto h265
	d, ok = byName["hevc_cuvid"]
	require.True(t, ok)
	assert.Equal(t, "h265", d.Codec)
	assert.True(t, d.Hardware)

	// mpeg2video reads as mpeg2
	d, ok = byName["mpeg2video"]
	require.True(t, ok)
	assert.Equal(t, "mpeg2", d.Codec)

	// Audio decoders
	d, ok = byName["aac"]
	require.True(t, ok)
	assert.Equal(t, KindAudio, d.Kind)

	// Unknown codecs, image formats, and subtitles are ignored
	_, ok = byName["png"]
	assert.False(t, ok)
	_, ok = byName["theora"]
	assert.False(t, ok)
	_, ok = byName["wmav2"]
	assert.False(t, ok)
	_, ok = byName["subrip"]
	assert.False(t, ok)
}

func TestParseDecoderListEmpty(t *testing.T) {
	assert.Empty(t, parseDecoderList(""))
	assert.Empty(t, parseDecoderList("garbage without a table"))
}

func TestClassifyDecoder(t *testing.T) {
	tests := []struct {
		name     string
		codec    string
		hardware bool
	}{
		{"h264", "h264", false},
		{"h264_vaapi", "h264", true},
		{"hevc_qsv", "h265", true},
		{"vp9_cuvid", "vp9", true},
		{"av1_nvdec", "av1", true},
		{"hevc_videotoolbox", "h265", true},
		{"aac", "aac", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, hardware := classifyDecoder(tt.name)
			assert.Equal(t, tt.codec, codec)
			assert.Equal(t, tt.hardware, hardware)
		})
	}
}

func TestNormalizeContainer(t *testing.T) {
	assert.Equal(t, "mp4", normalizeContainer(".MP4"))
	assert.Equal(t, "mkv", normalizeContainer("mkv"))
	assert.True(t, containerSupported(".WebM"))
	assert.False(t, containerSupported("wmv"))
}
