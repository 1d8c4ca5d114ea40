package capability

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/logging"
)

// FFmpegProber enumerates decoders by shelling out to `ffmpeg -decoders`.
// Hardware decoders are classified by their platform suffix.
type FFmpegProber struct {
	ffmpegPath string
	logger     *logrus.Entry
}

// NewFFmpegProber creates a prober using the given ffmpeg binary
func NewFFmpegProber(ffmpegPath string, logger *logrus.Logger) *FFmpegProber {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegProber{
		ffmpegPath: ffmpegPath,
		logger:     logging.NewProviderLogger(logger, "capability", "ffmpeg"),
	}
}

// hardwareSuffixes mark decoder components backed by a hardware codec block
var hardwareSuffixes = []string{
	"_vaapi", "_qsv", "_cuvid", "_nvdec", "_v4l2m2m",
	"_videotoolbox", "_mediacodec", "_d3d11va", "_rkmpp",
}

// knownVideoCodecs and knownAudioCodecs bound what decoder names are mapped;
// everything else (images, subtitles, exotic formats) is ignored
var knownVideoCodecs = map[string]bool{
	"h264": true, "h265": true, "vp8": true, "vp9": true,
	"av1": true, "mpeg2video": true, "mpeg4": true,
}

var knownAudioCodecs = map[string]bool{
	"aac": true, "mp3": true, "ac3": true, "eac3": true, "opus": true,
	"vorbis": true, "flac": true, "dts": true, "truehd": true,
}

// ProbeDecoders runs `ffmpeg -decoders` and parses the component table
func (p *FFmpegProber) ProbeDecoders(ctx context.Context) ([]Decoder, error) {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-hide_banner", "-decoders")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run %s -decoders: %w", p.ffmpegPath, err)
	}

	decoders := parseDecoderList(stdout.String())

	p.logger.WithField("decoders", len(decoders)).Debug("Probed installed decoders")
	return decoders, nil
}

// parseDecoderList parses `ffmpeg -decoders` output. Lines look like:
//
//	V....D h264                 H.264 / AVC / MPEG-4 AVC
//	V....D h264_cuvid           Nvidia CUVID H264 decoder (codec h264)
//	A....D aac                  AAC (Advanced Audio Coding)
//
// The flags column starts with V (video), A (audio), or S (subtitle).
func parseDecoderList(output string) []Decoder {
	var decoders []Decoder
	inTable := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		// The component table starts after the "------" separator
		if !inTable {
			if strings.Contains(line, "------") {
				inTable = true
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		flags, name := fields[0], fields[1]

		var kind DecoderKind
		switch flags[0] {
		case 'V':
			kind = KindVideo
		case 'A':
			kind = KindAudio
		default:
			continue
		}

		codec, hardware := classifyDecoder(name)

		if kind == KindVideo && !knownVideoCodecs[codec] {
			continue
		}
		if kind == KindAudio && !knownAudioCodecs[codec] {
			continue
		}

		// mpeg2video reads more naturally as mpeg2 everywhere else
		if codec == "mpeg2video" {
			codec = "mpeg2"
		}

		decoders = append(decoders, Decoder{
			Name:     name,
			Codec:    codec,
			Kind:     kind,
			Hardware: hardware,
		})
	}

	return decoders
}

// classifyDecoder maps a component name to its canonical codec and whether
// it is hardware backed
func classifyDecoder(name string) (string, bool) {
	base := name
	hardware := false

	for _, suffix := range hardwareSuffixes {
		if strings.HasSuffix(name, suffix) {
			base = strings.TrimSuffix(name, suffix)
			hardware = true
			break
		}
	}

	return normalizeCodec(base), hardware
}
