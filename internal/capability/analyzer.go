package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/logging"
)

const (
	// fallbackWidth/Height is the hard floor assumed when every
	// resolution probe fails
	fallbackWidth  = 1920
	fallbackHeight = 1080

	gib = 1024 * 1024 * 1024
)

// Analyzer answers direct-play capability queries for this device. The
// probe runs once on first query and is memoized per instance; Reset
// discards the snapshot (for tests and explicit re-probes).
type Analyzer struct {
	decoders DecoderProber
	display  DisplayProber
	memory   MemoryProber
	logger   *logrus.Entry

	mu   sync.Mutex
	caps *DirectPlayCapabilities
}

// NewAnalyzer creates an analyzer over the given probers
func NewAnalyzer(decoders DecoderProber, display DisplayProber, memory MemoryProber, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		decoders: decoders,
		display:  display,
		memory:   memory,
		logger:   logging.NewComponentLogger(logger, "capability"),
	}
}

// Capabilities returns the device capability snapshot, probing on first call
func (a *Analyzer) Capabilities(ctx context.Context) DirectPlayCapabilities {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.caps == nil {
		caps := a.probe(ctx)
		a.caps = &caps
	}
	return *a.caps
}

// Reset discards the memoized snapshot so the next query re-probes
func (a *Analyzer) Reset() {
	a.mu.Lock()
	a.caps = nil
	a.mu.Unlock()
}

// probe computes the full device snapshot. Every probe failure resolves
// toward "less capable", never toward "assume supported".
func (a *Analyzer) probe(ctx context.Context) DirectPlayCapabilities {
	caps := DirectPlayCapabilities{
		Containers:  append([]string(nil), supportedContainers...),
		VideoCodecs: make(map[string]SupportLevel),
		AudioCodecs: make(map[string]SupportLevel),
		ProbedAt:    time.Now(),
	}

	decoders, err := a.decoders.ProbeDecoders(ctx)
	if err != nil {
		// Fail closed: no decoder info means no codec support
		a.logger.WithError(err).Warn("Decoder probe failed, assuming no codec support")
		decoders = nil
	}

	maxDecoderWidth, maxDecoderHeight := 0, 0
	for _, d := range decoders {
		switch d.Kind {
		case KindVideo:
			level := SupportSoftware
			if d.Hardware {
				level = SupportHardware
			}
			if level > caps.VideoCodecs[d.Codec] {
				caps.VideoCodecs[d.Codec] = level
			}
			if d.MaxWidth*d.MaxHeight > maxDecoderWidth*maxDecoderHeight {
				maxDecoderWidth, maxDecoderHeight = d.MaxWidth, d.MaxHeight
			}
		case KindAudio:
			level := SupportSoftware
			if d.Hardware {
				level = SupportHardware
			}
			if level > caps.AudioCodecs[d.Codec] {
				caps.AudioCodecs[d.Codec] = level
			}
		}
	}

	// Resolution: decoder capability ranges first, then display modes,
	// then the 1080p floor
	caps.MaxWidth, caps.MaxHeight = maxDecoderWidth, maxDecoderHeight
	if caps.MaxWidth == 0 || caps.MaxHeight == 0 {
		width, height, err := a.display.MaxDisplayResolution(ctx)
		if err != nil {
			a.logger.WithError(err).Debug("Display probe failed, assuming 1080p")
			width, height = fallbackWidth, fallbackHeight
		}
		caps.MaxWidth, caps.MaxHeight = width, height
	}

	caps.Supports4K = caps.MaxWidth >= 3840 && caps.MaxHeight >= 2160

	// HDR needs a hardware pipeline for a 10-bit capable codec
	caps.SupportsHDR = caps.VideoCodecs["h265"] == SupportHardware ||
		caps.VideoCodecs["av1"] == SupportHardware

	memory, err := a.memory.TotalMemoryBytes()
	if err != nil {
		a.logger.WithError(err).Debug("Memory probe failed")
		memory = 0
	}
	caps.TotalMemoryBytes = memory

	caps.Tier = deriveTier(caps.Supports4K, caps.MaxHeight, memory)
	caps.MaxBitrate = caps.Tier.MaxBitrate()

	a.logger.WithFields(logrus.Fields{
		"video_codecs":   len(caps.VideoCodecs),
		"audio_codecs":   len(caps.AudioCodecs),
		"max_resolution": fmt.Sprintf("%dx%d", caps.MaxWidth, caps.MaxHeight),
		"supports_4k":    caps.Supports4K,
		"tier":           caps.Tier,
	}).Info("Device capabilities probed")

	return caps
}

// deriveTier maps device facts to a performance tier
func deriveTier(supports4K bool, maxHeight int, memoryBytes uint64) PerformanceTier {
	if supports4K && maxHeight >= 2160 && memoryBytes >= 6*gib {
		return TierHighEnd
	}
	if maxHeight >= 1080 && memoryBytes >= 3*gib {
		return TierMidRange
	}
	return TierLowEnd
}

// CanDirectPlay reports whether the described stream can play locally. A
// strict conjunction: container allow-list, then video codec (resolution
// checked before codec support, rejection there is cheaper and more
// certain), then audio codec. Absent codecs pass trivially.
func (a *Analyzer) CanDirectPlay(ctx context.Context, container, videoCodec, audioCodec string, width, height int) bool {
	caps := a.Capabilities(ctx)

	if !containerSupported(container) {
		return false
	}

	if videoCodec != "" {
		codec := normalizeCodec(videoCodec)
		if width > 0 && height > 0 {
			if width > caps.MaxWidth || height > caps.MaxHeight {
				return false
			}
		}
		if caps.VideoCodecs[codec] == SupportNone {
			return false
		}
	}

	if audioCodec != "" {
		if caps.AudioCodecs[normalizeCodec(audioCodec)] == SupportNone {
			return false
		}
	}

	return true
}

// CanPlayVideoCodec reports whether any decoder handles the codec
func (a *Analyzer) CanPlayVideoCodec(ctx context.Context, codec string) bool {
	caps := a.Capabilities(ctx)
	return caps.VideoCodecs[normalizeCodec(codec)] != SupportNone
}

// CanPlayAudioCodec reports whether any decoder handles the codec
func (a *Analyzer) CanPlayAudioCodec(ctx context.Context, codec string) bool {
	caps := a.Capabilities(ctx)
	return caps.AudioCodecs[normalizeCodec(codec)] != SupportNone
}

// AnalyzeDirectPlay produces the confidence-scored compatibility report for
// one stream. The score starts at 100 and accumulates penalties and bonuses;
// it can exceed 100 and is floored at 0 for display. The boolean verdict is
// derived from the raw score before flooring.
func (a *Analyzer) AnalyzeDirectPlay(ctx context.Context, stream StreamDescriptor) DirectPlayAnalysis {
	caps := a.Capabilities(ctx)

	score := 100
	issues := []string{}

	if !containerSupported(stream.Container) {
		// No point scoring the rest of an unplayable container
		return DirectPlayAnalysis{
			CanDirectPlay:  false,
			Score:          0,
			Issues:         []string{fmt.Sprintf("Container format %q is not supported", stream.Container)},
			Recommendation: "Unsupported container format",
		}
	}

	if stream.VideoCodec != "" {
		codec := normalizeCodec(stream.VideoCodec)
		switch caps.VideoCodecs[codec] {
		case SupportNone:
			score -= 100
			issues = append(issues, fmt.Sprintf("Video codec %q is not supported", stream.VideoCodec))
		case SupportSoftware:
			score -= 20
			issues = append(issues, fmt.Sprintf("Video codec %q uses software decoding", stream.VideoCodec))
		case SupportHardware:
			score += 10
		}
	}

	// Resolution penalty applies regardless of codec support level
	if stream.Width > 0 && stream.Height > 0 {
		if stream.Width > caps.MaxWidth || stream.Height > caps.MaxHeight {
			score -= 50
			issues = append(issues, fmt.Sprintf(
				"Resolution %dx%d exceeds device maximum %dx%d",
				stream.Width, stream.Height, caps.MaxWidth, caps.MaxHeight))
		}
	}

	if stream.AudioCodec != "" {
		codec := normalizeCodec(stream.AudioCodec)
		switch caps.AudioCodecs[codec] {
		case SupportNone:
			score -= 100
			issues = append(issues, fmt.Sprintf("Audio codec %q is not supported", stream.AudioCodec))
		case SupportSoftware:
			score -= 10
			issues = append(issues, fmt.Sprintf("Audio codec %q uses software decoding", stream.AudioCodec))
		}
	}

	if stream.Bitrate > 0 && stream.Bitrate > caps.MaxBitrate {
		score -= 30
		issues = append(issues, fmt.Sprintf(
			"Bitrate %d exceeds recommended maximum %d for this device",
			stream.Bitrate, caps.MaxBitrate))
	}

	display := score
	if display < 0 {
		display = 0
	}

	return DirectPlayAnalysis{
		CanDirectPlay:  score > 0,
		Score:          display,
		Issues:         issues,
		Recommendation: recommendation(score),
	}
}

// recommendation maps a score to its advisory tier
func recommendation(score int) string {
	switch {
	case score >= 90:
		return "Excellent direct play compatibility"
	case score >= 70:
		return "Good direct play compatibility"
	case score >= 50:
		return "Fair direct play compatibility, minor issues possible"
	case score > 0:
		return "Poor compatibility, transcoding recommended"
	default:
		return "Direct play not possible"
	}
}
