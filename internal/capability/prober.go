package capability

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/config"
)

// DecoderKind distinguishes video from audio decoders
type DecoderKind string

const (
	KindVideo DecoderKind = "video"
	KindAudio DecoderKind = "audio"
)

// Decoder describes one installed decoder component. MaxWidth/MaxHeight are
// zero when the prober cannot report a capability range.
type Decoder struct {
	Name      string      `json:"name"`  // component name, e.g. "hevc_vaapi"
	Codec     string      `json:"codec"` // canonical codec, e.g. "h265"
	Kind      DecoderKind `json:"kind"`
	Hardware  bool        `json:"hardware"`
	MaxWidth  int         `json:"maxWidth,omitempty"`
	MaxHeight int         `json:"maxHeight,omitempty"`
}

// DecoderProber enumerates the installed decoder components
type DecoderProber interface {
	ProbeDecoders(ctx context.Context) ([]Decoder, error)
}

// DisplayProber reports the largest mode the attached display supports
type DisplayProber interface {
	MaxDisplayResolution(ctx context.Context) (width, height int, err error)
}

// MemoryProber reports total system memory
type MemoryProber interface {
	TotalMemoryBytes() (uint64, error)
}

// NewAnalyzerFromConfig builds an analyzer with the configured probers
func NewAnalyzerFromConfig(cfg config.CapabilityConfig, logger *logrus.Logger) (*Analyzer, error) {
	switch cfg.Prober {
	case "ffmpeg":
		prober := NewFFmpegProber(cfg.FFmpegPath, logger)
		return NewAnalyzer(prober, NewDisplayProber(), NewMemoryProber(), logger), nil
	case "static":
		fixture, err := LoadFixture(cfg.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load capability fixture: %w", err)
		}
		static := NewStaticProber(fixture)
		return NewAnalyzer(static, static, static, logger), nil
	default:
		return nil, fmt.Errorf("unknown capability prober: %s", cfg.Prober)
	}
}
