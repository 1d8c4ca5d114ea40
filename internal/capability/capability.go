package capability

import (
	"strings"
	"time"
)

// SupportLevel describes how a codec can be decoded on this device
type SupportLevel int

const (
	// SupportNone means no decoder for the codec is installed
	SupportNone SupportLevel = iota
	// SupportSoftware means only a software decoder is available
	SupportSoftware
	// SupportHardware means a hardware-accelerated decoder is available
	SupportHardware
)

// String returns the string representation of the support level
func (l SupportLevel) String() string {
	switch l {
	case SupportHardware:
		return "hardware"
	case SupportSoftware:
		return "software"
	default:
		return "unsupported"
	}
}

// PerformanceTier classifies the device's playback headroom
type PerformanceTier string

const (
	TierHighEnd  PerformanceTier = "high_end"
	TierMidRange PerformanceTier = "mid_range"
	TierLowEnd   PerformanceTier = "low_end"
)

// MaxBitrate returns the maximum recommended stream bitrate for the tier
func (t PerformanceTier) MaxBitrate() int64 {
	switch t {
	case TierHighEnd:
		return 100_000_000
	case TierMidRange:
		return 50_000_000
	default:
		return 25_000_000
	}
}

// DirectPlayCapabilities is a point-in-time, device-scoped snapshot of what
// can be played locally. Computed once per Analyzer and memoized.
type DirectPlayCapabilities struct {
	Containers       []string                `json:"containers"`
	VideoCodecs      map[string]SupportLevel `json:"videoCodecs"`
	AudioCodecs      map[string]SupportLevel `json:"audioCodecs"`
	MaxWidth         int                     `json:"maxWidth"`
	MaxHeight        int                     `json:"maxHeight"`
	Supports4K       bool                    `json:"supports4k"`
	SupportsHDR      bool                    `json:"supportsHdr"`
	TotalMemoryBytes uint64                  `json:"totalMemoryBytes"`
	Tier             PerformanceTier         `json:"tier"`
	MaxBitrate       int64                   `json:"maxBitrate"`
	ProbedAt         time.Time               `json:"probedAt"`
}

// StreamDescriptor describes a candidate media source offered by the server
type StreamDescriptor struct {
	ItemID     string `json:"itemId,omitempty"`
	Container  string `json:"container"`
	VideoCodec string `json:"videoCodec,omitempty"`
	AudioCodec string `json:"audioCodec,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Bitrate    int64  `json:"bitrate,omitempty"`
}

// DirectPlayAnalysis is the confidence-scored verdict for one stream. It is
// ephemeral and recomputed per query; only CanDirectPlay is authoritative,
// the score and issues are advisory diagnostics.
type DirectPlayAnalysis struct {
	CanDirectPlay  bool     `json:"canDirectPlay"`
	Score          int      `json:"score"`
	Issues         []string `json:"issues"`
	Recommendation string   `json:"recommendation"`
}

// supportedContainers is the static container allow-list; containers are not
// probed, only matched case-insensitively with any leading dot stripped
var supportedContainers = []string{
	"mp4", "m4v", "mov", "mkv", "webm", "avi", "ts", "m2ts", "flv", "ogv", "3gp",
}

// codecAliases folds alternate codec spellings onto canonical names
var codecAliases = map[string]string{
	"avc":   "h264",
	"h.264": "h264",
	"hevc":  "h265",
	"h.265": "h265",
	"vp08":  "vp8",
	"vp09":  "vp9",
	"av01":  "av1",
	"mp4a":  "aac",
	"ac-3":  "ac3",
	"e-ac-3": "eac3",
	"ec-3":  "eac3",
	"dca":   "dts",
}

// normalizeCodec lowercases a codec name and folds known aliases
func normalizeCodec(codec string) string {
	name := strings.ToLower(strings.TrimSpace(codec))
	if canonical, ok := codecAliases[name]; ok {
		return canonical
	}
	return name
}

// normalizeContainer lowercases a container name and strips a leading dot
func normalizeContainer(container string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(container)), ".")
}

// containerSupported checks the static allow-list
func containerSupported(container string) bool {
	name := normalizeContainer(container)
	for _, supported := range supportedContainers {
		if name == supported {
			return true
		}
	}
	return false
}
