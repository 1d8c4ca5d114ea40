package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"media-client-bridge/internal/capability"
	"media-client-bridge/internal/logging"
)

var (
	probeJSON    bool
	probeFixture string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe and print device playback capabilities",
	Long: `Probes the local device's decoders, display, and memory and prints the
resulting direct-play capability snapshot. With --fixture the probe runs
against a device description file instead of the local hardware.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		capCfg := cfg.Capability
		if probeFixture != "" {
			capCfg.Prober = "static"
			capCfg.FixturePath = probeFixture
		}

		logger := logging.Initialize(cfg.LogLevel)
		analyzer, err := capability.NewAnalyzerFromConfig(capCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize analyzer: %w", err)
		}

		caps := analyzer.Capabilities(context.Background())

		if probeJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(caps)
		}

		printCapabilities(caps)
		return nil
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "print the snapshot as JSON")
	probeCmd.Flags().StringVar(&probeFixture, "fixture", "", "probe a device fixture file instead of local hardware")

	rootCmd.AddCommand(probeCmd)
}

// printCapabilities renders the snapshot in a human-readable layout
func printCapabilities(caps capability.DirectPlayCapabilities) {
	fmt.Printf("Device tier:     %s\n", caps.Tier)
	fmt.Printf("Max resolution:  %dx%d\n", caps.MaxWidth, caps.MaxHeight)
	fmt.Printf("4K support:      %t\n", caps.Supports4K)
	fmt.Printf("HDR support:     %t\n", caps.SupportsHDR)
	fmt.Printf("Max bitrate:     %d Mbps\n", caps.MaxBitrate/1_000_000)
	fmt.Printf("Total memory:    %d MiB\n", caps.TotalMemoryBytes/(1024*1024))

	fmt.Println("\nVideo codecs:")
	printCodecs(caps.VideoCodecs)

	fmt.Println("\nAudio codecs:")
	printCodecs(caps.AudioCodecs)

	fmt.Printf("\nContainers: %v\n", caps.Containers)
}

func printCodecs(codecs map[string]capability.SupportLevel) {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("  %-10s %s\n", name, codecs[name])
	}
}
