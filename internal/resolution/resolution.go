// Package resolution defines the output quality ladder for the pipeline.
package resolution

import "fmt"

// Tier describes one target output quality with its encode parameters.
type Tier struct {
	Name    string
	Width   int
	Height  int
	Bitrate string // ffmpeg bitrate value, e.g. "900k"
	// Bandwidth is the value advertised in the master playlist, in bits/s.
	Bandwidth int
}

// Ladder is the full set of supported tiers, lowest quality first.
var Ladder = []Tier{
	{Name: "240p", Width: 426, Height: 240, Bitrate: "300k", Bandwidth: 300000},
	{Name: "360p", Width: 640, Height: 360, Bitrate: "500k", Bandwidth: 500000},
	{Name: "480p", Width: 854, Height: 480, Bitrate: "700k", Bandwidth: 700000},
	{Name: "720p", Width: 1280, Height: 720, Bitrate: "900k", Bandwidth: 900000},
	{Name: "1080p", Width: 1920, Height: 1080, Bitrate: "2500k", Bandwidth: 2500000},
}

// Names returns the tier names in ladder order.
func Names() []string {
	names := make([]string, len(Ladder))
	for i, t := range Ladder {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the tier with the given name.
func Lookup(name string) (Tier, error) {
	for _, t := range Ladder {
		if t.Name == name {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("unknown resolution %q", name)
}

// Valid reports whether name is a known tier.
func Valid(name string) bool {
	_, err := Lookup(name)
	return err == nil
}
