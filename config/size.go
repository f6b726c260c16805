package config

import "github.com/docker/go-units"

// SizeArgument accepts human-readable byte sizes ("512MB", "4GB") in both
// CLI flags and the JSON config.
type SizeArgument struct {
	Size int64 `arg:"" help:"size in bytes"`
}

func (s *SizeArgument) UnmarshalText(text []byte) (err error) {
	s.Size, err = units.FromHumanSize(string(text))
	return
}

func (s SizeArgument) String() string {
	return units.HumanSize(float64(s.Size))
}
