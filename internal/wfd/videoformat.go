// Package wfd models the H.264 video formats a Wi-Fi Display source and
// sink negotiate: profiles, levels and the CEA, VESA and handheld
// resolution tables, and maps a negotiated format to encoder settings.
package wfd

import (
	"fmt"
	"strings"
)

// Profile is a WFD H.264 profile.
type Profile int

const (
	ProfileCBP Profile = iota // constrained baseline
	ProfileCHP                // constrained high
)

func (p Profile) String() string {
	switch p {
	case ProfileCBP:
		return "constrained-baseline"
	case ProfileCHP:
		return "high"
	}
	return "unknown"
}

// ParseProfile accepts the short WFD names ("cbp", "chp") and the long
// names returned by String.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cbp", "constrained-baseline", "baseline":
		return ProfileCBP, nil
	case "chp", "high":
		return ProfileCHP, nil
	}
	return 0, fmt.Errorf("wfd: unknown H.264 profile %q", s)
}

// Level is a WFD H.264 level.
type Level int

const (
	Level3_1 Level = iota
	Level3_2
	Level4
	Level4_1
	Level4_2
)

var levelNames = [...]string{"3.1", "3.2", "4", "4.1", "4.2"}

// levelIDC holds level_idc as coded in the SPS.
var levelIDC = [...]byte{31, 32, 40, 41, 42}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel accepts "3.1", "31", "4", "4.0" and similar.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	for i, name := range levelNames {
		if s == name || s == strings.ReplaceAll(name, ".", "") || s == name+".0" || s == fmt.Sprint(levelIDC[i]) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("wfd: unknown H.264 level %q", s)
}

// ResolutionType selects one of the three resolution tables.
type ResolutionType int

const (
	CEA ResolutionType = iota
	VESA
	HH
)

func (t ResolutionType) String() string {
	switch t {
	case CEA:
		return "CEA"
	case VESA:
		return "VESA"
	case HH:
		return "HH"
	}
	return "unknown"
}

// RateAndResolution is one entry of a resolution table.
type RateAndResolution struct {
	Width      int
	Height     int
	Framerate  int
	Interlaced bool
}

func (r RateAndResolution) String() string {
	scan := "p"
	if r.Interlaced {
		scan = "i"
	}
	return fmt.Sprintf("%dx%d%s%d", r.Width, r.Height, scan, r.Framerate)
}

func prog(w, h, fps int) RateAndResolution { return RateAndResolution{w, h, fps, false} }
func intl(w, h, fps int) RateAndResolution { return RateAndResolution{w, h, fps, true} }

// Tables are indexed by the bit position used in the wfd-video-formats
// bitmaps.
var (
	ceaTable = []RateAndResolution{
		prog(640, 480, 60), prog(720, 480, 60), intl(720, 480, 60), prog(720, 576, 50),
		intl(720, 576, 50), prog(1280, 720, 30), prog(1280, 720, 60), prog(1920, 1080, 30),
		prog(1920, 1080, 60), intl(1920, 1080, 60), prog(1280, 720, 25), prog(1280, 720, 50),
		prog(1920, 1080, 25), prog(1920, 1080, 50), intl(1920, 1080, 50), prog(1280, 720, 24),
		prog(1920, 1080, 24),
	}
	vesaTable = []RateAndResolution{
		prog(800, 600, 30), prog(800, 600, 60), prog(1024, 768, 30), prog(1024, 768, 60),
		prog(1152, 864, 30), prog(1152, 864, 60), prog(1280, 768, 30), prog(1280, 768, 60),
		prog(1280, 800, 30), prog(1280, 800, 60), prog(1360, 768, 30), prog(1360, 768, 60),
		prog(1366, 768, 30), prog(1366, 768, 60), prog(1280, 1024, 30), prog(1280, 1024, 60),
		prog(1400, 1050, 30), prog(1400, 1050, 60), prog(1440, 900, 30), prog(1440, 900, 60),
		prog(1600, 900, 30), prog(1600, 900, 60), prog(1600, 1200, 30), prog(1600, 1200, 60),
		prog(1680, 1024, 30), prog(1680, 1024, 60), prog(1680, 1050, 30), prog(1680, 1050, 60),
		prog(1920, 1200, 30),
	}
	hhTable = []RateAndResolution{
		prog(800, 480, 30), prog(800, 480, 60), prog(854, 480, 30), prog(854, 480, 60),
		prog(864, 480, 30), prog(864, 480, 60), prog(640, 360, 30), prog(640, 360, 60),
		prog(960, 540, 30), prog(960, 540, 60), prog(848, 480, 30), prog(848, 480, 60),
	}
)

// fallback is used for entries outside the tables.
var fallback = prog(640, 480, 30)

func table(t ResolutionType) []RateAndResolution {
	switch t {
	case CEA:
		return ceaTable
	case VESA:
		return vesaTable
	case HH:
		return hhTable
	}
	return nil
}

// H264VideoFormat is one negotiated H.264 video format.
type H264VideoFormat struct {
	Profile        Profile
	Level          Level
	Type           ResolutionType
	RateResolution int
}

// DefaultFormat is the mandatory WFD format: CBP 3.1, 640x480p60.
var DefaultFormat = H264VideoFormat{Profile: ProfileCBP, Level: Level3_1, Type: CEA}

func (f H264VideoFormat) String() string {
	return fmt.Sprintf("%s %s %s%s", f.Profile, f.Level, f.Type, f.ExtractRateAndResolution())
}

// ExtractRateAndResolution looks the format up in its table. Unknown
// entries yield 640x480p30.
func (f H264VideoFormat) ExtractRateAndResolution() RateAndResolution {
	t := table(f.Type)
	if f.RateResolution < 0 || f.RateResolution >= len(t) {
		return fallback
	}
	return t[f.RateResolution]
}

// ExtractProfileLevel returns profile_idc, level_idc and the constraint
// flags byte an encoder should signal for the format.
func (f H264VideoFormat) ExtractProfileLevel() (profileIDC, levelIDCValue, constraints byte) {
	switch f.Profile {
	case ProfileCBP:
		profileIDC, constraints = 66, 0xC0
	case ProfileCHP:
		profileIDC, constraints = 100, 0x0C
	}
	if f.Level >= 0 && int(f.Level) < len(levelIDC) {
		levelIDCValue = levelIDC[f.Level]
	}
	return profileIDC, levelIDCValue, constraints
}

// ParseResolution parses names such as "CEA1280x720p30", "VESA1024x768p60"
// or "HH848x480p30".
func ParseResolution(name string) (ResolutionType, int, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, t := range []ResolutionType{VESA, CEA, HH} {
		prefix := t.String()
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		rest := strings.ToLower(upper[len(prefix):])
		for idx, rr := range table(t) {
			if rr.String() == rest {
				return t, idx, nil
			}
		}
		return 0, 0, fmt.Errorf("wfd: no %s resolution %q", prefix, rest)
	}
	return 0, 0, fmt.Errorf("wfd: resolution %q lacks a CEA, VESA or HH prefix", name)
}

// EncoderConfig carries the settings an encoder needs for a format.
type EncoderConfig struct {
	Width         int
	Height        int
	Framerate     int
	Bitrate       int
	ProfileIDC    byte
	LevelIDC      byte
	ConstraintSet byte
}

// DefaultBitrate is used when the caller does not choose one.
const DefaultBitrate = 5_000_000

// EncoderConfig derives encoder settings for the format.
func (f H264VideoFormat) EncoderConfig() EncoderConfig {
	rr := f.ExtractRateAndResolution()
	profile, level, constraints := f.ExtractProfileLevel()
	return EncoderConfig{
		Width:         rr.Width,
		Height:        rr.Height,
		Framerate:     rr.Framerate,
		Bitrate:       DefaultBitrate,
		ProfileIDC:    profile,
		LevelIDC:      level,
		ConstraintSet: constraints,
	}
}
