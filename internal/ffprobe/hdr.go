package ffprobe

import (
	"regexp"
	"strconv"
	"strings"

	"ferrex/internal/model"
)

var tenBitPixFmt = regexp.MustCompile(`(?i)(10le|10be|p010)`)
var twelveBitPixFmt = regexp.MustCompile(`(?i)(12le|12be)`)

// BitDepth derives a video stream's bit depth from bits_per_raw_sample
// when present, falling back to a pix_fmt pattern match.
func BitDepth(s Stream) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s.BitsPerRawSample)); err == nil && n > 0 {
		return n
	}
	switch {
	case twelveBitPixFmt.MatchString(s.PixFmt):
		return 12
	case tenBitPixFmt.MatchString(s.PixFmt):
		return 10
	default:
		return 8
	}
}

// DeriveHDR classifies a video stream's HDR signal from its color
// metadata and side data. Mastering-display or CLL side data implies
// at least bt2020 + smpte2084.
func DeriveHDR(s Stream) model.HDRFlavor {
	primaries := strings.ToLower(s.ColorPrimaries)
	transfer := strings.ToLower(s.ColorTransfer)

	if hasDolbyVisionSideData(s) {
		return model.HDRFlavorDolbyVision
	}

	hasMasteringData := hasSideDataType(s, "Mastering display metadata") || hasSideDataType(s, "Content light level metadata")

	isBT2020 := primaries == "bt2020"
	isPQ := transfer == "smpte2084"
	isHLG := transfer == "arib-std-b67"

	switch {
	case hasMasteringData && hasSideDataType(s, "HDR10+"):
		return model.HDRFlavorHDR10Plus
	case (isBT2020 && isPQ) || (hasMasteringData && (isBT2020 || isPQ || (primaries == "" && transfer == ""))):
		return model.HDRFlavorHDR10
	case isBT2020 && isHLG:
		return model.HDRFlavorHLG
	default:
		return model.HDRFlavorNone
	}
}

func hasSideDataType(s Stream, want string) bool {
	for _, sd := range s.SideDataList {
		if strings.Contains(strings.ToLower(sd.Type), strings.ToLower(want)) {
			return true
		}
	}
	return false
}

func hasDolbyVisionSideData(s Stream) bool {
	return hasSideDataType(s, "DOVI configuration record") || hasSideDataType(s, "Dolby Vision")
}
