package plan

import "strings"

// copyCompatibleCodecs are audio codecs the output container accepts
// verbatim. Tracks in these codecs are stream-copied instead of
// re-encoded, a fast lossless passthrough.
var copyCompatibleCodecs = map[string]struct{}{
	"aac":  {},
	"alac": {},
	"mp3":  {},
	"ac3":  {},
	"eac3": {},
	"mp2":  {},
}

// CopyCompatible classifies an audio codec name. It is total and
// deterministic: an empty or unknown name, flac, vorbis, opus, wavpack,
// and every raw PCM variant all classify as incompatible and are
// transcoded.
func CopyCompatible(codec string) bool {
	normalized := strings.ToLower(strings.TrimSpace(codec))
	if normalized == "" {
		return false
	}
	_, ok := copyCompatibleCodecs[normalized]
	return ok
}
