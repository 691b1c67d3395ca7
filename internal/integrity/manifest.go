package integrity

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"albumvideo/internal/services"
)

// Manifest maps a binary name (ffmpeg, ffprobe) to its expected SHA-256
// digest, hex-encoded. The manifest shipped with a packaged build is
// embedded; an external file in the same format may override it.
type Manifest struct {
	digests map[string]string
}

//go:embed manifest.sha256
var embeddedManifest []byte

// EmbeddedManifest parses the manifest shipped with the build.
func EmbeddedManifest() (*Manifest, error) {
	return parseManifest(bytes.NewReader(embeddedManifest), "embedded manifest")
}

// LoadManifest reads an external manifest file. Used when the
// configuration overrides the embedded contract.
func LoadManifest(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "integrity", "load manifest", "check integrity.manifest_path", err)
	}
	defer file.Close()
	return parseManifest(file, path)
}

// ExpectedDigest returns the hex digest recorded for a binary name, or
// false when the manifest does not cover it.
func (m *Manifest) ExpectedDigest(name string) (string, bool) {
	digest, ok := m.digests[strings.ToLower(name)]
	return digest, ok
}

// Names lists the binaries the manifest covers, unordered.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.digests))
	for name := range m.digests {
		names = append(names, name)
	}
	return names
}

// parseManifest reads "sha256  name" lines, one binary per line, in the
// style of sha256sum output. Blank lines and #-comments are ignored.
func parseManifest(r io.Reader, source string) (*Manifest, error) {
	digests := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("parse %s line %d: want \"<sha256> <name>\", got %q", source, lineNo, line)
		}
		digest := strings.ToLower(fields[0])
		if len(digest) != 64 {
			return nil, fmt.Errorf("parse %s line %d: %q is not a sha256 digest", source, lineNo, fields[0])
		}
		digests[strings.ToLower(fields[1])] = digest
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return &Manifest{digests: digests}, nil
}
