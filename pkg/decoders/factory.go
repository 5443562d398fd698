package decoders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/drgolem/audiorenderer/pkg/decoders/flac"
	"github.com/drgolem/audiorenderer/pkg/decoders/mp3"
	"github.com/drgolem/audiorenderer/pkg/decoders/ogg"
	"github.com/drgolem/audiorenderer/pkg/decoders/wav"
	"github.com/drgolem/audiorenderer/pkg/types"
)

// NewDecoder creates and opens the appropriate decoder based on file extension.
// Supports .mp3, .flac, .fla, .ogg and .wav formats. Every decoder emits
// 16-bit PCM.
func NewDecoder(fileName string) (types.AudioDecoder, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	var decoder types.AudioDecoder

	switch ext {
	case ".mp3":
		decoder = mp3.NewDecoder()
	case ".flac", ".fla":
		decoder = flac.NewDecoder()
	case ".ogg", ".oga":
		decoder = ogg.NewDecoder()
	case ".wav":
		decoder = wav.NewDecoder()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .mp3, .flac, .fla, .ogg, .wav)", ext)
	}

	if err := decoder.Open(fileName); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	return decoder, nil
}
