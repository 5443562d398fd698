package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/drgolem/audiorenderer/pkg/decoders"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: decode <input file> [rate]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Reads an MP3, FLAC, Ogg or WAV file as a 16-bit stereo voice at rate Hz")
		fmt.Fprintln(os.Stderr, "(default 48000) and prints information about it")
		os.Exit(1)
	}

	inputFile := os.Args[1]
	rate := 48000
	if len(os.Args) > 2 {
		r, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid rate %q: %v", os.Args[2], err)
		}
		rate = r
	}

	decoder, err := decoders.NewDecoder(inputFile)
	if err != nil {
		log.Fatalf("Failed to open: %v", err)
	}
	inRate, inChannels, bps := decoder.GetFormat()
	fmt.Printf("Opening: %s\n", inputFile)
	fmt.Printf("Source: %d Hz, %d channels, %d bits\n", inRate, inChannels, bps)
	fmt.Printf("Voice:  %d Hz, 2 channels, 16 bits\n\n", rate)

	src, err := decoders.FromDecoder(decoder, rate, 2)
	if err != nil {
		decoder.Close()
		log.Fatalf("Failed to create voice: %v", err)
	}
	defer src.Close()

	// one render tick at a time
	buf := make([]int16, 240*2)
	totalFrames := 0
	ticks := 0
	var peak int16

	for {
		n, err := src.ReadSamples(buf)
		for _, v := range buf[:n] {
			if v < 0 {
				v = -v
			}
			peak = max(peak, v)
		}
		totalFrames += n / 2
		if n > 0 {
			ticks++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("Read failed after %d frames: %v", totalFrames, err)
		}
	}

	fmt.Printf("Sample frames: %d\n", totalFrames)
	fmt.Printf("Render ticks:  %d\n", ticks)
	fmt.Printf("Duration:      %.2f seconds\n", float64(totalFrames)/float64(rate))
	fmt.Printf("Peak level:    %.1f%%\n", float64(peak)*100/32767)
}
