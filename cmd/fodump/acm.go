package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/32bitkid/fallout/acm"
	"github.com/32bitkid/fallout/vfs"
)

func openACM(p string) (*acm.File, error) {
	drv := vfs.Dir{Root: filepath.Dir(p)}
	return acm.Open(drv, filepath.Base(p))
}

func infoCmd() *cli.Command {
	var file string

	return &cli.Command{
		Name:  "info",
		Usage: "Print an ACM file's header fields",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .acm file",
				Destination: &file,
				Required:    true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			f, err := openACM(file)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			fmt.Printf("samples:  %d\n", f.Samples())
			fmt.Printf("channels: %d\n", f.Channels())
			fmt.Printf("rate:     %d Hz\n", f.Bitrate())
			if f.Channels() > 0 && f.Bitrate() > 0 {
				secs := float64(f.Samples()) / float64(f.Channels()) / float64(f.Bitrate())
				fmt.Printf("duration: %.2fs\n", secs)
			}
			return nil
		},
	}
}

func wavCmd() *cli.Command {
	var (
		file string
		out  string
	)

	return &cli.Command{
		Name:  "wav",
		Usage: "Decode an ACM file to a RIFF/WAVE PCM file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .acm file",
				Destination: &file,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .wav path",
				Destination: &out,
				Required:    true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			f, err := openACM(file)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			samples := make([]int16, 0, f.Samples())
			buf := make([]int16, 4096)
			for {
				n, err := f.ReadSamples(buf)
				samples = append(samples, buf[:n]...)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: decode %s: %v", file, err), 1)
				}
				if n < len(buf) {
					break
				}
			}

			w, err := os.Create(out)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer w.Close()

			if err := writeWAV(w, samples, f.Channels(), f.Bitrate()); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", out, err), 1)
			}
			fmt.Printf("%s: %d samples\n", out, len(samples))
			return nil
		},
	}
}

// writeWAV emits a minimal 16-bit PCM RIFF file.
func writeWAV(w io.Writer, samples []int16, channels, rate int) error {
	dataSize := uint32(len(samples) * 2)

	type riffHeader struct {
		ChunkID   [4]byte
		ChunkSize uint32
		Format    [4]byte

		FmtID         [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16

		DataID   [4]byte
		DataSize uint32
	}

	hdr := riffHeader{
		ChunkID:   [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize: 36 + dataSize,
		Format:    [4]byte{'W', 'A', 'V', 'E'},

		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		Channels:      uint16(channels),
		SampleRate:    uint32(rate),
		ByteRate:      uint32(rate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,

		DataID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize: dataSize,
	}

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}
