// ts-mux wraps a raw input file into an MPEG transport stream using the
// same packetizer the streaming path uses.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	inFlag := flag.String("in", "", "Input file (H.264 Annex-B, or any bytes with -chunk)")
	outFlag := flag.String("out", "", "Output .ts file")
	chunkFlag := flag.Int("chunk", 0, "Split input into fixed-size chunks instead of access units")
	psiFlag := flag.Int("psi-every", 10, "Emit PAT, PMT and PCR every N payloads")
	fpsFlag := flag.Int("fps", 30, "Timestamp spacing in frames per second")
	flag.Parse()

	if *inFlag == "" || *outFlag == "" || *fpsFlag <= 0 {
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  ts-mux -in video.h264 -out video.ts [-psi-every 10] [-fps 30]\n")
		fmt.Fprintf(os.Stderr, "  ts-mux -in blob.bin -out blob.ts -chunk 4096\n")
		os.Exit(1)
	}

	in, err := os.Open(*inFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ts-mux: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	out, err := os.Create(*outFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ts-mux: %v\n", err)
		os.Exit(1)
	}

	res, err := mux(in, out, muxOptions{
		ChunkSize:     *chunkFlag,
		PSIEvery:      *psiFlag,
		FrameDuration: 1_000_000 / int64(*fpsFlag),
		ProfileIDC:    66,
		LevelIDC:      31,
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ts-mux: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d payloads, %d TS packets\n", *outFlag, res.Payloads, res.Packets)
}
