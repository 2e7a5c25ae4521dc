package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/reach-controller/internal/replay"
)

// #region main

func main() {
	out := flag.String("out", "fixture.json", "output path for the template fixture")
	flag.Parse()

	raw, err := json.MarshalIndent(replay.Template(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal fixture: %v\n", err)
		os.Exit(1)
	}
	raw = append(raw, '\n')

	if err := os.WriteFile(*out, raw, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote template fixture to %s\n", *out)
}

// #endregion main
