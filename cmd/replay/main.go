package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/reach-controller/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to replay fixture JSON")
	jsonOut := flag.Bool("json", false, "output summary as JSON instead of text")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--json]")
		os.Exit(2)
	}

	fx, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(2)
	}

	cfg, err := fx.Config(filepath.Dir(*fixturePath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve config: %v\n", err)
		os.Exit(2)
	}

	sum, err := replay.Run(cfg, fx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	problems := replay.Check(sum, fx)

	if *jsonOut {
		printJSON(sum, problems)
	} else {
		printText(fx, sum, problems)
	}

	if len(problems) > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region output

func printText(fx replay.Fixture, sum replay.Summary, problems []string) {
	if fx.Description != "" {
		fmt.Printf("# %s\n", fx.Description)
	}
	for _, st := range sum.Steps {
		tag := ""
		if st.Synthesized {
			tag = " (timer)"
		}
		fmt.Printf("%3d  %6dms  %-12s%s → %s  [total=%d success=%d overshoot=%d dir=%d]\n",
			st.Index, st.AtMS, st.Trigger, tag, st.Cur,
			st.Counters.Total, st.Counters.Successful, st.Counters.Overshoot, st.Direction)
	}
	fmt.Printf("final: cur=%s total=%d successful=%d overshoot=%d direction=%d trials=%d\n",
		sum.Cur, sum.Counters.Total, sum.Counters.Successful, sum.Counters.Overshoot,
		sum.Direction, len(sum.Trials))

	if len(problems) == 0 {
		fmt.Println("PASS")
		return
	}
	for _, p := range problems {
		fmt.Printf("FAIL: %s\n", p)
	}
}

type jsonSummary struct {
	Steps    []replay.StepResult `json:"steps"`
	Cur      string              `json:"cur"`
	Problems []string            `json:"problems,omitempty"`
	Pass     bool                `json:"pass"`
}

func printJSON(sum replay.Summary, problems []string) {
	out := jsonSummary{
		Steps:    sum.Steps,
		Cur:      sum.Cur,
		Problems: problems,
		Pass:     len(problems) == 0,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

// #endregion output
