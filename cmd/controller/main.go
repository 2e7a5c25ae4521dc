package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/danielpatrickdp/reach-controller/internal/cue"
	"github.com/danielpatrickdp/reach-controller/internal/machine"
	"github.com/danielpatrickdp/reach-controller/internal/sched"
	"github.com/danielpatrickdp/reach-controller/internal/surface"
	"github.com/danielpatrickdp/reach-controller/internal/target"
	"github.com/danielpatrickdp/reach-controller/internal/taskconfig"
	"github.com/danielpatrickdp/reach-controller/internal/trial"
	"github.com/danielpatrickdp/reach-controller/internal/triallog"
)

// #region env-config

type envConfig struct {
	ConfigPath string `env:"TASK_CONFIG" envDefault:"task.yaml"`
	DBPath     string `env:"TASK_DB" envDefault:"trial_log.db"`
	// Seed fixes the RNG for timeout draws and target picks; 0 seeds from
	// the wall clock.
	Seed int64 `env:"TASK_SEED"`
}

// #endregion env-config

// #region main

func main() {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		log.Fatalf("parse env: %v", err)
	}

	cfg, err := taskconfig.Load(ec.ConfigPath)
	if err != nil {
		log.Fatalf("load task config: %v", err)
	}

	store, err := triallog.NewStore(ec.DBPath)
	if err != nil {
		log.Fatalf("open trial log: %v", err)
	}
	defer store.Close()

	seed := ec.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	surf := surface.NewLogSurface()
	cues := cue.NewLogPlayer()
	book := trial.NewBookkeeper(cfg.States, rng, time.Now)
	sel := target.NewSelector(cfg.Parameters.Targets, rng, surf)

	loop := machine.NewLoop(64)
	timer := sched.New(loop.PostTimeout)

	m, err := machine.New(&cfg, machine.Deps{
		Book:    book,
		Targets: sel,
		Surface: surf,
		Cues:    cues,
		Timer:   timer,
		Sink:    store,
	})
	if err != nil {
		log.Fatalf("build machine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := loop.Run(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("event loop: %v", err)
		}
	}()

	startErr := make(chan error, 1)
	loop.Do(func(m *machine.Machine) { startErr <- m.Start() })
	if err := <-startErr; err != nil {
		log.Fatalf("start machine: %v", err)
	}

	fmt.Printf("Reach task controller ready. task=%s config=%s db=%s seed=%d\n",
		cfg.Task.Name, ec.ConfigPath, ec.DBPath, seed)
	fmt.Println("Type a trigger (enter_t1, exit_t1, enter_t2, exit_t2, enter_ring,")
	fmt.Println("exit_ring, enter_idle, exit_idle), or: state | stats | target N | quit")

	repl(loop, store)
}

// #endregion main

// #region repl

func repl(loop *machine.Loop, store *triallog.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if line == "" {
			continue
		}

		switch {
		case line == "quit" || line == "exit":
			return

		case line == "state":
			reply := make(chan string, 1)
			loop.Do(func(m *machine.Machine) {
				reply <- fmt.Sprintf("cur=%s prev=%s prev2=%s idle=%v trial=%s",
					m.Current(), m.Previous(), m.SecondPrevious(), m.IdleActive(), m.TrialID())
			})
			fmt.Println(<-reply)

		case line == "stats":
			reply := make(chan trial.Counters, 1)
			loop.Do(func(m *machine.Machine) { reply <- m.Counters() })
			c := <-reply
			fmt.Printf("total=%d successful=%d overshoot=%d unmatched=%d\n",
				c.Total, c.Successful, c.Overshoot, c.Unmatched)
			sum, err := store.Summary()
			if err != nil {
				fmt.Printf("summary unavailable: %v\n", err)
				continue
			}
			fmt.Printf("logged: trials=%d success_rate=%.2f mean_trial=%.2fs transitions=%d\n",
				sum.Trials, sum.SuccessRate, sum.MeanTrialSeconds, sum.Transitions)

		case strings.HasPrefix(line, "target "):
			idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "target ")))
			if err != nil {
				fmt.Println("usage: target N")
				continue
			}
			reply := make(chan error, 1)
			loop.Do(func(m *machine.Machine) { reply <- m.QueueTarget(idx) })
			if err := <-reply; err != nil {
				fmt.Printf("queue target: %v\n", err)
			}

		default:
			loop.Post(machine.Event{Trigger: line})
		}
	}
}

// #endregion repl
