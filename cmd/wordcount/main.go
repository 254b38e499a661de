// Command wordcount runs a small batch word count through the engine,
// mostly as a smoke test and a worked example of the flow API.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/tarungka/loom/config"
	"github.com/tarungka/loom/engine"
	"github.com/tarungka/loom/flow"
	"github.com/tarungka/loom/internal/logger"
)

func initFlags(ko *koanf.Koanf) {
	f := flag.NewFlagSet("wordcount", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}

	f.String("config", "", "path to a yaml config file with engine settings")
	f.String("input", "", "file to count words from; empty reads stdin")
	f.Int("engine.state_capacity", config.Default().StateCapacity, "resident state entries before spilling")
	f.String("engine.spill_backend", config.Default().SpillBackend, "spill backend: fsdir or badger")
	f.String("engine.spill_dir", config.Default().SpillDir, "working directory for spilled state")
	f.Bool("verbose", false, "enable debug logging")

	if err := f.Parse(os.Args[1:]); err != nil {
		log.Fatal().Msgf("error loading flags: %v", err)
	}

	if path, _ := f.GetString("config"); path != "" {
		log.Debug().Msgf("Reading config from %s", path)
		if err := ko.Load(file.Provider(path), yaml.Parser()); err != nil {
			log.Fatal().Msgf("error reading config: %v", err)
		}
	}

	if err := ko.Load(posflag.Provider(f, ".", ko), nil); err != nil {
		log.Fatal().Msgf("error reading flag config: %v", err)
	}
}

func readLines(path string) ([]flow.WindowedElement, error) {
	r := os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	now := time.Now()
	var lines []flow.WindowedElement
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, flow.Timestamped(sc.Text(), now))
	}
	return lines, sc.Err()
}

func main() {
	ko := config.Koanf()
	initFlags(ko)

	if ko.Bool("verbose") {
		logger.SetDevelopment(true)
	}

	cfg, err := config.Load(ko)
	if err != nil {
		log.Fatal().Msgf("error loading engine config: %v", err)
	}

	lines, err := readLines(ko.String("input"))
	if err != nil {
		log.Fatal().Msgf("error reading input: %v", err)
	}

	f := flow.New("wordcount")
	input := f.Input("lines", lines)
	words := f.FlatMap("split", input, func(v any, emit func(any)) {
		for _, w := range strings.Fields(v.(string)) {
			emit(strings.ToLower(strings.Trim(w, `.,;:!?"'()`)))
		}
	})
	nonEmpty := f.Filter("non-empty", words, func(v any) bool {
		return v.(string) != ""
	})
	counts := f.CountByKey("count", nonEmpty, func(v any) any { return v }, nil)
	sink := &flow.Collect{}
	counts.Output(sink)

	exec, err := engine.New(cfg)
	if err != nil {
		log.Fatal().Msgf("error building engine: %v", err)
	}
	if err := exec.Run(f); err != nil {
		log.Fatal().Msgf("error running flow: %v", err)
	}

	for _, v := range sink.Values {
		p := v.(flow.KV)
		fmt.Printf("%s\t%d\n", p.Key, p.Value)
	}
}
