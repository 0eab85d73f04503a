// tibbar generates directed-random RISC-V (RV32I) bare-metal instruction
// streams for exercising a CPU model (spec 6). It loads a memory
// configuration, runs the named generator against the Generator/Engine loop,
// and writes the resulting program as assembly text plus an optional debug
// YAML dump.
//
// Grounded on gmofishsauce-wut4/asm/main.go's flag-driven driver shape,
// generalized from flag to github.com/spf13/cobra per the DOMAIN STACK's CLI
// entry, with github.com/sirupsen/logrus carrying run progress the way
// emul/main.go's -trace option carries execution progress.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jberkowitz/tibbar/internal/emitter"
	"github.com/jberkowitz/tibbar/internal/engine"
	"github.com/jberkowitz/tibbar/internal/generators"
	"github.com/jberkowitz/tibbar/internal/isa"
	"github.com/jberkowitz/tibbar/internal/memconfig"
	"github.com/jberkowitz/tibbar/internal/memstore"
	"github.com/jberkowitz/tibbar/internal/sequence"
)

var (
	generatorName string
	outputPath    string
	seed          int64
	verbosity     string
	debugYAMLPath string
	memConfigPath string
	maxInstrs     int
	maxCodeBytes  int64
)

func main() {
	root := &cobra.Command{
		Use:   "tibbar",
		Short: "Directed-random RISC-V instruction stream generator",
		RunE:  run,
	}

	root.Flags().StringVarP(&generatorName, "generator", "g", "", fmt.Sprintf("generator name (required; one of: %v)", generators.Names()))
	root.Flags().StringVarP(&outputPath, "output", "o", "test.S", "output assembly file")
	root.Flags().Int64VarP(&seed, "seed", "s", 42, "PRNG seed")
	root.Flags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (trace, debug, info, warn, error)")
	root.Flags().StringVar(&debugYAMLPath, "debug-yaml", "", "write a debug YAML dump to this path")
	root.Flags().StringVar(&memConfigPath, "memory-config", "", "YAML memory configuration (default: a single 512KiB rwx bank at 0x80000000, upper 256KiB for data)")
	root.Flags().IntVar(&maxInstrs, "max-instructions", 0, "instruction ceiling (0 = engine default)")
	root.Flags().Int64Var(&maxCodeBytes, "max-code-bytes", 0, "code-byte ceiling (0 = engine default)")
	_ = root.MarkFlagRequired("generator")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tibbar: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return fmt.Errorf("tibbar: invalid --verbosity %q: %w", verbosity, err)
	}
	log.SetLevel(level)

	factory, err := generators.Get(generatorName)
	if err != nil {
		return fmt.Errorf("tibbar: %w", err)
	}

	doc := memconfig.Default()
	if memConfigPath != "" {
		raw, err := os.ReadFile(memConfigPath)
		if err != nil {
			return fmt.Errorf("tibbar: reading %s: %w", memConfigPath, err)
		}
		doc, err = memconfig.Load(raw)
		if err != nil {
			return fmt.Errorf("tibbar: %w", err)
		}
		log.WithField("path", memConfigPath).Debug("loaded memory configuration")
	} else {
		log.Debug("using default memory configuration")
	}

	storeCfg, err := doc.ToStoreConfig()
	if err != nil {
		return fmt.Errorf("tibbar: %w", err)
	}
	store, err := memstore.New(storeCfg)
	if err != nil {
		return fmt.Errorf("tibbar: building memory store: %w", err)
	}

	catalog := isa.NewRV32I()

	log.WithFields(logrus.Fields{
		"generator": generatorName,
		"seed":      seed,
	}).Info("starting generation run")

	cfg := engine.Config{
		Store:   store,
		Catalog: catalog,
		Seed:    seed,
		BootOverride: storeCfg.Boot,
		Limits: engine.Limits{
			MaxInstructions: maxInstrs,
			MaxCodeBytes:    memstore.Address(maxCodeBytes),
		},
		NewStartSequence: func() sequence.Sequence { return sequence.NewDefaultProgramStart() },
		NewEndSequence:   func() sequence.Sequence { return sequence.NewDefaultProgramEnd() },
		NewMainFunnel:    factory,
	}

	res, err := engine.Run(cfg)
	if err != nil {
		return fmt.Errorf("tibbar: generation failed: %w", err)
	}

	log.WithFields(logrus.Fields{
		"instructions": res.InstructionsPlaced,
		"code_bytes":   res.CodeBytesPlaced,
		"traps_raised": res.TrapsRaised,
		"boot_addr":    fmt.Sprintf("0x%x", res.BootAddr),
		"exit_addr":    fmt.Sprintf("0x%x", res.ExitAddr),
	}).Info("generation complete")

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("tibbar: creating %s: %w", outputPath, err)
	}
	defer out.Close()
	if err := emitter.WriteAssembly(out, res); err != nil {
		return fmt.Errorf("tibbar: writing assembly: %w", err)
	}
	log.WithField("path", outputPath).Info("wrote assembly output")

	if debugYAMLPath != "" {
		info := emitter.BuildDebugInfo(generatorName, seed, res)
		dbg, err := os.Create(debugYAMLPath)
		if err != nil {
			return fmt.Errorf("tibbar: creating %s: %w", debugYAMLPath, err)
		}
		defer dbg.Close()
		if err := emitter.WriteDebugYAML(dbg, info); err != nil {
			return fmt.Errorf("tibbar: writing debug YAML: %w", err)
		}
		log.WithField("path", debugYAMLPath).Info("wrote debug YAML")
	}

	return nil
}
