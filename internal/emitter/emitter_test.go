package emitter_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jberkowitz/tibbar/internal/emitter"
	"github.com/jberkowitz/tibbar/internal/engine"
	"github.com/jberkowitz/tibbar/internal/generators"
	"github.com/jberkowitz/tibbar/internal/isa"
	"github.com/jberkowitz/tibbar/internal/memstore"
	"github.com/jberkowitz/tibbar/internal/sequence"
)

func runSimple(t *testing.T) *engine.Result {
	t.Helper()
	store, err := memstore.New(memstore.Config{
		Banks: []memstore.Bank{{
			Name: "ram", Base: 0x80000000, Size: 0x80000, Code: true, Data: true, Access: memstore.RWX,
		}},
	})
	require.NoError(t, err)
	factory, err := generators.Get("simple")
	require.NoError(t, err)
	res, err := engine.Run(engine.Config{
		Store:            store,
		Catalog:          isa.NewRV32I(),
		Seed:             42,
		Limits:           engine.Limits{MaxInstructions: 200, MaxCodeBytes: 0x4000},
		NewStartSequence: func() sequence.Sequence { return sequence.NewDefaultProgramStart() },
		NewEndSequence:   func() sequence.Sequence { return sequence.NewDefaultProgramEnd() },
		NewMainFunnel:    factory,
	})
	require.NoError(t, err)
	return res
}

func TestWriteAssemblyHasHeaderAndTextSection(t *testing.T) {
	res := runSimple(t)
	var buf bytes.Buffer
	require.NoError(t, emitter.WriteAssembly(&buf, res))

	out := buf.String()
	require.Contains(t, out, "# Load address: 0x80000000")
	require.Contains(t, out, ".section .text")
}

func TestBuildDebugInfoRoundTripsThroughYAML(t *testing.T) {
	res := runSimple(t)
	info := emitter.BuildDebugInfo("simple", 42, res)
	require.NotEmpty(t, info.RunID)
	require.Equal(t, "simple", info.Generator)

	var buf bytes.Buffer
	require.NoError(t, emitter.WriteDebugYAML(&buf, info))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "simple", decoded["generator"])
	require.True(t, strings.HasPrefix(decoded["boot_addr"].(string), "0x"))
}
