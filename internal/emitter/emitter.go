// Package emitter converts a populated Memory Store into the two output
// artifacts spec 6 describes: an assembly text file and an optional debug
// YAML dump. Grounded on gmofishsauce-wut4/asm/output.go's section-writing
// and asm/disasm.go's mnemonic-rendering, generalized from WUT-4's 16-bit
// binary format to RISC-V assembly text with one instruction per line.
package emitter

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jberkowitz/tibbar/internal/engine"
	"github.com/jberkowitz/tibbar/internal/memstore"
)

// FormatCell renders a placed Cell as a disassembly-shaped line, the way
// asm/disasm.go renders a decoded WUT-4 Instruction. WriteAssembly uses it
// for both its .text and .data lines; the debug YAML and the log output do
// not render cells.
func FormatCell(c *memstore.Cell) string {
	switch c.Kind {
	case memstore.CellInstruction:
		operands := make([]string, len(c.Operands))
		for i, o := range c.Operands {
			operands[i] = fmt.Sprintf("%d", o)
		}
		if len(operands) == 0 {
			return c.Form
		}
		return fmt.Sprintf("%s %s", c.Form, strings.Join(operands, ", "))
	case memstore.CellData:
		return fmt.Sprintf(".byte %s", bytesToHexList(c.Bytes))
	default:
		return "; reserved"
	}
}

func bytesToHexList(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("0x%02x", v)
	}
	return strings.Join(parts, ", ")
}

// WriteAssembly writes the header comment block plus `.section .text` (and,
// when any data was placed, `.section .data` with offsets from the data
// region base) to w, per spec 6 Outputs. The "# Data region:" header line
// appears only when the data region is a distinct bank.
func WriteAssembly(w io.Writer, res *engine.Result) error {
	store := res.Store
	bank := store.CodeBank()

	fmt.Fprintf(w, "# Load address: 0x%x\n", bank.Base)
	fmt.Fprintf(w, "# RAM size: 0x%x\n", bank.Size)
	fmt.Fprintf(w, "# Boot: 0x%x\n", res.BootAddr)
	fmt.Fprintf(w, "# Exit: 0x%x\n", res.ExitAddr)
	if store.DataRegionIsDistinctBank() {
		base, _ := store.DataRegionBase()
		fmt.Fprintf(w, "# Data region: 0x%x\n", base)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, ".section .text")
	for _, addr := range store.Placements() {
		cell, ok := store.Get(addr)
		if !ok || cell.Kind != memstore.CellInstruction {
			continue
		}
		fmt.Fprintf(w, "0x%08x:\t%s\n", addr, FormatCell(cell))
	}

	if base, ok := store.DataRegionBase(); ok {
		var dataLines []string
		for _, addr := range store.Placements() {
			cell, ok := store.Get(addr)
			if !ok || cell.Kind != memstore.CellData {
				continue
			}
			offset := uint64(addr) - uint64(base)
			dataLines = append(dataLines, fmt.Sprintf("0x%08x:\t%s", offset, FormatCell(cell)))
		}
		if len(dataLines) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, ".section .data")
			for _, l := range dataLines {
				fmt.Fprintln(w, l)
			}
		}
	}
	return nil
}

// DebugInfo is the shape serialized to --debug-yaml: the memory map, chosen
// addresses, and metadata sufficient to reconstruct the run (spec 6).
type DebugInfo struct {
	RunID              string       `yaml:"run_id"`
	Generator          string       `yaml:"generator"`
	Seed               int64        `yaml:"seed"`
	BootAddr           string       `yaml:"boot_addr"`
	ExitAddr           string       `yaml:"exit_addr"`
	TrapHandler        string       `yaml:"trap_handler"`
	InstructionsPlaced int          `yaml:"instructions_placed"`
	CodeBytesPlaced    uint64       `yaml:"code_bytes_placed"`
	TrapsRaised        int          `yaml:"traps_raised"`
	Banks              []DebugBank  `yaml:"banks"`
	DataRegionBase     *string      `yaml:"data_region_base,omitempty"`
}

// DebugBank mirrors one memstore.Bank for the debug YAML's memory map.
type DebugBank struct {
	Name   string `yaml:"name"`
	Base   string `yaml:"base"`
	Size   uint64 `yaml:"size"`
	Code   bool   `yaml:"code"`
	Data   bool   `yaml:"data"`
	Access string `yaml:"access"`
}

func accessName(a memstore.Access) string {
	switch a {
	case memstore.RX:
		return "rx"
	case memstore.RW:
		return "rw"
	default:
		return "rwx"
	}
}

// BuildDebugInfo assembles a DebugInfo from a finished run. runID is
// generated once per run with google/uuid (DOMAIN STACK: "stamps each
// generated program with a run identifier... metadata alongside the
// output, never fed back into generation").
func BuildDebugInfo(generator string, seed int64, res *engine.Result) DebugInfo {
	info := DebugInfo{
		RunID:              uuid.NewString(),
		Generator:          generator,
		Seed:               seed,
		BootAddr:           fmt.Sprintf("0x%x", res.BootAddr),
		ExitAddr:           fmt.Sprintf("0x%x", res.ExitAddr),
		TrapHandler:        fmt.Sprintf("0x%x", res.TrapHandler),
		InstructionsPlaced: res.InstructionsPlaced,
		CodeBytesPlaced:    uint64(res.CodeBytesPlaced),
		TrapsRaised:        res.TrapsRaised,
	}
	for _, b := range res.Store.Banks {
		info.Banks = append(info.Banks, DebugBank{
			Name:   b.Name,
			Base:   fmt.Sprintf("0x%x", b.Base),
			Size:   uint64(b.Size),
			Code:   b.Code,
			Data:   b.Data,
			Access: accessName(b.Access),
		})
	}
	if base, ok := res.Store.DataRegionBase(); ok && res.Store.DataRegionIsDistinctBank() {
		s := fmt.Sprintf("0x%x", base)
		info.DataRegionBase = &s
	}
	return info
}

// WriteDebugYAML serializes a DebugInfo to w.
func WriteDebugYAML(w io.Writer, info DebugInfo) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(info)
}
