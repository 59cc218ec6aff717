package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"rpnc/pkg/asm"
	"rpnc/pkg/compiler"
	"rpnc/pkg/cpu"
)

// expectation is read from the "# want N" or "# fault NAME" header of a
// testdata file. The remaining lines are the expression.
type expectation struct {
	want  int32
	fault string
}

func readCase(t *testing.T, path string) (string, expectation) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}

	var exp expectation
	var expr []string
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "#") {
			expr = append(expr, line)
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "#"))
		if len(fields) != 2 {
			t.Fatalf("%s: malformed header %q", path, line)
		}
		switch fields[0] {
		case "want":
			n, err := strconv.ParseInt(fields[1], 10, 32)
			if err != nil {
				t.Fatalf("%s: bad want value: %v", path, err)
			}
			exp.want = int32(n)
		case "fault":
			exp.fault = fields[1]
		default:
			t.Fatalf("%s: unknown header %q", path, fields[0])
		}
	}
	return strings.Join(expr, "\n"), exp
}

func TestCompilerAndCPU(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.rpn"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no testdata found")
	}

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".rpn")
		t.Run(name, func(t *testing.T) {
			expr, exp := readCase(t, path)

			// 1. Compile
			assembly, err := compiler.Compile(expr)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}

			// 2. Assemble
			machineCode, _, err := asm.Assemble(assembly)
			if err != nil {
				t.Fatalf("Assembly failed: %v\nAssembly:\n%s", err, assembly)
			}

			// 3. Load and run
			vm := cpu.NewCPU()
			if err := vm.Load(machineCode); err != nil {
				t.Fatal(err)
			}
			if err := vm.Run(1_000_000); err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			// 4. Assertions
			code := vm.Regs[cpu.RegEDI]
			if exp.fault != "" {
				if got := compiler.FaultName(code); got != exp.fault {
					t.Errorf("Expected fault %s, got %q (code %d)", exp.fault, got, code)
				}
				if vm.Reg(cpu.RegESI) != -1 {
					t.Errorf("Expected %%esi to be -1 after a fault, got %d", vm.Reg(cpu.RegESI))
				}
				return
			}

			if code != 0 {
				t.Fatalf("Unexpected fault %s (code %d)", compiler.FaultName(code), code)
			}
			if got := vm.Reg(cpu.RegEAX); got != exp.want {
				t.Errorf("Expected %%eax to be %d, got %d", exp.want, got)
			}
			// Stack fully unwound: the result pop leaves %esp at Stack.
			if vm.Regs[cpu.RegESP] != compiler.DefaultStackTop {
				t.Errorf("Expected %%esp to be 0x%X, got 0x%X", compiler.DefaultStackTop, vm.Regs[cpu.RegESP])
			}
		})
	}
}
