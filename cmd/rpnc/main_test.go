package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpnc/pkg/compiler"
	"rpnc/pkg/cpu"
)

type result struct {
	stdout string
	stderr string
	err    error
	app    *app
}

func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	color.NoColor = true

	a := newApp()
	cmd := a.rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return result{stdout: out.String(), stderr: errOut.String(), err: err, app: a}
}

func TestRunPrintsResult(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"run", "7 1 + 3 -"}, "5\n"},
		{[]string{"run", "5", "2", "swap", "-"}, "-3\n"},
		{[]string{"run", "6 3 /"}, "2\n"},
		{[]string{"run", "--", "-4", "3", "*"}, "-12\n"},
		{[]string{"run", "7 dup +"}, "14\n"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			r := execute(t, "", tt.args...)
			require.NoError(t, r.err)
			assert.Equal(t, tt.want, r.stdout)
		})
	}
}

func TestRunReportsFault(t *testing.T) {
	tests := []struct {
		expr string
		code uint32
		name string
	}{
		{"3 0 /", compiler.CodeDivideByZero, "divide_by_zero"},
		{"1 +", compiler.CodeStackError, "stack_error"},
		{"3 2 1 +", compiler.CodeStackTooFull, "stack_too_full"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r := execute(t, "", "run", tt.expr)
			require.Error(t, r.err)

			var fe *faultError
			require.True(t, errors.As(r.err, &fe))
			assert.Equal(t, tt.code, fe.Code)
			assert.Contains(t, r.err.Error(), tt.name)
			assert.Empty(t, r.stdout)
		})
	}
}

func TestRunRegisterTable(t *testing.T) {
	r := execute(t, "", "run", "--regs", "6 7 *")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "%eax")
	assert.Contains(t, r.stdout, "0x0000002a")
	assert.Contains(t, r.stdout, "HLT")
	assert.True(t, strings.HasSuffix(r.stdout, "42\n"))
}

func TestRunCompileError(t *testing.T) {
	r := execute(t, "", "run", "5 %")
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, compiler.ErrUnknownToken)
}

func TestCompileToStdout(t *testing.T) {
	for _, args := range [][]string{
		{"compile", "-o", "-", "7 1 +"},
		{"-o", "-", "7 1 +"},
	} {
		r := execute(t, "", args...)
		require.NoError(t, r.err)
		assert.Contains(t, r.stdout, "Main:")
		assert.Contains(t, r.stdout, "irmovl $7, %ecx")
		assert.Contains(t, r.stdout, ".pos 0xffc")
	}
}

func TestCompileWritesFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "prog.ys")

	r := execute(t, "", "compile", "-o", out, "7 1 +")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "-> "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	want, err := compiler.Compile("7 1 +")
	require.NoError(t, err)
	assert.Equal(t, want, string(data))

	r = execute(t, "", "compile", "-o", out, "2 2 *")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "already exists")

	r = execute(t, "", "compile", "-f", "-o", out, "2 2 *")
	require.NoError(t, r.err)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "irmovl $2, %ecx")
}

func TestCompileDefaultOutput(t *testing.T) {
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	r := execute(t, "", "7 1 +")
	require.NoError(t, r.err)
	_, err := os.Stat(defaultAsmOutput)
	assert.NoError(t, err)
}

func TestCompileNoOutputOnError(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bad.ys")

	r := execute(t, "", "compile", "-o", out, "1 2 + 3")
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, compiler.ErrInvalidEnd)
	_, err := os.Stat(out)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestInputSources(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "expr.rpn")
	require.NoError(t, os.WriteFile(in, []byte("9 3 /\n"), 0o644))

	r := execute(t, "", "run", "-i", in)
	require.NoError(t, r.err)
	assert.Equal(t, "3\n", r.stdout)

	r = execute(t, "12 10 xor", "run", "--stdin")
	require.NoError(t, r.err)
	assert.Equal(t, "6\n", r.stdout)

	r = execute(t, "", "run", "--stdin", "1 1 +")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "multiple input sources")

	r = execute(t, "", "run")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "no expression given")
}

func TestEnvironmentConfig(t *testing.T) {
	t.Setenv("RPNC_STACK_TOP", "0x2000")

	r := execute(t, "", "compile", "-o", "-", "6 7 *")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, ".pos 0x2000")

	r = execute(t, "", "run", "6 7 *")
	require.NoError(t, r.err)
	assert.Equal(t, "42\n", r.stdout)
}

func TestStepLimit(t *testing.T) {
	t.Setenv("RPNC_MAX_STEPS", "50")

	r := execute(t, "", "run", "1000 -1000 *")
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, cpu.ErrStepLimit)
}

func TestFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("RPNC_STACK_TOP", "0x2000")

	r := execute(t, "", "compile", "--stack-top", "0x800", "-o", "-", "1 2 +")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, ".pos 0x800")
}

func TestInvalidStackTop(t *testing.T) {
	r := execute(t, "", "compile", "--stack-top", "3", "-o", "-", "1 2 +")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "invalid stack top")
}

func TestStackSize(t *testing.T) {
	r := execute(t, "", "run", "--stack-size", "2", "1 2 3 + +")
	require.Error(t, r.err)
	var fe *faultError
	require.True(t, errors.As(r.err, &fe))
	assert.Equal(t, compiler.CodeStackTooFull, fe.Code)

	t.Setenv("RPNC_STACK_SIZE", "3")
	r = execute(t, "", "run", "1 2 3 + +")
	require.NoError(t, r.err)
	assert.Equal(t, "6\n", r.stdout)

	r = execute(t, "", "compile", "--stack-size", "0", "-o", "-", "1 2 +")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "invalid stack size")
}

func TestExpressionTooLong(t *testing.T) {
	r := execute(t, "", "compile", "-o", "-", "1 "+strings.Repeat("1 + ", 60))
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, compiler.ErrCodeGen)
	assert.Empty(t, r.stdout)
}

func TestVerboseLogging(t *testing.T) {
	r := execute(t, "", "-v", "run", "1 2 +")
	require.NoError(t, r.err)
	assert.Contains(t, r.stderr, "lexed expression")
	assert.Contains(t, r.stderr, "simulation finished")
	assert.Contains(t, r.stderr, "assembled")

	r = execute(t, "", "run", "1 2 +")
	require.NoError(t, r.err)
	assert.Empty(t, r.stderr)
}

func TestTokens(t *testing.T) {
	r := execute(t, "", "tokens", "5 2 swap -")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Tokens (5)")
	assert.Contains(t, r.stdout, "SWAP")

	r = execute(t, "", "tokens", "--json", "7 dup")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, `"type": "NUMBER"`)
	assert.Contains(t, r.stdout, `"literal": "dup"`)
	assert.Contains(t, r.stdout, `"type": "EOF"`)

	r = execute(t, "", "tokens", "5 @ +")
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, compiler.ErrLex)
}

func TestIR(t *testing.T) {
	r := execute(t, "", "ir", "7 1 + 3 -")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Instructions (5)")
	assert.Contains(t, r.stdout, "PUSH 7")
	assert.Contains(t, r.stdout, "MINUS")

	r = execute(t, "", "ir", "--json", "7 dup")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, `"op": "DUP"`)
	assert.Contains(t, r.stdout, `"pushes": 2`)

	r = execute(t, "", "ir", "+ 1")
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, compiler.ErrInvalidStart)
}

func TestAsm(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.ys")
	require.NoError(t, os.WriteFile(src, []byte(`
	irmovl $40, %eax
	irmovl $2, %ebx
	addl %ebx, %eax
	halt
`), 0o644))

	r := execute(t, "", "asm", "--run", src)
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "assembled 15 bytes")
	assert.Contains(t, r.stdout, "0x0000002a")

	image, err := os.ReadFile(filepath.Join(dir, "prog.bin"))
	require.NoError(t, err)
	assert.Len(t, image, 15)
	assert.Equal(t, byte(0x30), image[0])
}

func TestAsmErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.ys")
	require.NoError(t, os.WriteFile(src, []byte("\tjmp nowhere\n"), 0o644))

	r := execute(t, "", "asm", src)
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "undefined label 'nowhere'")

	r = execute(t, "", "asm", filepath.Join(dir, "missing.ys"))
	require.Error(t, r.err)
}

func TestPrintErrorCaret(t *testing.T) {
	r := execute(t, "", "compile", "-o", "-", "1 2 + 3")
	require.Error(t, r.err)

	var buf bytes.Buffer
	r.app.printError(&buf, r.err)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "expression cannot end with a number")
	assert.Equal(t, "  1 2 + 3", lines[1])
	assert.Equal(t, "        ^", lines[2])
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "prog.bin", defaultOutputPath("prog.ys"))
	assert.Equal(t, "dir/prog.bin", defaultOutputPath("dir/prog"))
}
