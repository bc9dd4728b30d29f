package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// resultFD and errFD are the ExtraFiles slots Sandbox.Run attaches the
// result and error pipes on: fd 3 and fd 4 (stdin/stdout/stderr occupy
// 0-2, ExtraFiles starts at 3).
const (
	resultFD = 3
	errFD    = 4
)

// RunChildWorker is the entrypoint cmd/docetl dispatches to when
// os.Args[1] == WorkerFlag. It reads a payload from stdin, evaluates
// the wrapped script in a yaegi interpreter, and writes the outcome to
// the result or error pipe. The interpreter is loaded with yaegi's
// whole stdlib symbol table; a fragment can name only the packages the
// wrap preamble imports, since it cannot declare imports of its own.
// It never returns — the process exits via os.Exit.
func RunChildWorker() {
	resultW := os.NewFile(resultFD, "result")
	errW := os.NewFile(errFD, "error")

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		writeErr(errW, fmt.Sprintf("reading payload: %v", err))
		os.Exit(1)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeErr(errW, fmt.Sprintf("decoding payload: %v", err))
		os.Exit(1)
	}

	applyMemoryLimit()

	result, err := evaluate(p.Source, p.Input)
	if err != nil {
		writeErr(errW, err.Error())
		os.Exit(1)
	}

	out, err := json.Marshal(result)
	if err != nil {
		writeErr(errW, fmt.Sprintf("encoding result: %v", err))
		os.Exit(1)
	}
	_, _ = resultW.Write(out)
	os.Exit(0)
}

func evaluate(source string, input map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()

	var stdout bytes.Buffer
	i := interp.New(interp.Options{Stdout: &stdout})
	if useErr := i.Use(stdlib.Symbols); useErr != nil {
		return nil, fmt.Errorf("loading interpreter stdlib: %w", useErr)
	}

	if _, evalErr := i.Eval(wrap(source)); evalErr != nil {
		return nil, fmt.Errorf("evaluating script: %w", evalErr)
	}

	fnVal, evalErr := i.Eval("main.Run")
	if evalErr != nil {
		return nil, fmt.Errorf("locating script entry point: %w", evalErr)
	}
	fn, ok := fnVal.Interface().(func(map[string]interface{}) interface{})
	if !ok {
		return nil, fmt.Errorf("script entry point has unexpected signature")
	}
	// A script that leaves result unset returns what it printed instead.
	result = fn(input)
	if result == nil && stdout.Len() > 0 {
		return stdout.String(), nil
	}
	return result, nil
}

func writeErr(w *os.File, msg string) {
	if w == nil {
		return
	}
	_, _ = w.Write([]byte(msg))
}

// applyMemoryLimit reads the ceiling Sandbox.Run passed via environment
// and applies it with the platform's best-effort virtual memory rlimit.
func applyMemoryLimit() {
	raw := os.Getenv("DOCETL_SCRIPT_MEMLIMIT")
	if raw == "" {
		return
	}
	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return
	}
	setMemoryRlimit(limit)
}
