package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// errInterrupted is the sentinel goja.Interrupt payload used to distinguish
// a context-deadline interruption from a script-level runtime error.
var errInterrupted = errors.New("process: script execution deadline exceeded")

// runScript executes a service/business-rule task's script in a fresh,
// isolated goja VM: instance variables are injected as the `variables`
// global, the script defines entryPoint as a function, and its return
// value (if an object) becomes the variables merged back into the
// instance. Adapted from the teacher's sandboxed script-execution engine,
// generalized from TEE secret injection to plain workflow variables.
// ctx cancellation interrupts a runaway script rather than leaking the
// goroutine running it.
func runScript(ctx context.Context, script, entryPoint string, variables map[string]any) (map[string]any, []string, error) {
	vm := goja.New()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(errInterrupted)
		case <-watchDone:
		}
	}()

	var logs []string
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			logs = append(logs, arg.String())
		}
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
	_ = vm.Set("variables", vm.ToValue(variables))

	if _, err := vm.RunString(script); err != nil {
		return nil, logs, classifyScriptErr(err)
	}

	fn, ok := goja.AssertFunction(vm.Get(entryPoint))
	if !ok {
		return nil, logs, fmt.Errorf("entry point %q is not a function", entryPoint)
	}

	result, err := fn(goja.Undefined(), vm.Get("variables"))
	if err != nil {
		return nil, logs, classifyScriptErr(err)
	}

	output := map[string]any{}
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		switch v := result.Export().(type) {
		case map[string]any:
			output = v
		default:
			if raw, err := json.Marshal(v); err == nil {
				_ = json.Unmarshal(raw, &output)
			}
		}
	}
	return output, logs, nil
}

func classifyScriptErr(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrTaskTimeout
	}
	return fmt.Errorf("compile/run script: %w", err)
}
