package main

import (
	"context"

	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/system/process"
)

// registerDefinitions seeds the engine with the process definitions this
// deployment serves. process.Engine has no RPC-facing "deploy a
// definition" operation (the minimal procedure surface only starts and
// drives instances of processes the binary already knows about), so a
// real deployment compiles its own definitions in here the way this one
// seeds OrderProcess.
func registerDefinitions(engine *process.Engine, log *logging.Logger) {
	orderProcess, err := process.NewBuilder("OrderProcess").
		StartEvent("start").
		UserTask("ValidateOrder", "ops-team", 1).
		EndEvent("end").
		Build()
	if err != nil {
		log.Fatal(context.Background(), "build OrderProcess definition", err)
		return
	}
	engine.Register(orderProcess)
}
