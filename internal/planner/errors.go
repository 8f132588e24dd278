// Package planner turns a natural-language goal into a plan: it drives
// an LLM decomposition
// agent through a bounded retry loop, validates and renumbers its
// output, and persists the outcome as a DAG row regardless of whether
// the attempt succeeded, needs clarification, or exhausted its retries.
package planner

import "errors"

// Sentinel errors for configuration and lookup failures.
// Parse/schema failures never surface as errors; they persist a
// validation_error DAG row and return normally, per the planner contract.
// The one exception is an oversize response with attempts still left,
// which raises ErrResponseTooLarge without persisting anything.
var (
	ErrAgentNotFound    = errors.New("planner: agent not found or inactive")
	ErrInvalidCron      = errors.New("planner: invalid cron schedule")
	ErrPromptTooShort   = errors.New("planner: expanded system prompt is too short")
	ErrResponseTooLarge = errors.New("planner: llm response exceeds size ceiling")
	ErrDAGNotPending    = errors.New("planner: dag is not awaiting clarification")
	ErrDAGNotFound      = errors.New("planner: dag not found")
	ErrStoppedDuringRun = errors.New("planner: stop requested during plan creation")
)
