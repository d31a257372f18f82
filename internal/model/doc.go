// Package model defines the domain types for the stagehand CLI.
//
// These types describe a CI build as stagehand sees it: the ordered
// lifecycle phases of a manifest, the outcome of individual steps and
// phases, the aggregate build result, and the error/exit-code scheme
// shared by every subcommand.
//
// All types here are plain data with no external dependencies. Parsing
// lives in internal/manifest and execution in internal/runner; this
// package only captures the vocabulary they exchange.
package model
