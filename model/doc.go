// Package model defines the provider-agnostic abstractions for interacting
// with language models.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool call representation (ToolDefinition, core.ToolCall)
//   - Classify failures as transient or fatal (ProviderError)
//   - Facilitate lightweight scripting for tests (MockModel)
//
// Providers (model/openai, model/anthropic) implement the Model interface so
// agents and flows remain decoupled from vendor SDKs.
package model
