// Package artifact contains concrete implementations of core.ArtifactService.
//
// The ArtifactService interface lives in the core package to avoid
// dependency cycles. Tools reach artifacts through core.ToolContext, which
// records every saved version in the carrying event's artifact delta.
package artifact
