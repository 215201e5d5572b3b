// Package model defines the provider-agnostic completion contract used by
// agents and answer interpreters.
//
// Core goals:
//   - Keep the request/response shapes minimal: prompt in, text out
//   - Decouple workflow code from vendor SDKs (Provider interface)
//   - Facilitate lightweight mocking for tests (MockProvider)
//
// Providers (e.g. OpenAI, Anthropic) implement the Provider interface from
// this package so the runtime and invoker never touch vendor types.
package model
