// Package testutil contains helper builders and scripted agents used across
// tests to reduce boilerplate when constructing sessions and events and when
// driving composite agents with deterministic children. They are not
// intended for production usage.
package testutil
