// Package attr provides the attribute value model shared by every other
// internal package.
//
// This package contains value types and pure functions only. All other
// internal packages import attr; attr imports nothing internal. This keeps it
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Canonical JSON (RFC 8785) is the only serialization used for hashing
//   - References are whole-string expressions of the form ${node.output}
package attr
