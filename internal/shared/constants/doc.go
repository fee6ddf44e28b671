// Package constants centralises shared defaults (permissions, scanner limits,
// session lifetimes) so cmd/ and internal/ packages agree on them.
package constants
