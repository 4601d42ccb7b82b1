// ABOUTME: Package documentation for sidplayfp
// ABOUTME: Notes the system library requirement

// Package sidplayfp binds the libsidplayfp emulation library as a
// siddec backend. It requires the libsidplayfp development package at
// build time (found through pkg-config) and uses the cycle-accurate
// ReSIDfp chip emulation.
package sidplayfp
