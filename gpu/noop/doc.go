// Package noop provides an in-memory gpu.Device implementation that
// performs no real GPU work.
//
// It exists so the graph engine's own tests — and any embedder that
// wants to dry-run a graph without a GPU — can exercise the full build
// and run pipeline against a cheap, deterministic fake. Buffers created
// by the allocators hold a Go byte slice of their requested size so
// tests can assert on data flowing through the graph; everything else
// is a bare placeholder handle.
package noop
