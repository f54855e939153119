// Package gpu defines the collaborator boundary between the graph engine
// and the GPU context it is embedded in.
//
// The engine never talks to Vulkan (or any other graphics API) directly.
// Instead it talks to the small set of interfaces in this package: a
// Device that can create command buffers, submit them and wait on
// fences; a PersistentAllocator and an AliasingAllocator that turn
// resource descriptors into Image/Buffer/AccelerationStructure handles;
// and a CommandBuffer that accepts barriers and descriptor updates
// recorded by connectors.
//
// Concrete backends (a real Vulkan context, a software rasterizer, a
// test double) implement these interfaces out of tree. The noop
// sub-package ships one such implementation for use in tests and for
// dry-running a graph without a GPU.
//
// # Thread Safety
//
// Unless documented otherwise, implementations are not required to be
// safe for concurrent use beyond what the engine itself guarantees
// (single-threaded builder, single in-flight run per graph).
//
// # Logging
//
// By default this package and its backends produce no log output.
// Call SetLogger to attach a log/slog.Logger.
package gpu
