package llm

// =============================================================================
// LLM Middleware — Empty Shim
// =============================================================================
// This file declares nothing. This module has no llm/middleware sub-package
// and no Handler/Middleware/Chain types. Wrapping a Provider is done with
// ProviderMiddleware, ProviderMiddlewareFunc and ChainProviderMiddleware in
// extensions.go.
// =============================================================================
