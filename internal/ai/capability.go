package ai

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BackendName identifies an LLM backend in the preference order
type BackendName string

const (
	BackendOllama BackendName = "ollama"
	BackendGemini BackendName = "gemini"
)

// Family decides how the router shapes a request for a backend
type Family string

const (
	// FamilyLocal takes the full transcript, system turn inline
	FamilyLocal Family = "local"
	// FamilyCloud takes a system instruction, a role-mapped history and a new message
	FamilyCloud Family = "cloud"
)

// Backend is one entry of the static preference order
type Backend struct {
	Name     BackendName
	Label    string
	Family   Family
	Provider Provider
}

// Capabilities maps each backend to whether it can be used.
// It is resolved once at startup and never re-probed.
type Capabilities map[BackendName]bool

// Available reports whether the named backend is usable
func (c Capabilities) Available(name BackendName) bool {
	return c[name]
}

// Pinger is implemented by providers that can check reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// credentialed is implemented by providers that need an API credential
type credentialed interface {
	HasCredential() bool
}

// ResolveCapabilities builds the capability table for backends.
// A backend without a provider is unavailable. Providers implementing Pinger
// are probed concurrently with probeTimeout; a zero timeout skips probing.
func ResolveCapabilities(ctx context.Context, backends []Backend, probeTimeout time.Duration) Capabilities {
	available := make([]bool, len(backends))

	var wg sync.WaitGroup
	for i, b := range backends {
		if b.Provider == nil {
			log.Info().Str("backend", string(b.Name)).Msg("Backend not configured")
			continue
		}

		available[i] = true
		pinger, ok := b.Provider.(Pinger)
		if !ok || probeTimeout <= 0 {
			continue
		}

		wg.Add(1)
		go func(i int, name BackendName) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			if err := pinger.Ping(probeCtx); err != nil {
				available[i] = false
				log.Warn().Err(err).Str("backend", string(name)).Msg("Backend probe failed, marking unavailable")
			}
		}(i, b.Name)
	}
	wg.Wait()

	caps := make(Capabilities, len(backends))
	for i, b := range backends {
		caps[b.Name] = available[i]
		if b.Provider == nil {
			continue
		}
		log.Info().
			Str("backend", string(b.Name)).
			Str("family", string(b.Family)).
			Bool("available", available[i]).
			Msg("Backend capability resolved")
	}

	return caps
}
