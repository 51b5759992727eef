package providers

import (
	"context"
	"log"
	"sync"
)

// Mode describes which provider a switcher is currently routing to.
type Mode string

const (
	ModeRemote   Mode = "remote"
	ModeFallback Mode = "fallback"
)

// demotion tracks whether the remote provider has been disabled for the
// rest of the process. Auth, quota, and permanent model errors demote;
// transient errors fall back for the single call only.
type demotion struct {
	mu      sync.Mutex
	demoted bool
	reason  string
}

func (d *demotion) demote(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.demoted {
		d.demoted = true
		d.reason = reason
	}
}

func (d *demotion) state() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.demoted, d.reason
}

// EmbedSwitcher routes embedding calls to the remote provider and falls
// back to the deterministic local one when the remote fails or has been
// demoted. A nil remote means fallback-only operation.
type EmbedSwitcher struct {
	remote   EmbeddingProvider
	fallback *Fallback
	d        demotion
}

func NewEmbedSwitcher(remote EmbeddingProvider, fallback *Fallback) *EmbedSwitcher {
	return &EmbedSwitcher{remote: remote, fallback: fallback}
}

func (s *EmbedSwitcher) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if s.remote != nil {
		if demoted, _ := s.d.state(); !demoted {
			vecs, info, err := s.remote.Embed(ctx, req)
			if err == nil {
				return vecs, info, nil
			}
			class := ClassifyError(err)
			if Demotes(class) {
				s.d.demote(err.Error())
				log.Printf("embed provider demoted (%s): %v", class, err)
			} else {
				log.Printf("embed provider failed (%s), using fallback for this call: %v", class, err)
			}
		}
	}
	return s.fallback.Embed(ctx, req)
}

func (s *EmbedSwitcher) Mode() Mode {
	if s.remote == nil {
		return ModeFallback
	}
	if demoted, _ := s.d.state(); demoted {
		return ModeFallback
	}
	return ModeRemote
}

func (s *EmbedSwitcher) UsingFallback() bool { return s.Mode() == ModeFallback }

// AnswerSwitcher mirrors EmbedSwitcher for answer generation, including the
// streaming path. A remote stream that fails before emitting anything falls
// back to the local provider; once tokens have been sent the error is
// surfaced because the client already received partial output.
type AnswerSwitcher struct {
	remote   AnswerProvider
	fallback *Fallback
	d        demotion
}

func NewAnswerSwitcher(remote AnswerProvider, fallback *Fallback) *AnswerSwitcher {
	return &AnswerSwitcher{remote: remote, fallback: fallback}
}

func (s *AnswerSwitcher) remoteActive() bool {
	if s.remote == nil {
		return false
	}
	demoted, _ := s.d.state()
	return !demoted
}

func (s *AnswerSwitcher) noteFailure(err error) {
	class := ClassifyError(err)
	if Demotes(class) {
		s.d.demote(err.Error())
		log.Printf("answer provider demoted (%s): %v", class, err)
	} else {
		log.Printf("answer provider failed (%s), using fallback for this call: %v", class, err)
	}
}

func (s *AnswerSwitcher) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if s.remoteActive() {
		resp, info, err := s.remote.Generate(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		s.noteFailure(err)
	}
	return s.fallback.Generate(ctx, req)
}

func (s *AnswerSwitcher) GenerateStream(ctx context.Context, req GenerateRequest, emit func(token string) error) (ProviderInfo, error) {
	if s.remoteActive() {
		emitted := false
		wrapped := func(token string) error {
			emitted = true
			return emit(token)
		}
		info, err := s.remote.GenerateStream(ctx, req, wrapped)
		if err == nil {
			return info, nil
		}
		if emitted {
			return info, err
		}
		s.noteFailure(err)
	}
	return s.fallback.GenerateStream(ctx, req, emit)
}

func (s *AnswerSwitcher) Mode() Mode {
	if s.remote == nil {
		return ModeFallback
	}
	if demoted, _ := s.d.state(); demoted {
		return ModeFallback
	}
	return ModeRemote
}

func (s *AnswerSwitcher) UsingFallback() bool { return s.Mode() == ModeFallback }

// Build wires the switchers from configuration. provider names are
// "openai" or "fallback"; an unconfigured remote (no API key) starts in
// fallback mode instead of failing on the first call.
func Build(embedProvider, answerProvider, baseURL string, rps float64, dim int) (*EmbedSwitcher, *AnswerSwitcher) {
	fb := NewFallback(dim)

	var remoteEmbed EmbeddingProvider
	var remoteAnswer AnswerProvider
	if embedProvider == "openai" || answerProvider == "openai" {
		remote := NewOpenAIProvider(baseURL, rps)
		if remote.Configured() {
			if embedProvider == "openai" {
				remoteEmbed = remote
			}
			if answerProvider == "openai" {
				remoteAnswer = remote
			}
		} else {
			log.Printf("openai provider requested but OPENAI_API_KEY is unset, running on fallback")
		}
	}
	return NewEmbedSwitcher(remoteEmbed, fb), NewAnswerSwitcher(remoteAnswer, fb)
}
