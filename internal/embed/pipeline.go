package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"llmc/internal/config"
	"llmc/internal/indexstore"
)

// Pipeline embeds spans missing an Embedding under each configured
// profile.
type Pipeline struct {
	store     *indexstore.Store
	providers map[string]Provider
	profiles  map[string]config.EmbeddingProfile
	batchSize int
	repoPath  string
	logger    *zap.Logger
}

func NewPipeline(store *indexstore.Store, providers map[string]Provider, profiles map[string]config.EmbeddingProfile, batchSize int, repoPath string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Pipeline{
		store:     store,
		providers: providers,
		profiles:  profiles,
		batchSize: batchSize,
		repoPath:  repoPath,
		logger:    logger,
	}
}

// Result summarizes one RunCycle invocation across all profiles.
type Result struct {
	Embedded   int
	Invalidated int
}

// ReconcileProfiles compares each configured profile's (provider, model,
// dim) fingerprint against the last-seen fingerprint recorded in
// <repo>/.llmc/embedding_profiles.json, invalidating (deleting) any
// profile's stored embeddings whose fingerprint changed: switching a
// profile's model or dim makes its prior embeddings incomparable to
// new ones. RunCycle calls it at the start of every cycle; with
// unchanged profiles a call invalidates nothing.
func (p *Pipeline) ReconcileProfiles() (Result, error) {
	var res Result
	statePath := filepath.Join(p.repoPath, ".llmc", "embedding_profiles.json")
	prior := loadProfileState(statePath)
	next := make(map[string]string, len(p.profiles))

	for name, profile := range p.profiles {
		fp := profileFingerprint(profile)
		next[name] = fp
		if old, ok := prior[name]; ok && old != fp {
			n, err := p.store.InvalidateProfile(name)
			if err != nil {
				return res, err
			}
			res.Invalidated += n
			p.logger.Info("embedding profile changed, invalidated stored vectors",
				zap.String("profile", name), zap.Int("count", n))
		}
	}

	if err := saveProfileState(statePath, next); err != nil {
		p.logger.Warn("failed to persist embedding profile state", zap.Error(err))
	}
	return res, nil
}

func profileFingerprint(p config.EmbeddingProfile) string {
	return fmt.Sprintf("%s|%s|%d", p.Provider, p.Model, p.Dim)
}

func loadProfileState(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]string{}
	}
	return m
}

func saveProfileState(path string, m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RunCycle reconciles profile fingerprints (see ReconcileProfiles), then
// embeds up to limit pending spans per configured profile.
func (p *Pipeline) RunCycle(ctx context.Context, limitPerProfile int) (Result, error) {
	res, err := p.ReconcileProfiles()
	if err != nil {
		return res, err
	}
	for name, profile := range p.profiles {
		provider, ok := p.providers[name]
		if !ok {
			continue
		}
		n, err := p.runProfile(ctx, name, profile, provider, limitPerProfile)
		if err != nil {
			return res, err
		}
		res.Embedded += n
	}
	return res, nil
}

func (p *Pipeline) runProfile(ctx context.Context, profileName string, profile config.EmbeddingProfile, provider Provider, limit int) (int, error) {
	hashes, err := p.store.QueryPendingEmbeddings(profileName, limit)
	if err != nil {
		return 0, err
	}
	embedded := 0

	for start := 0; start < len(hashes); start += p.batchSize {
		end := start + p.batchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		chunk := hashes[start:end]

		texts := make([]string, 0, len(chunk))
		present := make([]string, 0, len(chunk))
		for _, h := range chunk {
			text, err := p.textFor(h)
			if err != nil {
				continue
			}
			if text == "" {
				continue
			}
			texts = append(texts, text)
			present = append(present, h)
		}
		if len(texts) == 0 {
			continue
		}

		vectors, err := provider.EmbedBatch(ctx, texts)
		if err != nil {
			return embedded, err
		}
		for i, h := range present {
			if i >= len(vectors) {
				break
			}
			e := indexstore.Embedding{SpanHash: h, Profile: profileName, Vector: vectors[i], ProviderID: provider.Name()}
			if err := p.store.PutEmbedding(e); err != nil {
				p.logger.Warn("failed to persist embedding", zap.String("span_hash", h), zap.Error(err))
				continue
			}
			embedded++
		}
	}
	return embedded, nil
}

// textFor resolves the text to embed for a span: the enrichment
// summary when present, else canonicalized span content.
func (p *Pipeline) textFor(spanHash string) (string, error) {
	enrichment, err := p.store.GetEnrichment(spanHash)
	if err != nil {
		return "", err
	}
	if enrichment != nil && strings.TrimSpace(enrichment.Summary) != "" {
		return enrichment.Summary, nil
	}

	sp, _, err := p.store.GetSpanByHash(spanHash)
	if err != nil {
		return "", err
	}
	if sp == nil {
		return "", nil
	}
	return canonicalize(string(sp.Content)), nil
}

// canonicalize collapses every run of whitespace to one space so that
// purely cosmetic reformatting of a span's text does not change its
// embedding input. This is broader than internal/span's hash
// canonicalization, which only normalizes line endings and strips
// trailing whitespace.
func canonicalize(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
