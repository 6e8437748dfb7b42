// Package memory implements the Associative Memory: a retrieval layer
// over Memory nodes used by agents to remember contexts, with
// importance decay, context-match and semantic-similarity scoring, and
// idempotent max-strength associations. A single Memory node label
// covers episodic, semantic, working, and procedural records, with
// MemoryType as the discriminator.
package memory

import (
	"context"
	"time"
)

// MemoryType is the kind discriminator of a Memory record.
type MemoryType string

const (
	MemoryEpisodic   MemoryType = "episodic"
	MemorySemantic   MemoryType = "semantic"
	MemoryWorking    MemoryType = "working"
	MemoryProcedural MemoryType = "procedural"
)

// Memory is one associative-memory record. Embedding is nil when no
// EmbeddingProvider is configured.
type Memory struct {
	ID           string
	Content      string
	Context      map[string]string
	Type         MemoryType
	Timestamp    time.Time
	Importance   float64
	LastAccessed time.Time
	AccessCount  int64
	Embedding    []float32
}

// ContextQuery is the context map a RecallByContext caller matches
// against, together with optional free text fed to the embedding
// provider for semantic similarity.
type ContextQuery struct {
	Context map[string]string
	Text    string
}

// EmbeddingProvider computes a vector embedding for a canonical text
// projection. It is an external collaborator; the fabric ships no
// concrete implementation.
type EmbeddingProvider interface {
	Embed(text string) ([]float32, error)
}

// Store is the graph-backed persistence AssociativeMemory needs. The
// repository package's MemoryRepo implements this against a real
// gal.Connection; tests use an in-memory fake.
type Store interface {
	Create(ctx context.Context, m Memory) error
	Get(ctx context.Context, id string) (Memory, bool, error)
	// TouchAccess updates last_accessed to now and increments
	// access_count, returning the updated record.
	TouchAccess(ctx context.Context, id string, now time.Time) (Memory, error)
	// ListCandidates returns every memory of the given type, or every
	// memory regardless of type when typ is empty, for RecallByContext
	// and RecallByType to score/sort in process.
	ListCandidates(ctx context.Context, typ MemoryType) ([]Memory, error)
	// Associate MERGEs a RELATED_TO edge between a and b carrying
	// relation and strength, raising strength to the max of the
	// existing and new values if the edge already exists.
	Associate(ctx context.Context, a, b, relation string, strength float64) error
}

// Weights configures the RecallByContext score:
// score = α·contextMatch + β·importanceNow + γ·semanticSim.
type Weights struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// DefaultWeights favors context match and recency-weighted importance
// equally, with semantic similarity as a smaller tiebreaker; see
// DESIGN.md Open Question 3 for why these particular values were
// chosen in the absence of a source default.
func DefaultWeights() Weights {
	return Weights{Alpha: 0.4, Beta: 0.4, Gamma: 0.2}
}

// DefaultDecayLambda is λ in importance_now = importance · exp(-λ·age),
// chosen so importance halves roughly every three days of wall-clock
// age when age is measured in hours; see DESIGN.md Open Question 3.
const DefaultDecayLambda = 0.01
