// Package embeddings turns finding text into fixed-size vectors for similarity search.
//
// Vectors are built with signed feature hashing over word unigrams and bigrams,
// so no model call is needed and the same text always maps to the same vector.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/bdougie/uitraps/internal/models"
)

// DefaultDims matches the vector column width used by the Postgres store
const DefaultDims = 64

var (
	ErrEmptyContent = errors.New("nothing to embed")
	ErrQueueFull    = errors.New("embedding queue is full, try again later")
)

// Result represents the result of embedding generation
type Result struct {
	Content   string
	Embedding []float32
	Error     error
}

// Work represents a unit of embedding work
type Work struct {
	Content string
	Result  chan<- Result
}

// Service manages embedding generation and caching
type Service struct {
	dims       int
	numWorkers int
	workQueue  chan Work
	cache      sync.Map // content -> []float32
	wg         sync.WaitGroup
}

// NewService creates a new embedding service with the specified number of workers
func NewService(numWorkers, dims int) *Service {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if dims <= 0 {
		dims = DefaultDims
	}

	service := &Service{
		dims:       dims,
		numWorkers: numWorkers,
		workQueue:  make(chan Work, 100), // Buffer size for embedding requests
	}

	service.startWorkers()

	return service
}

// Dims is the length of every vector the service produces
func (s *Service) Dims() int {
	return s.dims
}

// startWorkers starts a pool of goroutines for generating embeddings
func (s *Service) startWorkers() {
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for work := range s.workQueue {
				// Check cache first
				if cachedEmb, ok := s.cache.Load(work.Content); ok {
					if embedding, validCache := cachedEmb.([]float32); validCache {
						work.Result <- Result{
							Content:   work.Content,
							Embedding: embedding,
						}
						continue
					}
				}

				embedding, err := Hash(work.Content, s.dims)
				if err == nil {
					s.cache.Store(work.Content, embedding)
				}

				work.Result <- Result{
					Content:   work.Content,
					Embedding: embedding,
					Error:     err,
				}
			}
		}()
	}
}

// GetEmbedding requests an embedding generation asynchronously
func (s *Service) GetEmbedding(content string) <-chan Result {
	resultChan := make(chan Result, 1)

	select {
	case s.workQueue <- Work{
		Content: content,
		Result:  resultChan,
	}:
	default:
		resultChan <- Result{
			Content: content,
			Error:   ErrQueueFull,
		}
		close(resultChan)
	}

	return resultChan
}

// submit queues content, waiting for room in the queue instead of failing
func (s *Service) submit(ctx context.Context, content string) (<-chan Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resultChan := make(chan Result, 1)
	select {
	case s.workQueue <- Work{Content: content, Result: resultChan}:
		return resultChan, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Embed waits for the embedding of content
func (s *Service) Embed(ctx context.Context, content string) ([]float32, error) {
	ch, err := s.submit(ctx, content)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.Embedding, res.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedIssues embeds every issue, preserving order. Submission blocks while
// the queue is full, so any number of issues can be embedded.
func (s *Service) EmbedIssues(ctx context.Context, issues []models.Issue) ([][]float32, error) {
	pending := make([]<-chan Result, len(issues))
	for i, issue := range issues {
		ch, err := s.submit(ctx, IssueText(issue))
		if err != nil {
			return nil, err
		}
		pending[i] = ch
	}

	out := make([][]float32, len(issues))
	for i, ch := range pending {
		select {
		case res := <-ch:
			if res.Error != nil {
				return nil, fmt.Errorf("embedding issue %q: %w", issues[i].TrapName, res.Error)
			}
			out[i] = res.Embedding
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// Close shuts down the embedding service and waits for all workers to finish
func (s *Service) Close() {
	if s.workQueue != nil {
		close(s.workQueue)
	}
	s.wg.Wait()
}

// IssueText is the text a finding is embedded from
func IssueText(issue models.Issue) string {
	parts := []string{issue.TrapName, issue.Tenet, issue.Location, issue.Problem, issue.Observation}
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Hash builds an L2-normalized signed feature-hash vector of length dims
func Hash(content string, dims int) ([]float32, error) {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return nil, ErrEmptyContent
	}

	vec := make([]float64, dims)
	add := func(feature string, weight float64) {
		h := xxhash.Sum64String(feature)
		idx := h % uint64(dims)
		if h>>63 == 1 {
			weight = -weight
		}
		vec[idx] += weight
	}

	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dims)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cosine returns the cosine similarity of two vectors of equal length
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
