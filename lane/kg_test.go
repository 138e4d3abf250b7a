package lane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExtractor struct{}

func (fakeExtractor) ExtractEntities(ctx context.Context, query string) ([]string, error) {
	return []string{"Marie Curie"}, nil
}

type fakeGraphStore struct{}

func (fakeGraphStore) FetchEntities(ctx context.Context, names []string, limit int) ([]GraphEntity, error) {
	return []GraphEntity{{ID: "Q7186", Label: "Marie Curie", Type: "person"}}, nil
}

func (fakeGraphStore) FetchRelationships(ctx context.Context, entityIDs []string, limit int) ([]Triple, error) {
	return []Triple{{Subject: "Q7186", Predicate: "discovered", Object: "Polonium"}}, nil
}

func TestKGLaneReturnsEntitiesAndRelationships(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	l := NewKGLane(fakeExtractor{}, fakeGraphStore{}, p, nil)
	res := l.Search(context.Background(), Request{QueryText: "who was marie curie", TopK: 6, DeadlineMS: 1000})

	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Items, 2)
}

type noEntityExtractor struct{}

func (noEntityExtractor) ExtractEntities(ctx context.Context, query string) ([]string, error) {
	return nil, nil
}

func TestKGLaneReturnsEmptyOKWhenNoEntitiesFound(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	l := NewKGLane(noEntityExtractor{}, fakeGraphStore{}, p, nil)
	res := l.Search(context.Background(), Request{QueryText: "asdkjasdk", TopK: 6, DeadlineMS: 1000})

	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Items)
}
