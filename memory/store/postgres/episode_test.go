package postgres

import (
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/memory"
)

func TestVectorParam(t *testing.T) {
	s := New(nil, 3)

	e := memory.NewEpisode("u1", "mika", "", "fits")
	e.Embedding = []float32{1, 0, 0}
	assert.Equal(t, pgvector.NewVector([]float32{1, 0, 0}), s.vectorParam(e))
	assert.Len(t, e.Embedding, 3)

	e = memory.NewEpisode("u1", "mika", "", "wrong size")
	e.Embedding = []float32{1, 0}
	assert.Nil(t, s.vectorParam(e))
	assert.Nil(t, e.Embedding, "the returned episode reflects the NULL column")

	e = memory.NewEpisode("u1", "mika", "", "no vector")
	e.Embedding = []float32{}
	assert.Nil(t, s.vectorParam(e))
	assert.Nil(t, e.Embedding)
}
