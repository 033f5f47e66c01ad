package pseudonym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		username string
		salt     uint64
		want     int32
	}{
		{"alice zero salt", "alice", 0, -935387206},
		{"alice small salt", "alice", 42, -148094088},
		{"bob small salt", "bob", 42, -1475678214},
		{"alice wide salt", "alice", 0x0123456789abcdef, -1947068427},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.username, tt.salt))
		})
	}
}

func TestOf_Deterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, Of("tillerino", 1234), Of("tillerino", 1234))
	}
}

func TestOf_SaltsDiverge(t *testing.T) {
	seen := make(map[int32]uint64)
	for salt := uint64(1); salt <= 64; salt++ {
		p := Of("alice", salt*0x9e3779b97f4a7c15)
		if prev, ok := seen[p]; ok {
			t.Fatalf("salts %d and %d produced the same pseudonym %d", prev, salt, p)
		}
		seen[p] = salt
	}
}

func TestOf_EmptyUsername(t *testing.T) {
	assert.NotPanics(t, func() { Of("", 7) })
	assert.Equal(t, Of("", 7), Of("", 7))
}
