package search

import "testing"

import "github.com/stretchr/testify/assert"

func TestBuildDisjunctiveQuery_DropsShortTokensAndStopWords(t *testing.T) {
	got := buildDisjunctiveQuery("the orc at the gate is a foe")
	assert.Equal(t, "orc | gate | foe", got)
}

func TestBuildDisjunctiveQuery_FallsBackToRawQueryWhenEmpty(t *testing.T) {
	got := buildDisjunctiveQuery("a to is")
	assert.Equal(t, "a to is", got)
}

func TestClip01(t *testing.T) {
	assert.Equal(t, 0.0, clip01(-0.5))
	assert.Equal(t, 1.0, clip01(1.5))
	assert.Equal(t, 0.5, clip01(0.5))
}
