package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"category":"interested"}`:                          `{"category":"interested"}`,
		"Here is the result:\n{\"category\":\"spam\"}\nDone": `{"category":"spam"}`,
		"```json\n{\"confidence\":0.9}\n```":                 `{"confidence":0.9}`,
		"no json here": "no json here",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractJSON(in))
	}
}

func TestReplyCategoryValid(t *testing.T) {
	for _, category := range AllCategories {
		assert.True(t, category.Valid())
	}
	assert.False(t, ReplyCategory("maybe-interested").Valid())
	assert.False(t, ReplyCategory("").Valid())
}
