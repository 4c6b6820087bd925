package embedmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadNativeModel_MissingLibraryReturnsError(t *testing.T) {
	_, err := LoadNativeModel("/nonexistent/path/to/model.so")
	assert.Error(t, err)
}
