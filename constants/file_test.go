package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedExt(t *testing.T) {
	assert.True(t, IsAllowedExt(".PDF"))
	assert.True(t, IsAllowedExt("pdf"))
	assert.False(t, IsAllowedExt(".png"))
	assert.False(t, IsAllowedExt(""))
}

func TestLooksLikePDF(t *testing.T) {
	assert.True(t, LooksLikePDF([]byte("%PDF-1.7\n...")))
	assert.True(t, LooksLikePDF([]byte("\r\n%PDF-1.4")))
	assert.False(t, LooksLikePDF([]byte("PK\x03\x04")))
	assert.False(t, LooksLikePDF(nil))
}
