package errdefs

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrappedSentinelsStayClassified(t *testing.T) {
	err := errors.Wrapf(ErrCapacity, "entry %d needs %d units", 4, 12)
	assert.True(t, IsCapacity(err))
	assert.False(t, IsFormat(err))
	assert.Contains(t, err.Error(), "entry 4 needs 12 units")
}

func TestIOErrorKeepsCause(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	err := IOError(statErr, "open %s", "index")

	assert.True(t, IsIO(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "open index")
	assert.Nil(t, IOError(nil, "unused"))
}

func TestJoinKeepsEveryKind(t *testing.T) {
	assert.Nil(t, Join(nil, nil))

	err := Join(errors.Wrap(ErrCapacity, "entry 1"), nil, errors.Wrap(ErrFormat, "entry 2"))
	assert.True(t, IsCapacity(err))
	assert.True(t, IsFormat(err))
	assert.False(t, IsIO(err))
}
