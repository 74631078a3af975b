package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatid(t *testing.T) {
	assert.Equal(t, uint64(0), MkAddr(0, 0).Flatid(1024))
	assert.Equal(t, uint64(3*1024+17), MkAddr(3, 17).Flatid(1024))
	assert.Equal(t, uint64(3*4096+17), MkAddr(3, 17).Flatid(4096))
}

func TestMkRecAddr(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(MkAddr(2, 0), MkRecAddr(2, 0, 40, 1024))
	assert.Equal(MkAddr(2, 40), MkRecAddr(2, 1, 40, 1024))
	// record 25 starts at byte 1000 and straddles into block 3
	assert.Equal(MkAddr(2, 1000), MkRecAddr(2, 25, 40, 1024))
	assert.Equal(MkAddr(3, 16), MkRecAddr(2, 26, 40, 1024))

	assert.Equal(MkAddr(9, 31*32), MkRecAddr(9, 31, 32, 1024))
	assert.Equal(MkAddr(10, 0), MkRecAddr(9, 32, 32, 1024))
}
