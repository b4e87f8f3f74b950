package device

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
)

const dummyMap = `
# path nElements address nBytes bar width fractionalBits signed access
WORD 4 0 16 0 32 0 1 RW
`

func newMemMapFile(contents map[string]string) func(path string) (io.ReadCloser, error) {
	return func(path string) (io.ReadCloser, error) {
		s, ok := contents[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func TestRegistry_LoadDMapDeclaresAliases(t *testing.T) {
	reg := NewRegistry(newMemMapFile(map[string]string{"target1.map": dummyMap}))
	err := reg.LoadDMap(strings.NewReader("target1 (dummy?map=target1.map)\n"))
	require.NoError(t, err)

	dev, err := reg.Resolve("target1")
	require.NoError(t, err)
	assert.True(t, dev.IsOpen())
}

func TestRegistry_ResolveCachesOpenedBackend(t *testing.T) {
	reg := NewRegistry(newMemMapFile(map[string]string{"target1.map": dummyMap}))
	require.NoError(t, reg.Declare("target1", "(dummy?map=target1.map)"))

	first, err := reg.Resolve("target1")
	require.NoError(t, err)
	second, err := reg.Resolve("target1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegistry_ResolveUndeclaredAliasIsLogicError(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Resolve("missing")
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}

func TestRegistry_DeclareAfterOpenIsLogicError(t *testing.T) {
	reg := NewRegistry(newMemMapFile(map[string]string{"target1.map": dummyMap}))
	require.NoError(t, reg.Declare("target1", "(dummy?map=target1.map)"))
	_, err := reg.Resolve("target1")
	require.NoError(t, err)

	err = reg.Declare("target1", "(dummy?map=other.map)")
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}
