package numericmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/catalogue"
)

const sampleMap = `
# board status word
BOARD/WORD_STATUS 1 0x0 4 0 32 0 0 RO
BOARD/WORD_CLOCK_FREQ 1 0x4 4 0 32 8 0 RW
# interrupt entry
!3:0 1 0 0 0 0 0 0 INTERRUPT 3 0
`

func TestDecode_PopulatesCatalogue(t *testing.T) {
	t.Parallel()

	cat := catalogue.New()
	require.NoError(t, Decode(strings.NewReader(sampleMap), cat))

	info, ok := cat.GetRegister(catalogue.NewPath("BOARD/WORD_STATUS"))
	require.True(t, ok)
	assert.True(t, info.Readable)
	assert.False(t, info.Writeable)
	assert.EqualValues(t, 32, info.NumericAddressedTarget.Width)

	info, ok = cat.GetRegister(catalogue.NewPath("BOARD/WORD_CLOCK_FREQ"))
	require.True(t, ok)
	assert.True(t, info.Readable)
	assert.True(t, info.Writeable)
	assert.False(t, info.DataDescriptor.IsIntegral)

	ids, ok := cat.InterruptIDs(catalogue.RegisterPath("!3:0"))
	require.True(t, ok)
	assert.Equal(t, []uint32{3, 0}, ids)
}

func TestDecode_RejectsMalformedLine(t *testing.T) {
	t.Parallel()

	cat := catalogue.New()
	err := Decode(strings.NewReader("TOO_SHORT 1 2"), cat)
	assert.Error(t, err)
}
