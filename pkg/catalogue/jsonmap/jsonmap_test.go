package jsonmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/catalogue"
)

const sampleDocument = `{
  "registers": [
    {
      "path": "BOARD/WAVEFORM",
      "access": "RO",
      "channels": [
        {"nElements": 1024, "width": 16, "fractionalBits": 0, "signed": true},
        {"nElements": 1024, "width": 32, "fractionalBits": 4, "signed": true}
      ]
    },
    {
      "path": "BOARD/TEMP",
      "access": "RW",
      "interrupt": [2, 1],
      "channels": [
        {"nElements": 1, "width": 32, "fractionalBits": 0, "signed": false, "dataType": "ieee754"}
      ]
    }
  ]
}`

func TestDecode_PopulatesCatalogueFromMultiChannelDocument(t *testing.T) {
	t.Parallel()

	cat := catalogue.New()
	require.NoError(t, Decode(strings.NewReader(sampleDocument), cat))

	info, ok := cat.GetRegister(catalogue.NewPath("BOARD/WAVEFORM"))
	require.True(t, ok)
	assert.Equal(t, 2, info.NumberOfChannels)
	assert.Equal(t, 1024, info.NumberOfElements)
	assert.False(t, info.DataDescriptor.IsIntegral) // the widest channel has fractional bits

	info, ok = cat.GetRegister(catalogue.NewPath("BOARD/TEMP"))
	require.True(t, ok)
	assert.True(t, info.Readable)
	assert.True(t, info.Writeable)
	assert.Equal(t, catalogue.FundamentalNumeric, info.DataDescriptor.FundamentalType)

	ids, ok := cat.InterruptIDs(catalogue.RegisterPath("!2:1"))
	require.True(t, ok)
	assert.Equal(t, []uint32{2, 1}, ids)
}

func TestDecode_RejectsRegisterWithNoChannels(t *testing.T) {
	t.Parallel()

	cat := catalogue.New()
	doc := `{"registers":[{"path":"EMPTY","access":"RO","channels":[]}]}`
	assert.Error(t, Decode(strings.NewReader(doc), cat))
}
