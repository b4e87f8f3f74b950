package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

type stubBackend struct {
	address string
	params  map[string]string
	open    bool
}

func (s *stubBackend) Open(context.Context) error { s.open = true; return nil }
func (s *stubBackend) Close() error                { s.open = false; return nil }
func (s *stubBackend) IsOpen() bool                 { return s.open }
func (s *stubBackend) Catalogue() *catalogue.RegisterCatalogue { return catalogue.New() }
func (s *stubBackend) SetException(error)           {}
func (s *stubBackend) ActiveException() error        { return nil }
func (s *stubBackend) TriggerInterrupt(context.Context, uint32) (version.Number, error) {
	return version.Number{}, deverrs.NewLogicError("stubBackend.TriggerInterrupt", "not supported")
}

func TestCreate_DispatchesToRegisteredFactory(t *testing.T) {
	RegisterType("stubForCreateTest", func(address string, params map[string]string) (Backend, error) {
		return &stubBackend{address: address, params: params}, nil
	})

	b, err := Create("(stubForCreateTest:addr?key=value)")
	require.NoError(t, err)
	stub := b.(*stubBackend)
	assert.Equal(t, "addr", stub.address)
	assert.Equal(t, "value", stub.params["key"])
}

func TestCreate_RejectsUnregisteredType(t *testing.T) {
	_, err := Create("(neverRegisteredBackendType)")
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}
