package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFormFields(t *testing.T) {
	raw := `[{"selector":"#email","name":"email","label":"Email","kind":"email","required":true,"value":""},
	         {"selector":"select[name=\"country\"]","name":"country","label":"Country","kind":"select","required":false,"value":"US"}]`

	fields, err := decodeFormFields(raw)
	require.NoError(t, err)
	require.Len(t, fields, 2)

	assert.Equal(t, "#email", fields[0].Selector)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "select", fields[1].Kind)
	assert.Equal(t, "US", fields[1].Value)
}

func TestDecodeFormFieldsEmpty(t *testing.T) {
	fields, err := decodeFormFields("")
	require.NoError(t, err)
	assert.Nil(t, fields)

	_, err = decodeFormFields("not json")
	assert.Error(t, err)
}

func TestNewContextWithoutIncognitoIsNotOwned(t *testing.T) {
	b := &rodBrowser{incognito: false}
	c, err := b.NewContext(context.Background())
	require.NoError(t, err)
	assert.NoError(t, c.Close(), "default context close is a no-op")
}
