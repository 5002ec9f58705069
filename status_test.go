package gospecan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSystemError(t *testing.T) {
	tests := []struct {
		reply string
		code  int
		msg   string
	}{
		{`0,"No error"`, 0, ""},
		{`+0,"No error"` + "\n", 0, ""},
		{`-113,"Undefined header"`, -113, "Undefined header"},
		{`-221,"Settings conflict;span too large"`, -221, "Settings conflict;span too large"},
		{`-200, "Execution error"`, -200, "Execution error"},
		{`-350,"Queue overflow"`, -350, "Queue overflow"},
		{`100`, 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			ie, err := ParseSystemError(tt.reply)
			require.NoError(t, err)
			if tt.code == 0 {
				assert.Nil(t, ie)
				return
			}
			require.NotNil(t, ie)
			assert.Equal(t, tt.code, ie.Code)
			assert.Equal(t, tt.msg, ie.Message)
		})
	}
}

func TestParseSystemError_Malformed(t *testing.T) {
	for _, reply := range []string{"", "  ", `NO ERROR`, `"x",-113`} {
		_, err := ParseSystemError(reply)
		assert.True(t, IsProtocolError(err), reply)
	}
}

type querierFunc func(string) (string, error)

func (f querierFunc) Query(cmd string) (string, error) { return f(cmd) }

func TestQuerySystemError(t *testing.T) {
	var got string
	q := querierFunc(func(cmd string) (string, error) {
		got = cmd
		return `-410,"Query INTERRUPTED"`, nil
	})
	err := QuerySystemError(q)
	assert.Equal(t, SystemErrorQuery, got)
	var ie *InstrumentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, -410, ie.Code)
	assert.Equal(t, `gospecan: instrument error -410: Query INTERRUPTED`, err.Error())

	ok := querierFunc(func(string) (string, error) { return `0,"No error"`, nil })
	assert.NoError(t, QuerySystemError(ok))

	boom := errors.New("connection reset")
	broken := querierFunc(func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, QuerySystemError(broken), boom)
}
