package tracelog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "allocation without stack",
			line: "+12.000000345,00007f2c34001000,0000000000000100",
			want: Event{
				Alloc: true, Sec: 12, Nsec: 345,
				Addr: 0x7f2c34001000, Size: 0x100,
			},
		},
		{
			name: "release without stack",
			line: "-13.900000001,00007f2c34001000,0000000000000100",
			want: Event{
				Alloc: false, Sec: 13, Nsec: 900000001,
				Addr: 0x7f2c34001000, Size: 0x100,
			},
		},
		{
			name: "allocation with stack",
			line: "+7.000000002,0000000000001000,0000000000002000,3+1a2b,0+7fffdead",
			want: Event{
				Alloc: true, Sec: 7, Nsec: 2,
				Addr: 0x1000, Size: 0x2000,
				Stack: []Frame{{Module: 3, Offset: 0x1a2b}, {Module: 0, Offset: 0x7fffdead}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"x1.0,0,0",
		"+1.0",
		"+nope,0,0",
		"+1.0,zz,0",
		"+1.0,0,zz",
		"+1.0,0,0,brokenframe",
	} {
		_, err := ParseLine(line)
		assert.Error(t, err, "line %q", line)
	}
}

func TestParse(t *testing.T) {
	input := "+1.000000000,0000000000001000,0000000000000040\n" +
		"\n" +
		"-2.000000000,0000000000001000,0000000000000040\n"
	events, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Alloc)
	assert.False(t, events[1].Alloc)
	assert.Equal(t, events[0].Addr, events[1].Addr)
}

func TestParseMaps(t *testing.T) {
	input := "1: /usr/bin/host\n2: /usr/lib/libdemo.so.6\n"
	modules, err := ParseMaps(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, map[uint64]string{
		1: "/usr/bin/host",
		2: "/usr/lib/libdemo.so.6",
	}, modules)

	_, err = ParseMaps(strings.NewReader("garbage"))
	assert.Error(t, err)
}
