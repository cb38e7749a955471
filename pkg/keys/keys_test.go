package keys_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilliamDuke02/databaseProject/pkg/keys"
)

func TestDeriver_ForRecord(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		id     string
		want   keys.Key
		wantOK bool
	}{
		{name: "full vin", offset: keys.DefaultCheckOffset, id: "1FTFW1E5XPFA00001", want: keys.Key{Prefix: "1FTFW1E5", Check: "P"}, wantOK: true},
		{name: "trims whitespace", offset: keys.DefaultCheckOffset, id: "  1FTFW1E5XPFA00001 ", want: keys.Key{Prefix: "1FTFW1E5", Check: "P"}, wantOK: true},
		{name: "exactly ten characters", offset: keys.DefaultCheckOffset, id: "ABCDEFGHIJ", want: keys.Key{Prefix: "ABCDEFGH", Check: "J"}, wantOK: true},
		{name: "too short for check", offset: keys.DefaultCheckOffset, id: "ABCDEFGHI", wantOK: false},
		{name: "too short for prefix", offset: keys.DefaultCheckOffset, id: "ABC", wantOK: false},
		{name: "empty", offset: keys.DefaultCheckOffset, id: "", wantOK: false},
		{name: "ninth character offset", offset: 8, id: "VIN123456789", want: keys.Key{Prefix: "VIN12345", Check: "6"}, wantOK: true},
		{name: "multibyte runes", offset: keys.DefaultCheckOffset, id: "ÄBCDEFGHÖJK", want: keys.Key{Prefix: "ÄBCDEFGH", Check: "J"}, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keys.NewDeriver(tt.offset).ForRecord(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDeriver_ForDecoder(t *testing.T) {
	d := keys.DefaultDeriver

	got, ok := d.ForDecoder("1FTFW1E5-ANY", " P ")
	require.True(t, ok)
	assert.Equal(t, keys.Key{Prefix: "1FTFW1E5", Check: "P"}, got)

	got, ok = d.ForDecoder("1FTFW1E5", "PX")
	require.True(t, ok)
	assert.Equal(t, "P", got.Check)

	_, ok = d.ForDecoder("1FTFW1", "P")
	assert.False(t, ok)

	_, ok = d.ForDecoder("1FTFW1E5", "  ")
	assert.False(t, ok)
}

func TestDeriver_BothSidesAgree(t *testing.T) {
	d := keys.DefaultDeriver
	record, ok := d.ForRecord("5YJ3E1EA7KF000001")
	require.True(t, ok)
	decoder, ok := d.ForDecoder("5YJ3E1EA", "K")
	require.True(t, ok)
	assert.Equal(t, decoder, record)
}

func TestNewDeriver_NegativeOffsetUsesDefault(t *testing.T) {
	assert.Equal(t, keys.DefaultCheckOffset, keys.NewDeriver(-1).CheckOffset())
}

func TestNewDeriver_ZeroOffsetReadsFirstCharacter(t *testing.T) {
	d := keys.NewDeriver(0)
	assert.Equal(t, 0, d.CheckOffset())

	k, ok := d.ForRecord("5YJ3E1EA7KF000001")
	require.True(t, ok)
	assert.Equal(t, keys.Key{Prefix: "5YJ3E1EA", Check: "5"}, k)
}

func TestSequence(t *testing.T) {
	seq := keys.SequenceAfter(41)
	assert.Equal(t, int64(42), seq.Peek())
	assert.Equal(t, int64(42), seq.Next())
	assert.Equal(t, int64(43), seq.Next())

	t.Run("unique under concurrency", func(t *testing.T) {
		seq := keys.NewSequence(1)
		var (
			mu   sync.Mutex
			seen = map[int64]bool{}
			wg   sync.WaitGroup
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				k := seq.Next()
				mu.Lock()
				seen[k] = true
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Len(t, seen, 50)
		assert.Equal(t, int64(51), seq.Peek())
	})
}
