package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
		-12:      "-12",
	}
	for in, want := range tests {
		assert.Equal(t, want, Number(in), "Number(%d)", in)
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0s", Duration(500*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "3m5.0s", Duration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute))
}

func TestRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "123.45", Rate(123.45))
	assert.Equal(t, "12.34K", Rate(12340))
	assert.Equal(t, "1.50M", Rate(1500000))
}

func TestBytes(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{
		0:          "0 B",
		1023:       "1023 B",
		1024:       "1.0 KiB",
		1536:       "1.5 KiB",
		8 << 20:    "8.0 MiB",
		3 << 30:    "3.0 GiB",
		5 << 40:    "5.0 TiB",
		1 << 50:    "1.0 PiB",
		2048 << 50: "2048.0 PiB",
	}
	for in, want := range tests {
		assert.Equal(t, want, Bytes(in), "Bytes(%d)", in)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "cstrike/..", Truncate("cstrike/maps/de_dust2.bsp", 10))
	assert.Equal(t, "맵/..", Truncate("맵/사운드/파일.wav", 4))
	assert.Equal(t, "..", Truncate("abcdef", 2))
}

func TestDisabledProgressIsInert(t *testing.T) {
	t.Parallel()

	p := NewProgress(10, "Testing", false)
	cb := p.Callback()
	cb(1, 10, "a")
	p.Update(2, "b")
	p.Finish()
}
